package booth

import (
	"context"
	"sync"

	"github.com/fpang/photo-booth/internal/collage"
	"github.com/fpang/photo-booth/internal/style"
	"github.com/rs/zerolog/log"
)

// sequencedComposer numbers compositions as they start and only publishes a
// result if nothing newer has been published. A failed composition leaves
// the last good collage on screen.
type sequencedComposer struct {
	inner   style.Composer
	publish func(res *collage.Result, seq uint64)

	mu        sync.Mutex
	seq       uint64
	published uint64
	current   *collage.Result
}

func (c *sequencedComposer) Compose(ctx context.Context, req collage.Request) (*collage.Result, error) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	res, err := c.inner.Compose(ctx, req)

	c.mu.Lock()
	if cerr := ctx.Err(); cerr != nil {
		c.mu.Unlock()
		log.Debug().Uint64("seq", seq).Msg("Dropping collage for a canceled request")
		return nil, cerr
	}
	if err != nil {
		c.mu.Unlock()
		log.Error().Err(err).Uint64("seq", seq).Msg("Composition failed, keeping last good collage")
		return nil, err
	}
	if seq <= c.published {
		c.mu.Unlock()
		log.Debug().Uint64("seq", seq).Uint64("published", c.published).Msg("Dropping superseded collage")
		return res, nil
	}
	c.published = seq
	c.current = res
	c.mu.Unlock()

	if c.publish != nil {
		c.publish(res, seq)
	}
	return res, nil
}

// Current returns the last published collage.
func (c *sequencedComposer) Current() *collage.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// reset forgets the current collage and makes every composition already
// in flight stale.
func (c *sequencedComposer) reset() {
	c.mu.Lock()
	c.current = nil
	c.published = c.seq
	c.mu.Unlock()
}
