package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/fpang/photo-booth/internal/camera"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// Controller owns the camera stream and the capture session. All methods are
// safe for concurrent use. Countdowns and auto-starts run on background
// goroutines that stop when superseded or when the controller is closed.
type Controller struct {
	device camera.Device
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     State
	stream    camera.Stream
	slots     [NumSlots]Slot
	cursor    int
	countdown int
	// epoch is bumped whenever a pending countdown or auto-start must be
	// abandoned; background goroutines exit when it no longer matches.
	epoch     uint64
	listeners []Listener
	pending   []func(Listener)
	batch     uint64
	closed    bool

	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	delivered  uint64
}

// NewController returns an idle controller for device.
func NewController(device camera.Device, opts Options) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		device: device,
		opts:   opts.withDefaults(),
		ctx:    ctx,
		cancel: cancel,
	}
	c.notifyCond = sync.NewCond(&c.notifyMu)
	return c
}

// AddListener registers l for notifications.
func (c *Controller) AddListener(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// unlock releases c.mu and then delivers the notifications queued while it
// was held. Batches are numbered under c.mu and delivered strictly in that
// order, so listeners observe state changes in the order they happened.
func (c *Controller) unlock() {
	notes := c.pending
	c.pending = nil
	listeners := c.listeners
	c.batch++
	batch := c.batch
	c.mu.Unlock()

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	for c.delivered != batch-1 {
		c.notifyCond.Wait()
	}
	for _, note := range notes {
		for _, l := range listeners {
			note(l)
		}
	}
	c.delivered = batch
	c.notifyCond.Broadcast()
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	log.Debug().Str("from", c.state.String()).Str("to", s.String()).Int("cursor", c.cursor).Msg("Capture state changed")
	c.state = s
	c.pending = append(c.pending, func(l Listener) { l.StateChanged(s) })
}

func (c *Controller) setCountdownLocked(n int) {
	c.countdown = n
	c.pending = append(c.pending, func(l Listener) { l.CountdownChanged(n) })
}

// Snapshot returns a copy of the session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:     c.state,
		Cursor:    c.cursor,
		Countdown: c.countdown,
		Streaming: c.stream != nil,
		Slots:     c.slots,
	}
}

// Frame returns the live frame from the active stream.
func (c *Controller) Frame() (image.Image, error) {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return nil, ErrInvalidState
	}
	return stream.Frame()
}

// AcquireStream opens the camera, releasing any stream already held. On
// success the controller is Streaming and, after the stabilization delay,
// starts a countdown if the cursor slot is empty.
func (c *Controller) AcquireStream(ctx context.Context) error {
	return c.acquire(ctx, c.opts.StabilizationDelay)
}

func (c *Controller) acquire(ctx context.Context, autoStartDelay time.Duration) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrInvalidState
	}
	old := c.stream
	c.stream = nil
	c.epoch++
	c.countdown = 0
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	stream, err := c.device.Open(ctx)
	if err != nil {
		err = camera.Classify(c.device.Name(), err)
		log.Error().Err(err).Str("device", c.device.Name()).Msg("Failed to acquire camera stream")
		c.mu.Lock()
		c.setStateLocked(Idle)
		c.unlock()
		return err
	}

	c.mu.Lock()
	if c.closed || c.stream != nil {
		// Closed, or another acquire won the race; keep theirs.
		c.mu.Unlock()
		stream.Close()
		return ErrInvalidState
	}
	c.stream = stream
	c.setStateLocked(Streaming)
	c.scheduleAutoStartLocked(autoStartDelay)
	c.unlock()

	log.Info().Str("device", c.device.Name()).Msg("Camera stream acquired")
	return nil
}

// scheduleAutoStartLocked starts a countdown after delay unless something
// else happens first.
func (c *Controller) scheduleAutoStartLocked(delay time.Duration) {
	if c.opts.DisableAutoStart {
		return
	}
	epoch := c.epoch
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.opts.Sleep(c.ctx, delay); err != nil {
			return
		}
		c.mu.Lock()
		if c.epoch != epoch || !c.canStartLocked() {
			c.mu.Unlock()
			return
		}
		c.beginCountdownLocked()
		c.unlock()
	}()
}

func (c *Controller) canStartLocked() bool {
	return c.stream != nil && c.state == Streaming && !c.slots[c.cursor].Filled()
}

// StartCountdown starts the countdown for the cursor slot. It is a no-op
// while a countdown is already running.
func (c *Controller) StartCountdown(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.state == Countdown {
		c.mu.Unlock()
		return nil
	}
	if !c.canStartLocked() {
		c.mu.Unlock()
		return fmt.Errorf("start countdown in %s: %w", c.state, ErrInvalidState)
	}
	c.beginCountdownLocked()
	c.unlock()
	return nil
}

func (c *Controller) beginCountdownLocked() {
	c.epoch++
	epoch := c.epoch
	c.setStateLocked(Countdown)
	c.setCountdownLocked(c.opts.CountdownSeconds)

	c.wg.Add(1)
	go c.runCountdown(epoch)
}

func (c *Controller) runCountdown(epoch uint64) {
	defer c.wg.Done()
	for {
		if err := c.opts.Sleep(c.ctx, c.opts.Tick); err != nil {
			return
		}
		c.mu.Lock()
		if c.epoch != epoch {
			c.mu.Unlock()
			return
		}
		if c.countdown > 1 {
			c.setCountdownLocked(c.countdown - 1)
			c.unlock()
			continue
		}
		c.countdown = 0
		c.mu.Unlock()

		if err := c.capture(epoch); err != nil {
			log.Warn().Err(err).Msg("Countdown capture failed")
		}
		return
	}
}

// Capture snapshots the current frame into the cursor slot at native
// resolution. It is valid while Streaming or counting down with an empty
// cursor slot.
func (c *Controller) Capture() error {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()
	return c.capture(epoch)
}

func (c *Controller) capture(epoch uint64) error {
	c.mu.Lock()
	if c.epoch != epoch || c.stream == nil || (c.state != Streaming && c.state != Countdown) || c.slots[c.cursor].Filled() {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("capture in %s: %w", state, ErrInvalidState)
	}
	stream, slot := c.stream, c.cursor
	c.mu.Unlock()

	frame, err := stream.Frame()
	if err == nil {
		frame = clone(frame)
	}

	c.mu.Lock()
	if c.epoch != epoch || c.stream != stream || c.cursor != slot {
		c.mu.Unlock()
		return fmt.Errorf("capture superseded: %w", ErrInvalidState)
	}
	c.epoch++
	c.countdown = 0
	if err != nil {
		err = camera.Classify(c.device.Name(), err)
		c.setStateLocked(Streaming)
		c.pending = append(c.pending, func(l Listener) { l.CaptureFailed(slot, err) })
		c.unlock()
		log.Error().Err(err).Int("slot", slot).Msg("Failed to capture frame")
		return err
	}

	c.slots[slot].Raw = frame
	c.slots[slot].Styled = nil
	c.slots[slot].Generation++
	c.pending = append(c.pending, func(l Listener) { l.Captured(slot) })
	c.setStateLocked(Captured)
	c.unlock()

	log.Info().
		Int("slot", slot).
		Int("width", frame.Bounds().Dx()).
		Int("height", frame.Bounds().Dy()).
		Msg("Photo captured")
	return nil
}

// Advance moves the cursor to the next empty slot and lets the auto-start
// rule count down for it. When every slot is filled the stream is released
// and the controller is Finished.
func (c *Controller) Advance(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.state != Captured {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("advance in %s: %w", state, ErrInvalidState)
	}

	next := c.nextEmptyLocked()
	if next < 0 {
		stream := c.stream
		c.stream = nil
		c.epoch++
		c.setStateLocked(Finished)
		c.unlock()
		if stream != nil {
			stream.Close()
		}
		log.Info().Msg("All photos captured, camera released")
		return nil
	}

	c.cursor = next
	c.setStateLocked(Streaming)
	c.scheduleAutoStartLocked(c.opts.StabilizationDelay)
	c.unlock()
	return nil
}

// nextEmptyLocked finds the first empty slot after the cursor, wrapping
// around, or -1 when all are filled.
func (c *Controller) nextEmptyLocked() int {
	for k := 1; k <= NumSlots; k++ {
		i := (c.cursor + k) % NumSlots
		if !c.slots[i].Filled() {
			return i
		}
	}
	return -1
}

// Retake clears the cursor slot and counts down for it again.
func (c *Controller) Retake(ctx context.Context) error {
	c.mu.Lock()
	cursor := c.cursor
	c.mu.Unlock()
	return c.RetakeSlot(ctx, cursor)
}

// RetakeSlot clears slot i (raw and styled), moves the cursor to it, makes
// sure the stream is active, and restarts the countdown after the retake
// delay. A running countdown is superseded.
func (c *Controller) RetakeSlot(ctx context.Context, i int) error {
	if i < 0 || i >= NumSlots {
		return fmt.Errorf("retake slot %d: %w", i, ErrInvalidState)
	}
	c.mu.Lock()
	if c.state == Idle || c.closed {
		c.mu.Unlock()
		return fmt.Errorf("retake in %s: %w", c.state, ErrInvalidState)
	}
	c.slots[i] = Slot{Generation: c.slots[i].Generation + 1}
	c.pending = append(c.pending, func(l Listener) { l.SlotCleared(i) })
	c.cursor = i
	c.epoch++
	if c.state == Countdown {
		c.setCountdownLocked(0)
	}
	needStream := c.stream == nil
	if !needStream {
		c.setStateLocked(Streaming)
		c.scheduleAutoStartLocked(c.opts.RetakeDelay)
	}
	c.unlock()

	log.Info().Int("slot", i).Bool("reacquire", needStream).Msg("Retaking photo")

	if needStream {
		return c.acquire(ctx, c.opts.RetakeDelay)
	}
	return nil
}

// Reset releases the stream and empties every slot.
func (c *Controller) Reset() {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.epoch++
	for i := range c.slots {
		c.slots[i] = Slot{Generation: c.slots[i].Generation + 1}
	}
	c.cursor = 0
	c.countdown = 0
	c.setStateLocked(Idle)
	c.unlock()

	if stream != nil {
		stream.Close()
	}
}

// RawForStyling returns slot i's raw image and the generation it belongs to.
func (c *Controller) RawForStyling(i int) (image.Image, uint64, bool) {
	if i < 0 || i >= NumSlots {
		return nil, 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.slots[i]
	return s.Raw, s.Generation, s.Raw != nil
}

// CommitStyled stores a styled image for slot i if the slot still holds the
// raw image of generation gen. It reports whether the image was stored.
func (c *Controller) CommitStyled(i int, gen uint64, styled image.Image) bool {
	if i < 0 || i >= NumSlots {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slots[i].Generation != gen || c.slots[i].Raw == nil {
		log.Warn().Int("slot", i).Uint64("issued_gen", gen).Uint64("current_gen", c.slots[i].Generation).Msg("Dropping stale styled image")
		return false
	}
	c.slots[i].Styled = styled
	return true
}

// ClearStyled drops every slot's styled image, keeping the raw captures.
func (c *Controller) ClearStyled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.slots {
		c.slots[i].Styled = nil
	}
}

// Close stops background work and releases the stream.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	stream := c.stream
	c.stream = nil
	c.epoch++
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	if stream != nil {
		return stream.Close()
	}
	return nil
}

// clone copies img into a fresh RGBA so the slot never aliases a device buffer.
func clone(img image.Image) image.Image {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	return out
}
