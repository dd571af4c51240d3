package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/fpang/photo-booth/internal/filehandler"
	"github.com/rs/zerolog/log"
)

// DefaultReplayHold is how long a replay frame stays on screen before the
// feed moves to the next still.
const DefaultReplayHold = 3 * time.Second

// ReplayDevice plays the still images of a directory as a looping feed.
// Images are ordered by EXIF capture time, falling back to file name, so a
// memory card dump replays in the order it was shot.
type ReplayDevice struct {
	Dir string
	// Hold is how long each still is shown. Zero advances on every Frame call.
	Hold time.Duration
	// Now is the clock used to pick the current still.
	Now func() time.Time

	lock exclusive
}

// NewReplayDevice returns a replay device for dir with the default hold.
func NewReplayDevice(dir string) *ReplayDevice {
	return &ReplayDevice{Dir: dir, Hold: DefaultReplayHold, Now: time.Now}
}

// Name implements Device.
func (d *ReplayDevice) Name() string {
	return "replay:" + d.Dir
}

// Open implements Device. An empty or missing directory is DeviceNotFound.
func (d *ReplayDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.lock.acquire(d.Name()); err != nil {
		return nil, err
	}

	files, err := filehandler.ScanImages(d.Dir, filehandler.ScanOptions{MaxDepth: 1})
	if err != nil {
		d.lock.release()
		return nil, Classify(d.Name(), err)
	}
	if len(files) == 0 {
		d.lock.release()
		return nil, &Error{Kind: DeviceNotFound, Device: d.Name(), Err: errors.New("no images in replay directory")}
	}
	OrderByCaptureTime(files)

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}

	log.Info().
		Str("device", d.Name()).
		Int("frames", len(paths)).
		Dur("hold", d.Hold).
		Msg("Replay camera opened")

	now := d.Now
	if now == nil {
		now = time.Now
	}
	return newSequenceStream(len(paths), d.Hold, now, func(i int) (image.Image, error) {
		return filehandler.DecodeImageFile(paths[i])
	}, d.lock.release), nil
}

// OrderByCaptureTime sorts files by EXIF date taken. Files without a date
// sort after dated ones, by path.
func OrderByCaptureTime(files []*filehandler.ImageFile) {
	sort.SliceStable(files, func(i, j int) bool {
		di, dj := dateOf(files[i]), dateOf(files[j])
		switch {
		case !di.IsZero() && !dj.IsZero() && !di.Equal(dj):
			return di.Before(dj)
		case !di.IsZero() && dj.IsZero():
			return true
		case di.IsZero() && !dj.IsZero():
			return false
		}
		return files[i].Path < files[j].Path
	})
}

func dateOf(f *filehandler.ImageFile) time.Time {
	if f.Metadata == nil || !f.Metadata.HasDate {
		return time.Time{}
	}
	return f.Metadata.DateTaken
}

// ImageDevice serves in-memory images as a feed. The offline CLI uses it to
// run explicit photo files through the capture flow, and tests use it as a
// deterministic camera.
type ImageDevice struct {
	Images []image.Image
	// Hold is how long each image is shown. Zero advances on every Frame call.
	Hold time.Duration
	Now  func() time.Time
	// OpenErr, when set, is returned (classified) by Open.
	OpenErr error

	lock exclusive
}

// Name implements Device.
func (d *ImageDevice) Name() string {
	return "images"
}

// Open implements Device.
func (d *ImageDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.OpenErr != nil {
		return nil, Classify(d.Name(), d.OpenErr)
	}
	if len(d.Images) == 0 {
		return nil, &Error{Kind: DeviceNotFound, Device: d.Name(), Err: errors.New("no images")}
	}
	if err := d.lock.acquire(d.Name()); err != nil {
		return nil, err
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	images := d.Images
	return newSequenceStream(len(images), d.Hold, now, func(i int) (image.Image, error) {
		return images[i], nil
	}, d.lock.release), nil
}

// sequenceStream walks a fixed list of frames, either on a timer or one per call.
type sequenceStream struct {
	n       int
	hold    time.Duration
	now     func() time.Time
	load    func(int) (image.Image, error)
	release func()

	mu      sync.Mutex
	opened  time.Time
	calls   int
	cached  image.Image
	cacheAt int
	closed  bool
}

func newSequenceStream(n int, hold time.Duration, now func() time.Time, load func(int) (image.Image, error), release func()) *sequenceStream {
	return &sequenceStream{
		n:       n,
		hold:    hold,
		now:     now,
		load:    load,
		release: release,
		opened:  now(),
		cacheAt: -1,
	}
}

func (s *sequenceStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("stream closed")
	}

	var idx int
	if s.hold <= 0 {
		idx = s.calls % s.n
		s.calls++
	} else {
		elapsed := max(s.now().Sub(s.opened), 0)
		idx = int(elapsed/s.hold) % s.n
	}

	if idx == s.cacheAt && s.cached != nil {
		return s.cached, nil
	}
	img, err := s.load(idx)
	if err != nil {
		return nil, fmt.Errorf("failed to load frame %d: %w", idx, err)
	}
	s.cached, s.cacheAt = img, idx
	return img, nil
}

func (s *sequenceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cached = nil
	s.release()
	return nil
}
