package camera

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/vova616/screenshot"
)

// ScreenDevice captures a region of the display. On kiosk hardware the
// camera preview is mirrored into a window over HDMI, so the display is the
// camera. A zero Rect captures the whole screen.
type ScreenDevice struct {
	Rect image.Rectangle

	lock exclusive

	// Overridable for tests.
	screenRect  func() (image.Rectangle, error)
	captureRect func(image.Rectangle) (*image.RGBA, error)
}

// NewScreenDevice returns a device capturing rect, or the whole screen when
// rect is empty.
func NewScreenDevice(rect image.Rectangle) *ScreenDevice {
	return &ScreenDevice{
		Rect:        rect,
		screenRect:  screenshot.ScreenRect,
		captureRect: screenshot.CaptureRect,
	}
}

// Name implements Device.
func (d *ScreenDevice) Name() string {
	return "screen"
}

// Open implements Device.
func (d *ScreenDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.lock.acquire(d.Name()); err != nil {
		return nil, err
	}

	screen, err := d.screenRect()
	if err != nil {
		d.lock.release()
		return nil, Classify(d.Name(), fmt.Errorf("failed to query screen: %w", err))
	}

	rect := screen
	if !d.Rect.Empty() {
		rect = d.Rect.Intersect(screen)
		if rect.Empty() {
			d.lock.release()
			return nil, &Error{Kind: DeviceNotFound, Device: d.Name(), Err: fmt.Errorf("capture region %v is off screen %v", d.Rect, screen)}
		}
	}

	log.Info().
		Str("device", d.Name()).
		Str("region", rect.String()).
		Msg("Screen camera opened")

	return &screenStream{device: d, rect: rect}, nil
}

type screenStream struct {
	device *ScreenDevice
	rect   image.Rectangle

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

func (s *screenStream) Frame() (image.Image, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("screen stream closed")
	}

	img, err := s.device.captureRect(s.rect)
	if err != nil {
		return nil, Classify(s.device.Name(), fmt.Errorf("failed to capture screen: %w", err))
	}
	return img, nil
}

func (s *screenStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.device.lock.release()
		log.Debug().Str("device", s.device.Name()).Msg("Screen camera released")
	})
	return nil
}
