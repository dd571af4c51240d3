package main

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/fpang/photo-booth/internal/booth"
	"github.com/fpang/photo-booth/internal/camera"
	"github.com/fpang/photo-booth/internal/capture"
	"github.com/fpang/photo-booth/internal/collage"
	"github.com/fpang/photo-booth/internal/generation"
	"github.com/fpang/photo-booth/internal/style"
	"github.com/rs/zerolog/log"
)

// job is one offline collage.
type job struct {
	Photos    []image.Image
	Selection style.Selection
	Caption   string
	Style     style.Config
}

// result is what the run produced.
type result struct {
	Collage *collage.Result
	Status  booth.Status
	Elapsed time.Duration
}

func instantSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// runJob feeds the photos through a booth session as if they were taken
// live, then applies the selected styles.
func runJob(ctx context.Context, j job, svc generation.Service, composer style.Composer) (*result, error) {
	start := time.Now()
	device := &camera.ImageDevice{Images: j.Photos}
	session, err := booth.NewSession(device, svc, composer, booth.Options{
		Capture: capture.Options{
			CountdownSeconds:   1,
			Tick:               time.Millisecond,
			StabilizationDelay: -1,
			RetakeDelay:        -1,
			Sleep:              instantSleep,
		},
		Style:   j.Style,
		Caption: j.Caption,
	})
	if err != nil {
		return nil, err
	}
	defer session.Close()

	// Styles are recorded before capture so the run does one styling pass.
	if err := session.SetBackgroundStyle(j.Selection.BackgroundID); err != nil {
		return nil, err
	}
	if err := session.SetSubjectStyle(j.Selection.SubjectID); err != nil {
		return nil, err
	}

	events, unsubscribe := session.Subscribe()
	defer unsubscribe()
	if err := session.Start(ctx); err != nil {
		return nil, err
	}
	if err := capturePhotos(ctx, session, events); err != nil {
		return nil, err
	}
	session.Wait()

	if j.Selection.HasSubject() || j.Selection.HasBackground() {
		if err := session.Apply(); err != nil {
			return nil, err
		}
		session.Wait()
	}

	res := session.Current()
	if res == nil {
		return nil, booth.ErrNoCollage
	}
	return &result{Collage: res, Status: session.Status(), Elapsed: time.Since(start)}, nil
}

// capturePhotos confirms each photo as it lands until the session finishes.
func capturePhotos(ctx context.Context, session *booth.Session, events <-chan booth.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return booth.ErrClosed
			}
			switch ev.Type {
			case booth.EventCaptured:
				log.Debug().Int("slot", *ev.Slot).Msg("Photo placed")
				if err := session.Advance(ctx); err != nil {
					return err
				}
			case booth.EventCaptureFailed:
				return fmt.Errorf("photo %d could not be placed: %s", *ev.Slot+1, ev.Message)
			case booth.EventState:
				if ev.State == capture.Finished.String() {
					return nil
				}
			}
		}
	}
}
