// Package booth ties the capture controller, the collage composer and the
// style orchestrator into one kiosk session.
package booth

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"time"

	"github.com/fpang/photo-booth/internal/camera"
	"github.com/fpang/photo-booth/internal/capture"
	"github.com/fpang/photo-booth/internal/collage"
	"github.com/fpang/photo-booth/internal/debounce"
	"github.com/fpang/photo-booth/internal/generation"
	"github.com/fpang/photo-booth/internal/metrics"
	"github.com/fpang/photo-booth/internal/style"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const jobQueueSize = 8

// Options configure a Session.
type Options struct {
	Capture capture.Options
	// Style is passed to the orchestrator. Its Caption hook is set by the
	// session.
	Style style.Config
	// CaptionDelay is the quiet period before a caption edit redraws the
	// collage.
	CaptionDelay time.Duration
	// Caption is the initial caption.
	Caption string
}

// job is a style pass bound to the guest that queued it.
type job struct {
	name  string
	guest context.Context
	run   func(ctx context.Context) error
}

// Session is one guest's run through the booth. All methods are safe for
// concurrent use.
type Session struct {
	ctrl     *capture.Controller
	composer *sequencedComposer
	orch     *style.Orchestrator
	redraw   *debounce.Debouncer
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	jobs   chan job

	mu   sync.Mutex
	idle *sync.Cond
	busy int
	// guest is canceled by Reset, which drops the guest's in-flight work.
	guest       context.Context
	cancelGuest context.CancelFunc
	id          string
	selection   style.Selection
	caption     string
	loading     bool
	lastErr     string

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
	closed  bool
}

// NewSession wires a session around device, svc and composer and starts its
// style worker. Close releases it.
func NewSession(device camera.Device, svc generation.Service, composer style.Composer, opts Options) (*Session, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ctrl:    capture.NewController(device, opts.Capture),
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(chan job, jobQueueSize),
		id:      uuid.NewString(),
		caption: opts.Caption,
		subs:    make(map[int]chan Event),
	}
	s.idle = sync.NewCond(&s.mu)
	s.guest, s.cancelGuest = context.WithCancel(ctx)
	s.composer = &sequencedComposer{inner: composer, publish: s.published}

	styleCfg := opts.Style
	styleCfg.Caption = s.Caption
	orch, err := style.NewOrchestrator(svc, s.ctrl, s.composer, styleCfg)
	if err != nil {
		cancel()
		return nil, err
	}
	s.orch = orch
	s.redraw = debounce.New(opts.CaptionDelay, s.redrawCaption)

	s.ctrl.AddListener(capture.ListenerFuncs{
		OnState: func(st capture.State) {
			// The preview is counted as pending before anyone hears of
			// Finished, so Wait after the event covers it.
			if st == capture.Finished {
				s.goRender("preview")
			}
			s.emit(Event{Type: EventState, State: st.String()})
		},
		OnCountdown: func(n int) {
			s.emit(Event{Type: EventCountdown, Countdown: n})
		},
		OnCapture: func(slot int) {
			s.emit(Event{Type: EventCaptured, Slot: slotRef(slot)})
		},
		OnCaptureFailed: func(slot int, err error) {
			s.report(err)
			s.emit(Event{Type: EventCaptureFailed, Slot: slotRef(slot), Message: UserMessage(err)})
		},
		OnCleared: func(slot int) {
			s.emit(Event{Type: EventSlotCleared, Slot: slotRef(slot)})
		},
	})

	s.wg.Add(1)
	go s.worker()

	log.Info().Str("session", s.id).Str("device", device.Name()).Msg("Booth session created")
	return s, nil
}

// ID returns the current session ID. Reset assigns a new one.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Catalog returns the style catalog in use.
func (s *Session) Catalog() *style.Catalog {
	return s.orch.Catalog()
}

// Caption returns the current caption.
func (s *Session) Caption() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caption
}

// Selection returns the current style selection.
func (s *Session) Selection() style.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// Start acquires the camera. The first countdown begins on its own once the
// feed has settled.
func (s *Session) Start(ctx context.Context) error {
	s.clearError()
	if err := s.ctrl.AcquireStream(ctx); err != nil {
		s.report(err)
		return err
	}
	return nil
}

// StartCountdown starts the countdown for the current slot.
func (s *Session) StartCountdown(ctx context.Context) error {
	return s.ctrl.StartCountdown(ctx)
}

// Advance confirms the photo just taken and moves on.
func (s *Session) Advance(ctx context.Context) error {
	return s.ctrl.Advance(ctx)
}

// Retake clears a slot and counts down for it again. A nil slot retakes the
// current one.
func (s *Session) Retake(ctx context.Context, slot *int) error {
	var err error
	if slot == nil {
		err = s.ctrl.Retake(ctx)
	} else {
		err = s.ctrl.RetakeSlot(ctx, *slot)
	}
	var ce *camera.Error
	if errors.As(err, &ce) {
		s.report(err)
	}
	return err
}

// Frame returns the live camera frame.
func (s *Session) Frame() (image.Image, error) {
	return s.ctrl.Frame()
}

// Snapshot returns a copy of the capture session.
func (s *Session) Snapshot() capture.Snapshot {
	return s.ctrl.Snapshot()
}

// SlotImage returns one slot's photo. variant is "raw", "styled" or "" for
// whichever is current.
func (s *Session) SlotImage(i int, variant string) (image.Image, error) {
	if i < 0 || i >= capture.NumSlots {
		return nil, fmt.Errorf("slot %d: %w", i, ErrInvalidSlot)
	}
	slot := s.ctrl.Snapshot().Slots[i]
	var img image.Image
	switch variant {
	case "raw":
		img = slot.Raw
	case "styled":
		img = slot.Styled
	case "":
		img = slot.Current()
	default:
		return nil, fmt.Errorf("unknown variant %q: %w", variant, ErrInvalidSlot)
	}
	if img == nil {
		return nil, fmt.Errorf("slot %d has no %s image: %w", i, variant, style.ErrSlotEmpty)
	}
	return img, nil
}

// Current returns the collage on screen, or nil.
func (s *Session) Current() *collage.Result {
	return s.composer.Current()
}

// SetCaption records the caption and schedules a redraw of the current
// collage after the quiet period. It never triggers a style request.
func (s *Session) SetCaption(text string) {
	s.mu.Lock()
	changed := s.caption != text
	s.caption = text
	s.mu.Unlock()
	if changed {
		s.redraw.Trigger()
	}
}

// SetSubjectStyle records the subject style and, when any photo has been
// taken, queues a restyle of the taken photos. "" clears the styling.
func (s *Session) SetSubjectStyle(id string) error {
	if id != "" {
		if _, err := s.Catalog().Subject(id); err != nil {
			return err
		}
	}
	s.mu.Lock()
	changed := s.selection.SubjectID != id
	s.selection.SubjectID = id
	s.mu.Unlock()

	if !changed || len(s.ctrl.Snapshot().Filled()) == 0 {
		return nil
	}
	return s.enqueue(job{name: "restyle", run: func(ctx context.Context) error {
		_, err := s.orch.Restyle(ctx, id)
		return err
	}})
}

// SetBackgroundStyle records the background style. The background is only
// generated by Apply.
func (s *Session) SetBackgroundStyle(id string) error {
	if id != "" {
		if _, err := s.Catalog().Background(id); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.selection.BackgroundID = id
	s.mu.Unlock()
	return nil
}

// Apply queues a full styling pass with the current selection.
func (s *Session) Apply() error {
	if !s.ctrl.Snapshot().Complete() {
		return ErrSessionIncomplete
	}
	sel := s.Selection()
	return s.enqueue(job{name: "apply_all", run: func(ctx context.Context) error {
		_, err := s.orch.ApplyAll(ctx, sel)
		return err
	}})
}

// Export writes the current collage as PNG into dir and returns its path.
func (s *Session) Export(dir string) (string, error) {
	res := s.Current()
	if res == nil {
		return "", ErrNoCollage
	}
	name := fmt.Sprintf("booth-%s-%s.png", res.RenderedAt.Format("20060102-150405"), s.ID()[:8])
	path := filepath.Join(dir, name)
	if err := res.WritePNG(path); err != nil {
		return "", err
	}

	metrics.New(metrics.Namespace).
		Dimension("Operation", "export").
		Property("sessionId", s.ID()).
		Property("styled", res.Styled).
		Count("CollagesExported").
		Flush()
	return path, nil
}

// Reset ends the guest's session: the camera is released, every slot is
// emptied and a new session ID is assigned. Style passes and renders still
// in flight for the previous guest are canceled and their results dropped.
func (s *Session) Reset() {
	s.mu.Lock()
	s.cancelGuest()
	s.guest, s.cancelGuest = context.WithCancel(s.ctx)
	s.mu.Unlock()

	s.redraw.Cancel()
	s.orch.ResetBackground()
	s.ctrl.Reset()
	s.composer.reset()

	s.mu.Lock()
	old := s.id
	s.id = uuid.NewString()
	s.selection = style.Selection{}
	s.caption = s.opts.Caption
	s.lastErr = ""
	s.mu.Unlock()

	log.Info().Str("previous", old).Str("session", s.ID()).Msg("Booth session reset")
	s.emit(Event{Type: EventCollage})
}

// Wait blocks until no caption redraw, preview or style pass is pending.
func (s *Session) Wait() {
	s.redraw.Flush()
	s.mu.Lock()
	for s.busy > 0 {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// Close stops the worker and releases the camera. Queued passes are
// abandoned.
func (s *Session) Close() error {
	s.redraw.Stop()
	s.cancel()
	s.mu.Lock()
	s.cancelGuest()
	s.mu.Unlock()
	err := s.ctrl.Close()
	s.wg.Wait()
	s.closeSubscribers()
	return err
}

func (s *Session) enqueue(j job) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	j.guest = s.guestContext()
	s.begin()
	select {
	case s.jobs <- j:
		log.Debug().Str("job", j.name).Msg("Style pass queued")
		return nil
	case <-s.ctx.Done():
		s.end()
		return ErrClosed
	}
}

// worker runs style passes one at a time in the order they were queued.
func (s *Session) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.drain()
			return
		case j := <-s.jobs:
			s.runJob(j)
		}
	}
}

func (s *Session) drain() {
	for {
		select {
		case <-s.jobs:
			s.end()
		default:
			return
		}
	}
}

func (s *Session) runJob(j job) {
	defer s.end()
	s.setLoading(true)
	defer s.setLoading(false)

	start := time.Now()
	err := j.run(j.guest)
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, style.ErrPassSuperseded) || j.guest.Err() != nil:
		result = "superseded"
		log.Info().Err(err).Str("job", j.name).Msg("Style pass belonged to a previous guest")
	default:
		result = "error"
		s.report(err)
	}
	metrics.New(metrics.Namespace).
		Dimension("Operation", j.name).
		Dimension("Result", result).
		Since("SessionJobLatencyMs", start).
		Count("SessionJobs").
		Flush()
	log.Info().Str("job", j.name).Str("result", result).Dur("duration", time.Since(start)).Msg("Style pass finished")
}

func (s *Session) goRender(reason string) {
	ctx := s.guestContext()
	s.begin()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.end()
		if err := s.render(ctx); err != nil {
			log.Warn().Err(err).Str("reason", reason).Msg("Collage render failed")
		}
	}()
}

func (s *Session) redrawCaption() {
	s.begin()
	defer s.end()
	if err := s.render(s.guestContext()); err != nil {
		log.Warn().Err(err).Str("reason", "caption").Msg("Collage render failed")
	}
}

// render composes the collage from what the session holds now: the raw
// preview until anything is styled, the final layout afterwards.
func (s *Session) render(ctx context.Context) error {
	snap := s.ctrl.Snapshot()
	if !snap.Complete() {
		return nil
	}
	background := s.orch.Background()
	styled := background != nil
	var sources [capture.NumSlots]collage.Source
	for i, slot := range snap.Slots {
		if slot.Styled != nil {
			styled = true
		}
		sources[i] = collage.FromImage(slot.Current())
	}

	caption := s.Caption()
	req := collage.PreviewRequest(sources, caption)
	if styled {
		req = collage.FinalRequest(sources, collage.FromImage(background), caption)
	}
	_, err := s.composer.Compose(ctx, req)
	return err
}

func (s *Session) guestContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guest
}

func (s *Session) published(res *collage.Result, seq uint64) {
	s.emit(Event{Type: EventCollage, Styled: res.Styled, Seq: seq})
}

func (s *Session) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
	s.emit(Event{Type: EventLoading, Loading: v})
}

// report logs err and, when it is meant for guests, shows it.
func (s *Session) report(err error) {
	msg := UserMessage(err)
	if msg == "" {
		log.Warn().Err(err).Msg("Session operation failed")
		return
	}
	log.Error().Err(err).Str("message", msg).Msg("Session error")
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
	s.emit(Event{Type: EventError, Message: msg})
}

func (s *Session) clearError() {
	s.mu.Lock()
	s.lastErr = ""
	s.mu.Unlock()
}

func (s *Session) begin() {
	s.mu.Lock()
	s.busy++
	s.mu.Unlock()
}

func (s *Session) end() {
	s.mu.Lock()
	s.busy--
	if s.busy == 0 {
		s.idle.Broadcast()
	}
	s.mu.Unlock()
}
