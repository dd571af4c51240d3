package style

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/fpang/photo-booth/internal/assets"
	"github.com/fpang/photo-booth/internal/capture"
	"github.com/fpang/photo-booth/internal/collage"
	"github.com/fpang/photo-booth/internal/filehandler"
	"github.com/fpang/photo-booth/internal/generation"
	"github.com/fpang/photo-booth/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Defaults for Config.
const (
	DefaultAspectRatio     = "3:4"
	DefaultSampleImageSize = "2K"
)

// ErrBackgroundGenerationFailed is returned when no background image could
// be produced.
var ErrBackgroundGenerationFailed = errors.New("background generation failed")

// ErrSlotEmpty is returned when styling is requested for a slot without a
// raw capture.
var ErrSlotEmpty = errors.New("slot has no capture")

// ErrPassSuperseded is returned by a pass that was still running when
// ResetBackground started a new guest. Its results are discarded.
var ErrPassSuperseded = errors.New("style pass superseded by reset")

// StylizeFailedError reports a slot for which every step of the per-photo
// policy failed.
type StylizeFailedError struct {
	Slot int
	Err  error
}

func (e *StylizeFailedError) Error() string {
	return fmt.Sprintf("stylize failed for slot %d: %v", e.Slot, e.Err)
}

func (e *StylizeFailedError) Unwrap() error {
	return e.Err
}

// Slots is the capture state the orchestrator reads and writes.
// *capture.Controller implements it.
type Slots interface {
	Snapshot() capture.Snapshot
	RawForStyling(i int) (image.Image, uint64, bool)
	CommitStyled(i int, gen uint64, styled image.Image) bool
	ClearStyled()
}

// Composer renders collages. *collage.Composer implements it.
type Composer interface {
	Compose(ctx context.Context, req collage.Request) (*collage.Result, error)
}

// Config configures an Orchestrator.
type Config struct {
	Catalog *Catalog
	// AspectRatio and SampleImageSize are used for background requests.
	AspectRatio     string
	SampleImageSize string
	// ImageModel and StylizeModel are passed through to the service; empty
	// leaves the choice to the service.
	ImageModel   string
	StylizeModel string
	// JPEGQuality is used to encode raw captures for upload.
	JPEGQuality int
	// Caption returns the caption to render. Nil renders no caption.
	Caption func() string
}

// step is one attempt in the per-photo policy.
type step struct {
	name string
	run  func(ctx context.Context, prompt string, photo []byte) (*generation.Response, error)
}

// SlotOutcome describes how one slot was styled.
type SlotOutcome struct {
	Slot int
	// Step is the policy step that produced the image: "stylize" or
	// "generate".
	Step string
	// Committed is false when the slot was retaken while the request was in
	// flight and the result was dropped.
	Committed bool
}

// PassOutcome summarizes an apply-all or restyle pass.
type PassOutcome struct {
	Slots      []SlotOutcome
	Background image.Image
	Result     *collage.Result
}

// Orchestrator runs styling passes. Passes are serialized: a pass started
// while another runs waits for it. Within a pass, per-photo requests are
// issued one at a time in slot order.
type Orchestrator struct {
	svc      generation.Service
	slots    Slots
	composer Composer
	cfg      Config
	policy   []step

	passMu     sync.Mutex
	mu         sync.Mutex
	background image.Image
	// epoch counts resets. A pass only publishes if it is unchanged.
	epoch uint64
}

// NewOrchestrator wires the service, capture slots and composer together.
func NewOrchestrator(svc generation.Service, slots Slots, composer Composer, cfg Config) (*Orchestrator, error) {
	if cfg.Catalog == nil {
		c, err := DefaultCatalog()
		if err != nil {
			return nil, err
		}
		cfg.Catalog = c
	}
	if cfg.AspectRatio == "" {
		cfg.AspectRatio = DefaultAspectRatio
	}
	if cfg.SampleImageSize == "" {
		cfg.SampleImageSize = DefaultSampleImageSize
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = filehandler.DefaultJPEGQuality
	}
	o := &Orchestrator{svc: svc, slots: slots, composer: composer, cfg: cfg}
	o.policy = []step{
		{name: "stylize", run: o.stylizeStep},
		{name: "generate", run: o.textOnlyStep},
	}
	return o, nil
}

// Catalog returns the style catalog in use.
func (o *Orchestrator) Catalog() *Catalog {
	return o.cfg.Catalog
}

// Background returns the background used by the last published collage.
func (o *Orchestrator) Background() image.Image {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.background
}

// ResetBackground forgets the generated background and supersedes every
// pass still in flight.
func (o *Orchestrator) ResetBackground() {
	o.mu.Lock()
	o.background = nil
	o.epoch++
	o.mu.Unlock()
}

// state returns the background and reset epoch together.
func (o *Orchestrator) state() (image.Image, uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.background, o.epoch
}

func (o *Orchestrator) superseded(epoch uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.epoch != epoch
}

func (o *Orchestrator) stylizeStep(ctx context.Context, prompt string, photo []byte) (*generation.Response, error) {
	return o.svc.Stylize(ctx, generation.StylizeRequest{
		Prompt:         prompt,
		NumberOfImages: 1,
		Model:          o.cfg.StylizeModel,
		Image:          photo,
		ImageMIMEType:  "image/jpeg",
	})
}

func (o *Orchestrator) textOnlyStep(ctx context.Context, prompt string, _ []byte) (*generation.Response, error) {
	return o.svc.Generate(ctx, generation.GenerateRequest{
		Prompt:         prompt,
		NumberOfImages: 1,
		Model:          o.cfg.ImageModel,
	})
}

// StylizeSlot styles slot i with the given subject style. The stylize step
// is tried first; on any failure, including an empty or undecodable reply,
// a text-only generate with the same prompt is tried once. Only when both
// fail is a *StylizeFailedError returned.
func (o *Orchestrator) StylizeSlot(ctx context.Context, i int, subjectID string) (*SlotOutcome, error) {
	o.passMu.Lock()
	defer o.passMu.Unlock()

	subject, err := o.cfg.Catalog.Subject(subjectID)
	if err != nil {
		return nil, err
	}
	return o.stylizeSlot(ctx, i, subject)
}

func (o *Orchestrator) stylizeSlot(ctx context.Context, i int, subject Style) (*SlotOutcome, error) {
	raw, gen, ok := o.slots.RawForStyling(i)
	if !ok {
		return nil, fmt.Errorf("slot %d: %w", i, ErrSlotEmpty)
	}
	photo, err := filehandler.EncodeJPEG(raw, o.cfg.JPEGQuality)
	if err != nil {
		return nil, &StylizeFailedError{Slot: i, Err: err}
	}
	prompt := assets.RenderSubjectPrompt(subject.Prompt)

	var errs []error
	for n, s := range o.policy {
		start := time.Now()
		img, err := runStep(ctx, s, prompt, photo)
		metrics.New(metrics.Namespace).
			Dimension("Operation", "stylize_slot").
			Dimension("Step", s.name).
			Dimension("Result", resultLabel(err)).
			Since("StyleStepLatencyMs", start).
			Count("StyleSteps").
			Flush()

		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			if n+1 < len(o.policy) {
				log.Warn().
					Err(err).
					Int("slot", i).
					Str("step", s.name).
					Str("next", o.policy[n+1].name).
					Msg("Style step failed, falling back")
			}
			continue
		}

		committed := o.slots.CommitStyled(i, gen, img)
		log.Info().
			Int("slot", i).
			Str("style", subject.ID).
			Str("step", s.name).
			Bool("committed", committed).
			Dur("duration", time.Since(start)).
			Msg("Slot styled")
		return &SlotOutcome{Slot: i, Step: s.name, Committed: committed}, nil
	}

	log.Error().Int("slot", i).Str("style", subject.ID).Msg("Every style step failed")
	return nil, &StylizeFailedError{Slot: i, Err: errors.Join(errs...)}
}

func runStep(ctx context.Context, s step, prompt string, photo []byte) (image.Image, error) {
	resp, err := s.run(ctx, prompt, photo)
	if err != nil {
		return nil, err
	}
	return resp.First()
}

// GenerateBackground produces one background image for the given style at
// the configured aspect ratio and size tier.
func (o *Orchestrator) GenerateBackground(ctx context.Context, backgroundID string) (image.Image, error) {
	bg, err := o.cfg.Catalog.Background(backgroundID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := o.svc.Generate(ctx, generation.GenerateRequest{
		Prompt:          assets.RenderBackgroundPrompt(bg.Prompt, o.cfg.AspectRatio),
		NumberOfImages:  1,
		AspectRatio:     o.cfg.AspectRatio,
		SampleImageSize: o.cfg.SampleImageSize,
		Model:           o.cfg.ImageModel,
	})
	var img image.Image
	if err == nil {
		img, err = resp.First()
	}
	metrics.New(metrics.Namespace).
		Dimension("Operation", "background").
		Dimension("Result", resultLabel(err)).
		Since("StyleStepLatencyMs", start).
		Count("StyleSteps").
		Flush()
	if err != nil {
		log.Error().Err(err).Str("style", bg.ID).Msg("Background generation failed")
		return nil, fmt.Errorf("%w: %w", ErrBackgroundGenerationFailed, err)
	}

	log.Info().Str("style", bg.ID).Dur("duration", time.Since(start)).Msg("Background generated")
	return img, nil
}

// ApplyAll runs a full styling pass for sel: every filled slot is styled in
// slot order when a subject style is selected, one background is generated
// when a background style is selected, and the final collage is composed
// with styled-or-raw sources and the new background (or none).
//
// Per-slot and background failures do not stop the pass; they are returned
// joined alongside the outcome. A background failure leaves the collage
// without a background and keeps the styled photos.
func (o *Orchestrator) ApplyAll(ctx context.Context, sel Selection) (*PassOutcome, error) {
	o.passMu.Lock()
	defer o.passMu.Unlock()

	if err := o.cfg.Catalog.Validate(sel); err != nil {
		return nil, err
	}

	_, epoch := o.state()
	start := time.Now()
	log.Info().
		Str("subject", sel.SubjectID).
		Str("background", sel.BackgroundID).
		Msg("Apply-all pass started")

	out := &PassOutcome{}
	var errs []error

	if sel.HasSubject() {
		subject, _ := o.cfg.Catalog.Subject(sel.SubjectID)
		slotOutcomes, slotErrs := o.styleFilled(ctx, subject, epoch)
		out.Slots = slotOutcomes
		errs = append(errs, slotErrs...)
	}

	if sel.HasBackground() && !o.superseded(epoch) {
		bg, err := o.GenerateBackground(ctx, sel.BackgroundID)
		if err != nil {
			errs = append(errs, err)
		}
		out.Background = bg
	}
	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		log.Warn().Errs("errors", errs).Msg("Apply-all pass superseded by reset, discarding")
		return nil, ErrPassSuperseded
	}
	o.background = out.Background
	o.mu.Unlock()

	res, err := o.composeFinal(ctx, out.Background)
	if err != nil {
		return out, errors.Join(append(errs, err)...)
	}
	out.Result = res

	metrics.New(metrics.Namespace).
		Dimension("Operation", "apply_all").
		Dimension("Result", resultLabel(errors.Join(errs...))).
		Since("StylePassLatencyMs", start).
		Flush()
	return out, errors.Join(errs...)
}

// Restyle runs a subject-only pass: every filled slot is restyled with
// subjectID and, once all slots are filled, the collage is recomposed with
// the current background. An empty subjectID clears all styled photos
// instead.
func (o *Orchestrator) Restyle(ctx context.Context, subjectID string) (*PassOutcome, error) {
	o.passMu.Lock()
	defer o.passMu.Unlock()

	background, epoch := o.state()
	out := &PassOutcome{Background: background}
	var errs []error

	if subjectID == "" {
		o.slots.ClearStyled()
		log.Info().Msg("Subject style cleared")
	} else {
		subject, err := o.cfg.Catalog.Subject(subjectID)
		if err != nil {
			return nil, err
		}
		log.Info().Str("subject", subject.ID).Msg("Restyle pass started")
		out.Slots, errs = o.styleFilled(ctx, subject, epoch)
	}

	if o.superseded(epoch) {
		log.Warn().Errs("errors", errs).Msg("Restyle pass superseded by reset, discarding")
		return nil, ErrPassSuperseded
	}
	if !o.slots.Snapshot().Complete() {
		return out, errors.Join(errs...)
	}
	res, err := o.composeFinal(ctx, out.Background)
	if err != nil {
		return out, errors.Join(append(errs, err)...)
	}
	out.Result = res
	return out, errors.Join(errs...)
}

// styleFilled styles every filled slot strictly one after another. It stops
// once the epoch moves, so a superseded pass never touches the next guest's
// photos.
func (o *Orchestrator) styleFilled(ctx context.Context, subject Style, epoch uint64) ([]SlotOutcome, []error) {
	var outcomes []SlotOutcome
	var errs []error
	for _, i := range o.slots.Snapshot().Filled() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if o.superseded(epoch) {
			break
		}
		res, err := o.stylizeSlot(ctx, i, subject)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		outcomes = append(outcomes, *res)
	}
	return outcomes, errs
}

func (o *Orchestrator) composeFinal(ctx context.Context, background image.Image) (*collage.Result, error) {
	snap := o.slots.Snapshot()
	var sources [capture.NumSlots]collage.Source
	for i, s := range snap.Slots {
		sources[i] = collage.FromImage(s.Current())
	}
	caption := ""
	if o.cfg.Caption != nil {
		caption = o.cfg.Caption()
	}

	res, err := o.composer.Compose(ctx, collage.FinalRequest(sources, collage.FromImage(background), caption))
	if err != nil {
		return nil, fmt.Errorf("failed to compose final collage: %w", err)
	}
	return res, nil
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return generation.TypeOf(err).String()
}
