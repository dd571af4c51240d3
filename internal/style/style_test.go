package style

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"

	"github.com/fpang/photo-booth/internal/capture"
	"github.com/fpang/photo-booth/internal/collage"
	"github.com/fpang/photo-booth/internal/filehandler"
	"github.com/fpang/photo-booth/internal/generation"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func pngResponse(t *testing.T, c color.RGBA) *generation.Response {
	t.Helper()
	data, err := filehandler.EncodePNG(solid(16, 16, c))
	if err != nil {
		t.Fatal(err)
	}
	return &generation.Response{Images: []generation.GeneratedImage{{ImageBase64: base64.StdEncoding.EncodeToString(data)}}}
}

// fakeSlots mirrors the capture controller's slot bookkeeping.
type fakeSlots struct {
	mu    sync.Mutex
	slots [capture.NumSlots]capture.Slot
}

func newFakeSlots(filled ...int) *fakeSlots {
	f := &fakeSlots{}
	for _, i := range filled {
		f.slots[i] = capture.Slot{Raw: solid(40, 30, color.RGBA{R: uint8(50 * i), A: 255}), Generation: 1}
	}
	return f
}

func (f *fakeSlots) Snapshot() capture.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return capture.Snapshot{Slots: f.slots}
}

func (f *fakeSlots) RawForStyling(i int) (image.Image, uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.slots[i]
	return s.Raw, s.Generation, s.Raw != nil
}

func (f *fakeSlots) CommitStyled(i int, gen uint64, styled image.Image) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.slots[i].Generation != gen || f.slots[i].Raw == nil {
		return false
	}
	f.slots[i].Styled = styled
	return true
}

func (f *fakeSlots) ClearStyled() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.slots {
		f.slots[i].Styled = nil
	}
}

func (f *fakeSlots) retake(i int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slots[i] = capture.Slot{Generation: f.slots[i].Generation + 1}
}

func (f *fakeSlots) styled(i int) image.Image {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slots[i].Styled
}

type call struct {
	op     string
	prompt string
	req    generation.GenerateRequest
}

// fakeService records calls and fails on demand. It also flags any
// overlapping calls.
type fakeService struct {
	mu         sync.Mutex
	calls      []call
	inFlight   int
	overlapped bool

	stylize  func(n int, req generation.StylizeRequest) (*generation.Response, error)
	generate func(n int, req generation.GenerateRequest) (*generation.Response, error)
}

func (s *fakeService) enter(c call) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight++
	if s.inFlight > 1 {
		s.overlapped = true
	}
	s.calls = append(s.calls, c)
	return len(s.calls) - 1
}

func (s *fakeService) leave() {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
}

func (s *fakeService) Stylize(ctx context.Context, req generation.StylizeRequest) (*generation.Response, error) {
	n := s.enter(call{op: "stylize", prompt: req.Prompt})
	defer s.leave()
	return s.stylize(n, req)
}

func (s *fakeService) Generate(ctx context.Context, req generation.GenerateRequest) (*generation.Response, error) {
	n := s.enter(call{op: "generate", prompt: req.Prompt, req: req})
	defer s.leave()
	return s.generate(n, req)
}

func (s *fakeService) ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.calls {
		out = append(out, c.op)
	}
	return out
}

type recordingComposer struct {
	mu       sync.Mutex
	composer *collage.Composer
	requests []collage.Request
}

func (r *recordingComposer) Compose(ctx context.Context, req collage.Request) (*collage.Result, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	return r.composer.Compose(ctx, req)
}

func newTestOrchestrator(t *testing.T, svc generation.Service, slots Slots) (*Orchestrator, *recordingComposer) {
	t.Helper()
	c, err := collage.NewComposer(collage.Options{Width: 300, Height: 400})
	if err != nil {
		t.Fatal(err)
	}
	rc := &recordingComposer{composer: c}
	o, err := NewOrchestrator(svc, slots, rc, Config{Caption: func() string { return "Hello" }})
	if err != nil {
		t.Fatal(err)
	}
	return o, rc
}

const chibi = "Q版公仔風格"

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog() error = %v", err)
	}
	if len(c.Backgrounds) == 0 || len(c.Subjects) == 0 {
		t.Fatal("both catalogs should be populated")
	}
	if _, err := c.Subject(chibi); err != nil {
		t.Errorf("Subject(%q) error = %v", chibi, err)
	}
	if _, err := c.Background(chibi); !errors.Is(err, ErrUnknownStyle) {
		t.Errorf("a subject ID must not resolve as a background, got %v", err)
	}
	for _, b := range c.Backgrounds {
		if _, err := c.Subject(b.ID); err == nil {
			t.Errorf("background %q also resolves as a subject", b.ID)
		}
	}
}

func TestParseCatalog_Errors(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"shared id", `
[[background]]
id = "a"
prompt = "x"
[[subject]]
id = "a"
prompt = "y"
`},
		{"missing prompt", `
[[subject]]
id = "a"
`},
		{"unknown key", `
[[subject]]
id = "a"
prompt = "x"
colour = "red"
`},
		{"not toml", `[[subject`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCatalog([]byte(tt.toml)); err == nil {
				t.Error("ParseCatalog() should fail")
			}
		})
	}
}

func TestCatalog_Validate(t *testing.T) {
	c, _ := DefaultCatalog()
	if err := c.Validate(Selection{}); err != nil {
		t.Errorf("empty selection should be valid: %v", err)
	}
	if err := c.Validate(Selection{SubjectID: chibi, BackgroundID: c.Backgrounds[0].ID}); err != nil {
		t.Errorf("valid selection rejected: %v", err)
	}
	if err := c.Validate(Selection{SubjectID: "nope"}); !errors.Is(err, ErrUnknownStyle) {
		t.Errorf("Validate() = %v, want ErrUnknownStyle", err)
	}
}

func TestStylizeSlot_FallbackPolicy(t *testing.T) {
	tests := []struct {
		name        string
		stylizeResp func(t *testing.T) (*generation.Response, error)
		generateErr error
		wantStep    string
		wantOps     []string
		wantFailed  bool
	}{
		{
			name: "stylize succeeds",
			stylizeResp: func(t *testing.T) (*generation.Response, error) {
				return pngResponse(t, color.RGBA{B: 255, A: 255}), nil
			},
			wantStep: "stylize",
			wantOps:  []string{"stylize"},
		},
		{
			name:        "stylize errors, generate succeeds",
			stylizeResp: func(t *testing.T) (*generation.Response, error) { return nil, errors.New("503") },
			wantStep:    "generate",
			wantOps:     []string{"stylize", "generate"},
		},
		{
			name:        "stylize returns no images",
			stylizeResp: func(t *testing.T) (*generation.Response, error) { return &generation.Response{}, nil },
			wantStep:    "generate",
			wantOps:     []string{"stylize", "generate"},
		},
		{
			name: "stylize returns garbage",
			stylizeResp: func(t *testing.T) (*generation.Response, error) {
				return &generation.Response{Images: []generation.GeneratedImage{{ImageBase64: "bm90IGFuIGltYWdl"}}}, nil
			},
			wantStep: "generate",
			wantOps:  []string{"stylize", "generate"},
		},
		{
			name:        "both fail",
			stylizeResp: func(t *testing.T) (*generation.Response, error) { return nil, errors.New("stylize down") },
			generateErr: errors.New("generate down"),
			wantOps:     []string{"stylize", "generate"},
			wantFailed:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{
				stylize: func(int, generation.StylizeRequest) (*generation.Response, error) { return tt.stylizeResp(t) },
				generate: func(int, generation.GenerateRequest) (*generation.Response, error) {
					if tt.generateErr != nil {
						return nil, tt.generateErr
					}
					return pngResponse(t, color.RGBA{G: 255, A: 255}), nil
				},
			}
			slots := newFakeSlots(0, 1, 2, 3)
			o, _ := newTestOrchestrator(t, svc, slots)

			out, err := o.StylizeSlot(context.Background(), 2, chibi)
			if got := svc.ops(); strings.Join(got, ",") != strings.Join(tt.wantOps, ",") {
				t.Errorf("calls = %v, want %v", got, tt.wantOps)
			}
			if tt.wantFailed {
				var sf *StylizeFailedError
				if !errors.As(err, &sf) || sf.Slot != 2 {
					t.Fatalf("StylizeSlot() error = %v, want StylizeFailedError{Slot: 2}", err)
				}
				if slots.styled(2) != nil {
					t.Error("styled image must stay empty when every step fails")
				}
				return
			}
			if err != nil {
				t.Fatalf("StylizeSlot() error = %v", err)
			}
			if out.Step != tt.wantStep || !out.Committed {
				t.Errorf("outcome = %+v, want step %s committed", out, tt.wantStep)
			}
			if slots.styled(2) == nil {
				t.Error("slot 2 should hold the styled image")
			}
		})
	}
}

func TestStylizeSlot_SamePromptForFallback(t *testing.T) {
	svc := &fakeService{
		stylize:  func(int, generation.StylizeRequest) (*generation.Response, error) { return nil, errors.New("fail") },
		generate: func(int, generation.GenerateRequest) (*generation.Response, error) { return nil, errors.New("fail") },
	}
	o, _ := newTestOrchestrator(t, svc, newFakeSlots(0))
	o.StylizeSlot(context.Background(), 0, chibi)

	if len(svc.calls) != 2 || svc.calls[0].prompt != svc.calls[1].prompt {
		t.Fatalf("fallback must reuse the stylize prompt: %+v", svc.calls)
	}
	if svc.calls[1].req.NumberOfImages != 1 {
		t.Errorf("fallback NumberOfImages = %d, want 1", svc.calls[1].req.NumberOfImages)
	}
}

func TestStylizeSlot_EmptySlot(t *testing.T) {
	svc := &fakeService{}
	o, _ := newTestOrchestrator(t, svc, newFakeSlots(0))
	if _, err := o.StylizeSlot(context.Background(), 3, chibi); !errors.Is(err, ErrSlotEmpty) {
		t.Errorf("StylizeSlot() error = %v, want ErrSlotEmpty", err)
	}
	if _, err := o.StylizeSlot(context.Background(), 0, "nope"); !errors.Is(err, ErrUnknownStyle) {
		t.Errorf("StylizeSlot() error = %v, want ErrUnknownStyle", err)
	}
}

func TestStylizeSlot_RetakeDuringRequestIsDropped(t *testing.T) {
	slots := newFakeSlots(0, 1, 2, 3)
	svc := &fakeService{
		stylize: func(int, generation.StylizeRequest) (*generation.Response, error) {
			slots.retake(1)
			return pngResponse(t, color.RGBA{B: 255, A: 255}), nil
		},
	}
	o, _ := newTestOrchestrator(t, svc, slots)

	out, err := o.StylizeSlot(context.Background(), 1, chibi)
	if err != nil {
		t.Fatalf("StylizeSlot() error = %v", err)
	}
	if out.Committed {
		t.Error("a result for a retaken slot must not be committed")
	}
	if slots.styled(1) != nil {
		t.Error("retaken slot must not receive the stale styled image")
	}
}

func TestApplyAll_SequentialSubjectPass(t *testing.T) {
	svc := &fakeService{}
	svc.stylize = func(n int, req generation.StylizeRequest) (*generation.Response, error) {
		if n == 1 {
			return nil, errors.New("slot 1 stylize fails")
		}
		return pngResponse(t, color.RGBA{B: 255, A: 255}), nil
	}
	svc.generate = func(int, generation.GenerateRequest) (*generation.Response, error) {
		return pngResponse(t, color.RGBA{G: 255, A: 255}), nil
	}
	slots := newFakeSlots(0, 1, 2, 3)
	o, rc := newTestOrchestrator(t, svc, slots)

	out, err := o.ApplyAll(context.Background(), Selection{SubjectID: chibi})
	if err != nil {
		t.Fatalf("ApplyAll() error = %v", err)
	}
	if svc.overlapped {
		t.Error("per-slot requests overlapped")
	}
	wantOps := []string{"stylize", "stylize", "generate", "stylize", "stylize"}
	if got := svc.ops(); strings.Join(got, ",") != strings.Join(wantOps, ",") {
		t.Errorf("calls = %v, want %v", got, wantOps)
	}
	for i, so := range out.Slots {
		if so.Slot != i {
			t.Errorf("outcome %d is for slot %d; slots must be styled in order", i, so.Slot)
		}
	}
	if out.Slots[1].Step != "generate" {
		t.Errorf("slot 1 step = %s, want generate", out.Slots[1].Step)
	}
	if out.Result == nil || !out.Result.Styled {
		t.Errorf("result = %+v, want a styled collage", out.Result)
	}
	if len(rc.requests) != 1 || rc.requests[0].Background.Present() || rc.requests[0].Caption != "Hello" {
		t.Errorf("unexpected compose requests: %+v", rc.requests)
	}
	for i := 0; i < capture.NumSlots; i++ {
		if slots.styled(i) == nil {
			t.Errorf("slot %d not styled", i)
		}
	}
}

func TestApplyAll_BackgroundOnly(t *testing.T) {
	var bgReq generation.GenerateRequest
	svc := &fakeService{
		generate: func(_ int, req generation.GenerateRequest) (*generation.Response, error) {
			bgReq = req
			return pngResponse(t, color.RGBA{R: 9, G: 9, B: 9, A: 255}), nil
		},
	}
	o, _ := newTestOrchestrator(t, svc, newFakeSlots(0, 1, 2, 3))
	bgID := o.Catalog().Backgrounds[0].ID

	out, err := o.ApplyAll(context.Background(), Selection{BackgroundID: bgID})
	if err != nil {
		t.Fatalf("ApplyAll() error = %v", err)
	}
	if got := svc.ops(); len(got) != 1 || got[0] != "generate" {
		t.Errorf("calls = %v, want one generate", got)
	}
	if bgReq.AspectRatio != "3:4" || bgReq.SampleImageSize != "2K" || bgReq.NumberOfImages != 1 {
		t.Errorf("background request = %+v", bgReq)
	}
	if out.Background == nil || o.Background() == nil {
		t.Error("background should be kept")
	}
	if got := out.Result.Image.RGBAAt(2, 2); got != (color.RGBA{9, 9, 9, 255}) {
		t.Errorf("collage corner = %v, want the generated background", got)
	}
}

func TestApplyAll_BackgroundFailureKeepsStyledPhotos(t *testing.T) {
	svc := &fakeService{
		stylize: func(int, generation.StylizeRequest) (*generation.Response, error) {
			return pngResponse(t, color.RGBA{B: 255, A: 255}), nil
		},
		generate: func(int, generation.GenerateRequest) (*generation.Response, error) {
			return &generation.Response{}, nil
		},
	}
	slots := newFakeSlots(0, 1, 2, 3)
	o, _ := newTestOrchestrator(t, svc, slots)

	out, err := o.ApplyAll(context.Background(), Selection{SubjectID: chibi, BackgroundID: o.Catalog().Backgrounds[0].ID})
	if !errors.Is(err, ErrBackgroundGenerationFailed) {
		t.Fatalf("ApplyAll() error = %v, want ErrBackgroundGenerationFailed", err)
	}
	if out.Result == nil || out.Background != nil {
		t.Errorf("collage should still be published without a background: %+v", out)
	}
	for i := 0; i < capture.NumSlots; i++ {
		if slots.styled(i) == nil {
			t.Errorf("slot %d lost its styled image", i)
		}
	}
}

func TestApplyAll_ReportsFailedSlots(t *testing.T) {
	svc := &fakeService{
		stylize:  func(int, generation.StylizeRequest) (*generation.Response, error) { return nil, errors.New("down") },
		generate: func(int, generation.GenerateRequest) (*generation.Response, error) { return nil, errors.New("down") },
	}
	o, _ := newTestOrchestrator(t, svc, newFakeSlots(0, 1, 2, 3))

	out, err := o.ApplyAll(context.Background(), Selection{SubjectID: chibi})
	var sf *StylizeFailedError
	if !errors.As(err, &sf) {
		t.Fatalf("ApplyAll() error = %v, want StylizeFailedError", err)
	}
	if len(svc.calls) != 8 {
		t.Errorf("calls = %d, want 8 (two per slot)", len(svc.calls))
	}
	if out.Result == nil {
		t.Error("raw photos should still be composed")
	}
}

func TestApplyAll_MissingSources(t *testing.T) {
	svc := &fakeService{}
	o, _ := newTestOrchestrator(t, svc, newFakeSlots(0, 1))
	_, err := o.ApplyAll(context.Background(), Selection{})
	if !errors.Is(err, collage.ErrMissingSources) {
		t.Errorf("ApplyAll() error = %v, want ErrMissingSources", err)
	}
}

func TestRestyle(t *testing.T) {
	svc := &fakeService{
		stylize: func(int, generation.StylizeRequest) (*generation.Response, error) {
			return pngResponse(t, color.RGBA{B: 255, A: 255}), nil
		},
	}
	slots := newFakeSlots(0, 1, 2, 3)
	o, _ := newTestOrchestrator(t, svc, slots)

	if _, err := o.Restyle(context.Background(), chibi); err != nil {
		t.Fatalf("Restyle() error = %v", err)
	}
	if len(svc.calls) != 4 {
		t.Errorf("calls = %d, want 4", len(svc.calls))
	}

	out, err := o.Restyle(context.Background(), "")
	if err != nil {
		t.Fatalf("Restyle(\"\") error = %v", err)
	}
	if len(svc.calls) != 4 {
		t.Error("clearing the subject style must not call the service")
	}
	for i := 0; i < capture.NumSlots; i++ {
		if slots.styled(i) != nil {
			t.Errorf("slot %d still styled after clearing the subject style", i)
		}
	}
	if out.Result == nil {
		t.Error("clearing should recompose")
	}
}

func TestRestyle_IncompleteSessionSkipsCompose(t *testing.T) {
	svc := &fakeService{
		stylize: func(int, generation.StylizeRequest) (*generation.Response, error) {
			return pngResponse(t, color.RGBA{B: 255, A: 255}), nil
		},
	}
	slots := newFakeSlots(0, 1)
	o, rc := newTestOrchestrator(t, svc, slots)

	out, err := o.Restyle(context.Background(), chibi)
	if err != nil {
		t.Fatalf("Restyle() error = %v", err)
	}
	if len(out.Slots) != 2 || len(rc.requests) != 0 || out.Result != nil {
		t.Errorf("want two styled slots and no composition, got %+v with %d compose calls", out, len(rc.requests))
	}
}

func TestApplyAll_ResetDuringPassIsDiscarded(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	svc := &fakeService{
		generate: func(int, generation.GenerateRequest) (*generation.Response, error) {
			close(entered)
			<-release
			return pngResponse(t, color.RGBA{R: 9, G: 9, B: 9, A: 255}), nil
		},
	}
	o, rc := newTestOrchestrator(t, svc, newFakeSlots(0, 1, 2, 3))

	done := make(chan error, 1)
	go func() {
		_, err := o.ApplyAll(context.Background(), Selection{BackgroundID: o.Catalog().Backgrounds[0].ID})
		done <- err
	}()
	<-entered
	o.ResetBackground()
	close(release)

	if err := <-done; !errors.Is(err, ErrPassSuperseded) {
		t.Fatalf("ApplyAll() error = %v, want ErrPassSuperseded", err)
	}
	if o.Background() != nil {
		t.Error("a background generated before the reset must not be kept")
	}
	if len(rc.requests) != 0 {
		t.Errorf("composed %d collages after the reset, want 0", len(rc.requests))
	}
}

func TestRestyle_ResetStopsPass(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	svc := &fakeService{
		stylize: func(n int, _ generation.StylizeRequest) (*generation.Response, error) {
			if n == 0 {
				close(entered)
				<-release
			}
			return pngResponse(t, color.RGBA{B: 255, A: 255}), nil
		},
	}
	slots := newFakeSlots(0, 1, 2, 3)
	o, rc := newTestOrchestrator(t, svc, slots)

	done := make(chan error, 1)
	go func() {
		_, err := o.Restyle(context.Background(), chibi)
		done <- err
	}()
	<-entered
	o.ResetBackground()
	close(release)

	if err := <-done; !errors.Is(err, ErrPassSuperseded) {
		t.Fatalf("Restyle() error = %v, want ErrPassSuperseded", err)
	}
	if got := svc.ops(); len(got) != 1 {
		t.Errorf("calls = %v, want the pass to stop after the in-flight request", got)
	}
	if slots.styled(1) != nil {
		t.Error("slot 1 was styled after the reset")
	}
	if len(rc.requests) != 0 {
		t.Errorf("composed %d collages after the reset, want 0", len(rc.requests))
	}
}
