package collage

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fpang/photo-booth/internal/filehandler"
	"github.com/fpang/photo-booth/internal/metrics"
	"github.com/fpang/photo-booth/internal/render"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// Options configure a Composer. Zero values take the defaults.
type Options struct {
	Width, Height int
	// FontPath is an optional TTF/OTF used for captions. Go Bold is used
	// when empty; it has no CJK glyphs.
	FontPath    string
	CaptionSize float64
}

// Request is one composition.
type Request struct {
	// Sources are the four cells in row-major order. Each must be present.
	Sources    [4]Source
	Background Source
	Caption    string
	Tone       render.Tone
	Margin     int
}

// PreviewRequest builds the unstyled preview: raw photos, white background,
// dark caption.
func PreviewRequest(sources [4]Source, caption string) Request {
	return Request{Sources: sources, Caption: caption, Tone: render.ToneDark, Margin: PreviewMargin}
}

// FinalRequest builds the styled deliverable: styled-or-raw photos, optional
// generated background, light caption.
func FinalRequest(sources [4]Source, background Source, caption string) Request {
	return Request{Sources: sources, Background: background, Caption: caption, Tone: render.ToneLight, Margin: FinalMargin}
}

// Result is one rendered collage. Results are never modified after Compose
// returns them.
type Result struct {
	Image      *image.RGBA
	Layout     Layout
	Caption    string
	Tone       render.Tone
	Styled     bool
	RenderedAt time.Time
}

// EncodePNG writes the collage as PNG at canvas size.
func (r *Result) EncodePNG(w io.Writer) error {
	return filehandler.WritePNG(w, r.Image)
}

// WritePNG writes the collage to path, creating parent directories.
func (r *Result) WritePNG(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := r.EncodePNG(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("Collage exported")
	return nil
}

// Composer renders collages. It is safe for concurrent use; every call draws
// into a fresh canvas.
type Composer struct {
	width, height int
	captionSize   float64
	typeface      *render.Typeface
}

// NewComposer loads the caption typeface and returns a Composer.
func NewComposer(opts Options) (*Composer, error) {
	c := &Composer{
		width:       opts.Width,
		height:      opts.Height,
		captionSize: opts.CaptionSize,
	}
	if c.width <= 0 || c.height <= 0 {
		c.width, c.height = DefaultWidth, DefaultHeight
	}
	if c.captionSize <= 0 {
		c.captionSize = render.CaptionSize
	}

	var err error
	if opts.FontPath != "" {
		c.typeface, err = render.LoadTypeface(opts.FontPath)
	} else {
		c.typeface, err = render.DefaultTypeface()
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Size returns the canvas size.
func (c *Composer) Size() (int, int) {
	return c.width, c.height
}

// Compose renders req into a new raster.
//
// It fails with ErrMissingSources when any of the four cell sources is
// absent, and with *ImageDecodeError when a cell or the background cannot be
// decoded. Nothing is drawn unless every input decodes.
func (c *Composer) Compose(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	present := 0
	for _, s := range req.Sources {
		if s.Present() {
			present++
		}
	}
	if present < len(req.Sources) {
		return nil, fmt.Errorf("%w: %d of %d cells resolvable", ErrMissingSources, present, len(req.Sources))
	}

	var cells [4]image.Image
	for i, s := range req.Sources {
		img, err := s.decode(fmt.Sprintf("cell %d", i))
		if err != nil {
			return nil, err
		}
		cells[i] = img
	}

	var background image.Image
	if req.Background.Present() {
		img, err := req.Background.decode("background")
		if err != nil {
			return nil, err
		}
		background = img
	}

	layout, err := ComputeLayout(c.width, c.height, req.Margin, CaptionBand, CellGap)
	if err != nil {
		return nil, err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	if background != nil {
		render.ScaleCover(canvas, canvas.Bounds(), background)
	} else {
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	}

	for i, img := range cells {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cell := layout.CellRect(i)
		crop := render.CoverCropBounds(img.Bounds(), render.SquareAspect)
		render.DrawShadowedFill(canvas, render.RoundedRectPathFor(cell, render.CornerRadius), render.CellFill, render.CellShadow)
		render.DrawClippedImage(canvas, cell, img, crop, render.CornerRadius)
	}

	if req.Caption != "" {
		face, err := c.typeface.Face(c.captionSize)
		if err != nil {
			return nil, err
		}
		center := layout.CaptionCenter()
		render.DrawCaption(canvas, face, req.Caption, center.X, center.Y, render.StyleFor(req.Tone))
		face.Close()
	}

	variant := "preview"
	if req.Tone == render.ToneLight {
		variant = "final"
	}
	metrics.New(metrics.Namespace).
		Dimension("Operation", "compose").
		Dimension("Variant", variant).
		Since("ComposeLatencyMs", start).
		Flush()

	log.Debug().
		Str("variant", variant).
		Bool("background", background != nil).
		Int("cell", layout.Cell).
		Dur("duration", time.Since(start)).
		Msg("Collage composed")

	return &Result{
		Image:      canvas,
		Layout:     layout,
		Caption:    req.Caption,
		Tone:       req.Tone,
		Styled:     req.Tone == render.ToneLight,
		RenderedAt: time.Now(),
	}, nil
}
