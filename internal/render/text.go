package render

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// CaptionSize is the caption font size in canvas pixels.
const CaptionSize = 48.0

// Tone selects the caption color scheme.
type Tone int

const (
	ToneDark Tone = iota
	ToneLight
)

// String implements fmt.Stringer.
func (t Tone) String() string {
	if t == ToneLight {
		return "light"
	}
	return "dark"
}

// CaptionStyle is the fill color and shadow used for a caption tone.
type CaptionStyle struct {
	Color  color.NRGBA
	Shadow Shadow
}

// StyleFor returns the caption style for tone.
func StyleFor(t Tone) CaptionStyle {
	if t == ToneLight {
		return CaptionStyle{
			Color:  color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
			Shadow: Shadow{Color: color.NRGBA{A: 115}, Blur: 8, OffsetY: 2},
		}
	}
	return CaptionStyle{
		Color:  color.NRGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xFF},
		Shadow: Shadow{Color: color.NRGBA{A: 38}, Blur: 4, OffsetY: 2},
	}
}

// Typeface is a parsed font that can produce faces at any size.
type Typeface struct {
	font *opentype.Font
}

// DefaultTypeface returns the embedded Go Bold typeface. It covers Latin
// scripts only; use LoadTypeface for captions in other scripts.
func DefaultTypeface() (*Typeface, error) {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse default font: %w", err)
	}
	return &Typeface{font: f}, nil
}

// LoadTypeface reads a TrueType or OpenType font from disk.
func LoadTypeface(path string) (*Typeface, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font %s: %w", path, err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font %s: %w", path, err)
	}
	return &Typeface{font: f}, nil
}

// Face creates a font face at the given pixel size. The caller owns the face
// and should Close it when done.
func (t *Typeface) Face(size float64) (font.Face, error) {
	face, err := opentype.NewFace(t.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, nil
}

// DrawCaption draws a single line of text horizontally centered on cx and
// vertically centered on cy, with the style's shadow underneath.
func DrawCaption(dst draw.Image, face font.Face, text string, cx, cy int, style CaptionStyle) {
	if text == "" {
		return
	}

	width := font.MeasureString(face, text).Ceil()
	m := face.Metrics()
	ascent, descent := m.Ascent.Ceil(), m.Descent.Ceil()
	left := cx - width/2
	baseline := cy + (ascent-descent)/2

	if style.Shadow.Color.A > 0 {
		textBox := image.Rect(left, baseline-ascent, left+width, baseline+descent)
		mask := image.NewAlpha(textBox)
		d := &font.Drawer{
			Dst:  mask,
			Src:  image.Opaque,
			Face: face,
			Dot:  fixed.P(left, baseline),
		}
		d.DrawString(text)

		style.Shadow.Draw(dst, mask)
	}

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(style.Color),
		Face: face,
		Dot:  fixed.P(left, baseline),
	}
	d.DrawString(text)
}
