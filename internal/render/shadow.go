package render

import (
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"golang.org/x/image/draw"
)

// Shadow describes a blurred drop shadow. Blur follows the CSS canvas
// convention, where the Gaussian sigma is half the blur value.
type Shadow struct {
	Color   color.NRGBA
	Blur    float64
	OffsetX int
	OffsetY int
}

// CellShadow is the soft drop shadow painted under every collage cell.
var CellShadow = Shadow{Color: color.NRGBA{A: 46}, Blur: 12, OffsetY: 6}

// CellFill is the near-transparent white fill that casts CellShadow.
var CellFill = color.NRGBA{R: 255, G: 255, B: 255, A: 3}

// kernelRadius converts the canvas blur value into bild's Gaussian radius,
// whose kernel has variance 2*radius.
func (s Shadow) kernelRadius() float64 {
	sigma := s.Blur / 2
	return sigma * sigma / 2
}

// padding is how far the blurred shadow spreads beyond its shape.
func (s Shadow) padding() int {
	return int(math.Ceil(math.Max(s.Blur*1.5, s.kernelRadius()))) + 1
}

// Draw paints the blurred shadow of mask onto dst, offset by the shadow
// offset. The mask is in dst coordinates.
func (s Shadow) Draw(dst draw.Image, mask *image.Alpha) {
	if s.Color.A == 0 || mask.Rect.Empty() {
		return
	}

	pad := s.padding()
	area := mask.Rect.Inset(-pad)
	layer := image.NewRGBA(image.Rect(0, 0, area.Dx(), area.Dy()))
	inner := mask.Rect.Sub(area.Min)
	draw.DrawMask(layer, inner, image.NewUniform(s.Color), image.Point{}, mask, mask.Rect.Min, draw.Src)

	var shadow image.Image = layer
	if s.Blur > 0 {
		shadow = blur.Gaussian(layer, s.kernelRadius())
	}

	target := area.Add(image.Pt(s.OffsetX, s.OffsetY))
	draw.Draw(dst, target, shadow, shadow.Bounds().Min, draw.Over)
}

// DrawShadowedFill paints the path's shadow and then fills the path itself
// with fill. The fill is what casts the shadow, so a near-transparent fill
// still yields a visible shadow around the shape.
func DrawShadowedFill(dst draw.Image, path Path, fill color.Color, s Shadow) {
	mask := path.Mask(path.Bounds())
	s.Draw(dst, mask)
	draw.DrawMask(dst, mask.Rect, image.NewUniform(fill), image.Point{}, mask, mask.Rect.Min, draw.Over)
}

// DrawClippedImage scales the crop rectangle of src into cell and composites
// it through the rounded-rectangle clip of the given radius. Pixels outside
// the rounded outline are left untouched.
func DrawClippedImage(dst draw.Image, cell image.Rectangle, src image.Image, crop image.Rectangle, radius float64) {
	if cell.Empty() || crop.Empty() {
		return
	}
	scaled := image.NewRGBA(cell)
	draw.CatmullRom.Scale(scaled, cell, src, crop, draw.Src, nil)

	mask := RoundedRectPathFor(cell, radius).Mask(cell)
	draw.DrawMask(dst, cell, scaled, cell.Min, mask, cell.Min, draw.Over)
}
