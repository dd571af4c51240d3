package render

import (
	"image"
	"math"

	"golang.org/x/image/vector"
)

// CornerRadius is the corner radius of every collage cell.
const CornerRadius = 16.0

// kappa is the cubic Bézier control distance for a quarter circle of radius 1.
const kappa = 0.5522847498

// SegmentOp identifies the kind of a path segment.
type SegmentOp int

const (
	OpMoveTo SegmentOp = iota
	OpLineTo
	OpCubeTo
	OpClose
)

// Point is a position in canvas units.
type Point struct {
	X, Y float64
}

// Segment is one element of a Path. MoveTo and LineTo use Points[0];
// CubeTo uses Points[0] and Points[1] as control points and Points[2] as the
// end point.
type Segment struct {
	Op     SegmentOp
	Points [3]Point
}

// Path is a closed outline in canvas coordinates.
type Path []Segment

// RoundedRectPath builds a closed path of four straight edges joined by
// quarter-round corners of radius r. The radius is clamped to half of the
// shorter side.
func RoundedRectPath(x, y, w, h, r float64) Path {
	r = math.Max(0, math.Min(r, math.Min(w, h)/2))
	k := r * kappa
	right, bottom := x+w, y+h

	return Path{
		{Op: OpMoveTo, Points: [3]Point{{x + r, y}}},
		{Op: OpLineTo, Points: [3]Point{{right - r, y}}},
		{Op: OpCubeTo, Points: [3]Point{{right - r + k, y}, {right, y + r - k}, {right, y + r}}},
		{Op: OpLineTo, Points: [3]Point{{right, bottom - r}}},
		{Op: OpCubeTo, Points: [3]Point{{right, bottom - r + k}, {right - r + k, bottom}, {right - r, bottom}}},
		{Op: OpLineTo, Points: [3]Point{{x + r, bottom}}},
		{Op: OpCubeTo, Points: [3]Point{{x + r - k, bottom}, {x, bottom - r + k}, {x, bottom - r}}},
		{Op: OpLineTo, Points: [3]Point{{x, y + r}}},
		{Op: OpCubeTo, Points: [3]Point{{x, y + r - k}, {x + r - k, y}, {x + r, y}}},
		{Op: OpClose},
	}
}

// RoundedRectPathFor is RoundedRectPath for an integer rectangle.
func RoundedRectPathFor(rect image.Rectangle, r float64) Path {
	return RoundedRectPath(float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), r)
}

// Mask rasterizes the path into an anti-aliased alpha mask covering bounds.
// The mask uses canvas coordinates, so it can be passed directly to
// draw.DrawMask with mp equal to the destination rectangle's Min.
func (p Path) Mask(bounds image.Rectangle) *image.Alpha {
	w, h := bounds.Dx(), bounds.Dy()
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	if w <= 0 || h <= 0 {
		mask.Rect = bounds
		return mask
	}

	ox, oy := float64(bounds.Min.X), float64(bounds.Min.Y)
	pt := func(p Point) (float32, float32) {
		return float32(p.X - ox), float32(p.Y - oy)
	}

	z := vector.NewRasterizer(w, h)
	for _, seg := range p {
		switch seg.Op {
		case OpMoveTo:
			z.MoveTo(pt(seg.Points[0]))
		case OpLineTo:
			z.LineTo(pt(seg.Points[0]))
		case OpCubeTo:
			bx, by := pt(seg.Points[0])
			cx, cy := pt(seg.Points[1])
			dx, dy := pt(seg.Points[2])
			z.CubeTo(bx, by, cx, cy, dx, dy)
		case OpClose:
			z.ClosePath()
		}
	}
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

	// Re-anchor the zero-origin buffer onto the requested bounds.
	mask.Rect = bounds
	return mask
}

// Bounds returns the integer bounding box of the path's points.
func (p Path) Bounds() image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, seg := range p {
		n := 1
		switch seg.Op {
		case OpClose:
			continue
		case OpCubeTo:
			n = 3
		}
		for _, q := range seg.Points[:n] {
			minX, minY = math.Min(minX, q.X), math.Min(minY, q.Y)
			maxX, maxY = math.Max(maxX, q.X), math.Max(maxY, q.Y)
		}
	}
	if math.IsInf(minX, 0) {
		return image.Rectangle{}
	}
	return image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
}
