// Package collage renders the booth's 2×2 photo grid with a caption band,
// optionally over a generated background.
package collage

import (
	"fmt"
	"image"
)

// Canvas and layout defaults. The canvas is a 3:4 printable ratio.
const (
	DefaultWidth  = 1200
	DefaultHeight = 1600
	CaptionBand   = 100
	CellGap       = 20

	// PreviewMargin is the outer margin of the unstyled preview.
	PreviewMargin = 40
	// FinalMargin is the outer margin of the styled deliverable.
	FinalMargin = 60
)

// Layout is the resolved grid geometry for one canvas.
type Layout struct {
	Width, Height int
	Margin        int
	Band          int
	Gap           int

	// Cell is the side of each square cell.
	Cell int
	// Origin is the top-left corner of cell 0.
	Origin image.Point
}

// ComputeLayout places a 2×2 grid of maximal square cells inside the area
// left after removing the margin on every side and the caption band at the
// bottom, and centers the grid in that area.
func ComputeLayout(width, height, margin, band, gap int) (Layout, error) {
	availW := width - 2*margin
	availH := height - 2*margin - band

	cell := min((availW-gap)/2, (availH-gap)/2)
	if cell <= 0 {
		return Layout{}, fmt.Errorf("canvas %dx%d too small for margin %d, band %d, gap %d", width, height, margin, band, gap)
	}

	gridW := 2*cell + gap
	gridH := 2*cell + gap

	return Layout{
		Width:  width,
		Height: height,
		Margin: margin,
		Band:   band,
		Gap:    gap,
		Cell:   cell,
		Origin: image.Pt(margin+(availW-gridW)/2, margin+(availH-gridH)/2),
	}, nil
}

// CellRect returns the rectangle of cell i in row-major order:
// 0 top-left, 1 top-right, 2 bottom-left, 3 bottom-right.
func (l Layout) CellRect(i int) image.Rectangle {
	col, row := i%2, i/2
	x := l.Origin.X + col*(l.Cell+l.Gap)
	y := l.Origin.Y + row*(l.Cell+l.Gap)
	return image.Rect(x, y, x+l.Cell, y+l.Cell)
}

// GridRect returns the bounding box of all four cells.
func (l Layout) GridRect() image.Rectangle {
	return l.CellRect(0).Union(l.CellRect(3))
}

// CaptionCenter returns the point the caption is centered on: the middle of
// the caption band.
func (l Layout) CaptionCenter() image.Point {
	return image.Pt(l.Width/2, l.Height-l.Margin-l.Band/2)
}
