// Package render holds the stateless drawing routines used to build a collage:
// cover-fit crop math, rounded-rectangle paths and masks, drop-shadow
// compositing, clipped image drawing, and caption text.
//
// Every routine draws into a caller-owned *image.RGBA and keeps no state
// between calls.
package render

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// SquareAspect is the cell aspect ratio (width / height) used by the collage grid.
const SquareAspect = 1.0

// CoverCrop computes the sub-rectangle of a srcW×srcH image that, once scaled
// to a destination with aspect ratio cellAspect (width / height), fills it
// completely without letterboxing.
//
// When the source is wider than the cell, the width is cropped to
// height × cellAspect and centered horizontally; otherwise the height is
// cropped to width / cellAspect and centered vertically. The returned
// rectangle is relative to a zero origin.
func CoverCrop(srcW, srcH int, cellAspect float64) image.Rectangle {
	if srcW <= 0 || srcH <= 0 || cellAspect <= 0 {
		return image.Rectangle{}
	}

	srcAspect := float64(srcW) / float64(srcH)
	if srcAspect > cellAspect {
		w := int(math.Round(float64(srcH) * cellAspect))
		w = clamp(w, 1, srcW)
		x := (srcW - w) / 2
		return image.Rect(x, 0, x+w, srcH)
	}

	h := int(math.Round(float64(srcW) / cellAspect))
	h = clamp(h, 1, srcH)
	y := (srcH - h) / 2
	return image.Rect(0, y, srcW, y+h)
}

// CoverCropBounds is CoverCrop applied to an image's bounds, so the result is
// expressed in the source image's own coordinate space.
func CoverCropBounds(b image.Rectangle, cellAspect float64) image.Rectangle {
	return CoverCrop(b.Dx(), b.Dy(), cellAspect).Add(b.Min)
}

// Aspect returns the width / height ratio of r, or 0 for an empty rectangle.
func Aspect(r image.Rectangle) float64 {
	if r.Dy() == 0 {
		return 0
	}
	return float64(r.Dx()) / float64(r.Dy())
}

// ScaleCover draws src into dr of dst using the cover-fit crop for dr's aspect.
// It returns the source rectangle that was sampled.
func ScaleCover(dst draw.Image, dr image.Rectangle, src image.Image) image.Rectangle {
	sr := CoverCropBounds(src.Bounds(), Aspect(dr))
	draw.CatmullRom.Scale(dst, dr, src, sr, draw.Src, nil)
	return sr
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
