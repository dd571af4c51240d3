package filehandler

import (
	"image"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// DefaultPreviewMaxDimension bounds live frames streamed to the kiosk UI.
const DefaultPreviewMaxDimension = 960

// Downscale returns img resized so neither side exceeds maxDimension,
// keeping the aspect ratio. Images already within bounds are returned as is.
func Downscale(img image.Image, maxDimension int) image.Image {
	bounds := img.Bounds()
	origWidth, origHeight := bounds.Dx(), bounds.Dy()

	newWidth, newHeight := calculateThumbnailDimensions(origWidth, origHeight, maxDimension)
	if newWidth == origWidth && newHeight == origHeight {
		return img
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	log.Debug().
		Int("orig_width", origWidth).
		Int("orig_height", origHeight).
		Int("new_width", newWidth).
		Int("new_height", newHeight).
		Msg("Frame downscaled")

	return resized
}

// calculateThumbnailDimensions calculates new dimensions maintaining aspect ratio.
func calculateThumbnailDimensions(width, height, maxDimension int) (int, int) {
	if maxDimension <= 0 || (width <= maxDimension && height <= maxDimension) {
		return width, height
	}

	if width > height {
		newHeight := int(float64(height) * float64(maxDimension) / float64(width))
		return maxDimension, max(newHeight, 1)
	}

	newWidth := int(float64(width) * float64(maxDimension) / float64(height))
	return max(newWidth, 1), maxDimension
}
