package collage

import (
	"errors"
	"fmt"
	"image"

	"github.com/fpang/photo-booth/internal/filehandler"
)

// ErrMissingSources is returned when fewer than four cell sources resolve.
var ErrMissingSources = errors.New("missing collage sources")

// ImageDecodeError reports a source that could not be decoded.
type ImageDecodeError struct {
	Source string
	Err    error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Source, e.Err)
}

func (e *ImageDecodeError) Unwrap() error {
	return e.Err
}

// Source is an image for a cell or the background, either already decoded
// or as encoded bytes. The zero Source is absent.
type Source struct {
	name string
	img  image.Image
	data []byte
}

// FromImage wraps a decoded image. A nil image yields an absent Source.
func FromImage(img image.Image) Source {
	return Source{img: img}
}

// FromBytes wraps encoded image bytes (JPEG, PNG, GIF or WebP). name is used
// in error messages.
func FromBytes(name string, data []byte) Source {
	return Source{name: name, data: data}
}

// Present reports whether the source holds anything to draw.
func (s Source) Present() bool {
	return s.img != nil || s.data != nil
}

func (s Source) decode(label string) (image.Image, error) {
	name := label
	if s.name != "" {
		name = fmt.Sprintf("%s (%s)", label, s.name)
	}
	img := s.img
	if img == nil {
		var err error
		img, _, err = filehandler.DecodeImage(s.data)
		if err != nil {
			return nil, &ImageDecodeError{Source: name, Err: err}
		}
	}
	if img.Bounds().Empty() {
		return nil, &ImageDecodeError{Source: name, Err: errors.New("image has no pixels")}
	}
	return img, nil
}
