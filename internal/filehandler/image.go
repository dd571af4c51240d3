package filehandler

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"
)

// DefaultJPEGQuality is the quality used when captured frames are sent for styling.
const DefaultJPEGQuality = 92

// ImageMetadata contains the EXIF fields the booth cares about.
type ImageMetadata struct {
	DateTaken time.Time
	HasDate   bool

	CameraMake  string
	CameraModel string
}

// ExtractImageMetadata reads EXIF metadata from an image file using the
// imagemeta library. Only the metadata block is read, not the pixel data.
//
// The date falls back from DateTimeOriginal to CreateDate to ModifyDate.
func ExtractImageMetadata(filePath string) (*ImageMetadata, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	exifData, err := imagemeta.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF metadata: %w", err)
	}

	metadata := &ImageMetadata{
		CameraMake:  strings.TrimSpace(exifData.Make),
		CameraModel: strings.TrimSpace(exifData.Model),
	}

	switch {
	case !exifData.DateTimeOriginal().IsZero():
		metadata.DateTaken = exifData.DateTimeOriginal()
		metadata.HasDate = true
	case !exifData.CreateDate().IsZero():
		metadata.DateTaken = exifData.CreateDate()
		metadata.HasDate = true
	case !exifData.ModifyDate().IsZero():
		metadata.DateTaken = exifData.ModifyDate()
		metadata.HasDate = true
	}

	log.Debug().
		Str("path", filePath).
		Bool("has_date", metadata.HasDate).
		Str("camera", metadata.CameraMake+" "+metadata.CameraModel).
		Msg("Image metadata extraction complete")

	return metadata, nil
}

// DecodeImage decodes JPEG, PNG, GIF or WebP bytes. It returns the decoded
// image and the sniffed MIME type.
func DecodeImage(data []byte) (image.Image, string, error) {
	mimeType, err := DetectMIME(data)
	if err != nil {
		return nil, "", err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, mimeType, fmt.Errorf("failed to decode %s: %w", mimeType, err)
	}
	return img, mimeType, nil
}

// DecodeImageFile reads and decodes an image file.
func DecodeImageFile(filePath string) (image.Image, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	img, _, err := DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return img, nil
}

// EncodeJPEG encodes img as JPEG at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := WritePNG(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WritePNG streams img as PNG to w.
func WritePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return nil
}
