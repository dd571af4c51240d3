// Package generation talks to the external image-generation service: text-only
// generation for backgrounds and image-conditioned stylization for captured
// photos. Two adapters implement Service: HTTPClient for the booth backend's
// REST surface and GenAIService for calling the provider directly.
package generation

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"slices"

	"github.com/fpang/photo-booth/internal/filehandler"
)

// Default models.
const (
	DefaultImageModel   = "imagen-4.0-generate-001"
	DefaultStylizeModel = "gemini-2.5-flash-image-preview"
)

// MaxImages is the most images a single request may ask for.
const MaxImages = 4

// Accepted values for the optional request parameters.
var (
	AspectRatios     = []string{"1:1", "3:4", "4:3", "9:16", "16:9"}
	SampleImageSizes = []string{"1K", "2K"}
)

// GenerateRequest is a text-only generation request.
type GenerateRequest struct {
	Prompt           string `json:"prompt"`
	NumberOfImages   int    `json:"number_of_images"`
	AspectRatio      string `json:"aspect_ratio,omitempty"`
	SampleImageSize  string `json:"sample_image_size,omitempty"`
	PersonGeneration string `json:"person_generation,omitempty"`
	Model            string `json:"model,omitempty"`
}

// Validate checks the request against the service's accepted parameter ranges.
func (r GenerateRequest) Validate() error {
	if r.Prompt == "" {
		return invalidRequest("prompt is required")
	}
	if err := validateCount(r.NumberOfImages); err != nil {
		return err
	}
	if r.AspectRatio != "" && !slices.Contains(AspectRatios, r.AspectRatio) {
		return invalidRequest(fmt.Sprintf("unsupported aspect ratio %q", r.AspectRatio))
	}
	if r.SampleImageSize != "" && !slices.Contains(SampleImageSizes, r.SampleImageSize) {
		return invalidRequest(fmt.Sprintf("unsupported sample image size %q", r.SampleImageSize))
	}
	return nil
}

// StylizeRequest conditions generation on an input photo.
type StylizeRequest struct {
	Prompt           string
	NumberOfImages   int
	AspectRatio      string
	SampleImageSize  string
	PersonGeneration string
	Model            string

	// Image holds the encoded input photo.
	Image []byte
	// ImageMIMEType defaults to the sniffed type of Image.
	ImageMIMEType string
}

// Validate checks the request before it is sent.
func (r StylizeRequest) Validate() error {
	if r.Prompt == "" {
		return invalidRequest("prompt is required")
	}
	if len(r.Image) == 0 {
		return invalidRequest("input image is empty")
	}
	return validateCount(r.NumberOfImages)
}

func (r StylizeRequest) mimeType() string {
	if r.ImageMIMEType != "" {
		return r.ImageMIMEType
	}
	if mime, err := filehandler.DetectMIME(r.Image); err == nil {
		return mime
	}
	return "image/png"
}

func validateCount(n int) error {
	if n < 1 || n > MaxImages {
		return invalidRequest(fmt.Sprintf("number_of_images must be between 1 and %d, got %d", MaxImages, n))
	}
	return nil
}

// GeneratedImage is one base64-encoded result image.
type GeneratedImage struct {
	ImageBase64 string `json:"image_base64"`
}

// Response is the service's reply. A successful reply has at least one image.
type Response struct {
	Images []GeneratedImage `json:"images"`
}

// FirstBytes decodes the base64 payload of the first image.
func (r *Response) FirstBytes() ([]byte, error) {
	if r == nil || len(r.Images) == 0 {
		return nil, ErrNoImages
	}
	data, err := base64.StdEncoding.DecodeString(r.Images[0].ImageBase64)
	if err != nil {
		return nil, &Error{Type: ErrTypeMalformed, Message: "image payload is not valid base64", Err: err}
	}
	return data, nil
}

// First decodes the first image into a raster.
func (r *Response) First() (image.Image, error) {
	data, err := r.FirstBytes()
	if err != nil {
		return nil, err
	}
	img, _, err := filehandler.DecodeImage(data)
	if err != nil {
		return nil, &Error{Type: ErrTypeMalformed, Message: "image payload could not be decoded", Err: err}
	}
	return img, nil
}

// Service is the external image-generation capability.
type Service interface {
	// Generate produces images from a text prompt.
	Generate(ctx context.Context, req GenerateRequest) (*Response, error)
	// Stylize produces images conditioned on an input photo and a prompt.
	Stylize(ctx context.Context, req StylizeRequest) (*Response, error)
}

func encodeImages(blobs [][]byte) *Response {
	resp := &Response{Images: make([]GeneratedImage, 0, len(blobs))}
	for _, b := range blobs {
		resp.Images = append(resp.Images, GeneratedImage{ImageBase64: base64.StdEncoding.EncodeToString(b)})
	}
	return resp
}
