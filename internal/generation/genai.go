package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// models is the subset of genai.Models used here.
type models interface {
	GenerateImages(ctx context.Context, model string, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAIConfig selects the provider models. Empty fields take the defaults.
type GenAIConfig struct {
	ImageModel   string
	StylizeModel string
}

// GenAIService calls the Gemini API directly: Imagen for text-only
// generation and the Gemini image model for photo stylization.
type GenAIService struct {
	models       models
	imageModel   string
	stylizeModel string
}

// NewGenAIService wraps an existing client.
func NewGenAIService(client *genai.Client, cfg GenAIConfig) *GenAIService {
	return newGenAIService(client.Models, cfg)
}

func newGenAIService(m models, cfg GenAIConfig) *GenAIService {
	s := &GenAIService{models: m, imageModel: cfg.ImageModel, stylizeModel: cfg.StylizeModel}
	if s.imageModel == "" {
		s.imageModel = DefaultImageModel
	}
	if s.stylizeModel == "" {
		s.stylizeModel = DefaultStylizeModel
	}
	return s
}

// NewGenAIClient creates a Gemini API client for apiKey.
func NewGenAIClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// Generate implements Service with Models.GenerateImages.
func (s *GenAIService) Generate(ctx context.Context, req GenerateRequest) (resp *Response, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	model := req.Model
	if model == "" {
		model = s.imageModel
	}

	start := time.Now()
	defer func() { recordCall("genai", "generate", start, err) }()

	cfg := &genai.GenerateImagesConfig{
		NumberOfImages:   int32(req.NumberOfImages),
		AspectRatio:      req.AspectRatio,
		ImageSize:        req.SampleImageSize,
		PersonGeneration: genai.PersonGeneration(req.PersonGeneration),
	}

	log.Debug().
		Str("model", model).
		Str("prompt", truncateString(req.Prompt, 100)).
		Int("images", req.NumberOfImages).
		Msg("Generate: calling Imagen")

	result, err := s.models.GenerateImages(ctx, model, req.Prompt, cfg)
	if err != nil {
		return nil, classifyError("generate", err)
	}

	var blobs [][]byte
	if result != nil {
		for _, gi := range result.GeneratedImages {
			if gi == nil || gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
				if gi != nil && gi.RAIFilteredReason != "" {
					log.Warn().Str("reason", gi.RAIFilteredReason).Msg("Generated image was filtered")
				}
				continue
			}
			blobs = append(blobs, gi.Image.ImageBytes)
		}
	}
	if len(blobs) == 0 {
		return nil, emptyResult("generate")
	}

	log.Debug().
		Int("images", len(blobs)).
		Dur("duration", time.Since(start)).
		Msg("Generate: Imagen call completed")
	return encodeImages(blobs), nil
}

// Stylize implements Service with a multimodal GenerateContent call: the
// photo as inline data followed by the prompt. Only the first returned image
// is used.
func (s *GenAIService) Stylize(ctx context.Context, req StylizeRequest) (resp *Response, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	model := req.Model
	if model == "" || model == DefaultImageModel {
		model = s.stylizeModel
	}

	start := time.Now()
	defer func() { recordCall("genai", "stylize", start, err) }()

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: req.mimeType(), Data: req.Image}},
				{Text: req.Prompt},
			},
		},
	}
	cfg := &genai.GenerateContentConfig{
		CandidateCount:     1,
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	log.Debug().
		Str("model", model).
		Str("prompt", truncateString(req.Prompt, 100)).
		Int("image_bytes", len(req.Image)).
		Msg("Stylize: calling Gemini image model")

	result, err := s.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, classifyError("stylize", err)
	}

	blobs := inlineImages(result)
	if len(blobs) == 0 {
		return nil, emptyResult("stylize")
	}

	log.Debug().
		Int("output_bytes", len(blobs[0])).
		Dur("duration", time.Since(start)).
		Msg("Stylize: Gemini call completed")
	return encodeImages(blobs[:1]), nil
}

// inlineImages collects image parts from every candidate.
func inlineImages(resp *genai.GenerateContentResponse) [][]byte {
	if resp == nil {
		return nil
	}
	var out [][]byte
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			out = append(out, p.InlineData.Data)
		}
	}
	return out
}
