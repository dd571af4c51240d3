// Package cli holds the start-up wiring shared by the booth binaries.
package cli

import (
	"context"
	"fmt"

	"github.com/fpang/photo-booth/internal/auth"
	"github.com/fpang/photo-booth/internal/config"
	"github.com/fpang/photo-booth/internal/generation"
	"github.com/fpang/photo-booth/internal/logging"
	"github.com/fpang/photo-booth/internal/style"
	"github.com/rs/zerolog/log"
)

// InitGenerationService builds the generation backend selected in cfg and
// registers it with the startup log. The genai backend needs a valid API
// key and exits fatally without one; the http backend only warns when the
// service does not answer its health check, since it may come up later.
func InitGenerationService(ctx context.Context, cfg config.Config, startup *logging.StartupLogger) generation.Service {
	g := cfg.Generation
	startup.Config("backend", g.Backend).
		Model("generate", g.ImageModel).
		Model("stylize", g.StylizeModel)

	if g.Backend == config.BackendGenAI {
		apiKey, err := auth.GetAPIKey()
		if err != nil {
			HandleValidationError(err)
		}
		client, err := generation.NewGenAIClient(ctx, apiKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Gemini client")
		}
		if err := auth.ValidateAPIKey(ctx, client); err != nil {
			HandleValidationError(err)
		}
		log.Info().Msg("API key validated, using the genai backend")
		startup.Endpoint("generation", "gemini-api")
		return generation.NewGenAIService(client, generation.GenAIConfig{
			ImageModel:   g.ImageModel,
			StylizeModel: g.StylizeModel,
		})
	}

	client := generation.NewHTTPClient(g.ServiceURL, g.RequestTimeout.Duration)
	startup.Endpoint("generation", g.ServiceURL)
	if err := client.Health(ctx); err != nil {
		log.Warn().Err(err).Str("url", g.ServiceURL).Msg("Generation service is not reachable yet")
	}
	return client
}

// StyleConfig loads the style catalog named in cfg, or the built-in one,
// and returns the orchestrator settings.
func StyleConfig(cfg config.Config) (style.Config, error) {
	catalog, err := style.DefaultCatalog()
	if cfg.StylesPath != "" {
		catalog, err = style.LoadCatalog(cfg.StylesPath)
	}
	if err != nil {
		return style.Config{}, fmt.Errorf("failed to load styles: %w", err)
	}
	return style.Config{
		Catalog:         catalog,
		AspectRatio:     cfg.Generation.AspectRatio,
		SampleImageSize: cfg.Generation.BackgroundSize,
		ImageModel:      cfg.Generation.ImageModel,
		StylizeModel:    cfg.Generation.StylizeModel,
		JPEGQuality:     cfg.Generation.JPEGQuality,
	}, nil
}
