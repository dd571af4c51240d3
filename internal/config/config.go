// Package config loads booth settings: built-in defaults, then an optional
// TOML file, then BOOTH_* environment overrides.
package config

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/fpang/photo-booth/internal/capture"
	"github.com/fpang/photo-booth/internal/collage"
	"github.com/fpang/photo-booth/internal/debounce"
	"github.com/fpang/photo-booth/internal/generation"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

// Generation backends.
const (
	BackendHTTP  = "http"
	BackendGenAI = "genai"
)

// Duration is a time.Duration written as a Go duration string ("800ms").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// GenerationConfig selects and tunes the image-generation backend.
type GenerationConfig struct {
	Backend        string   `toml:"backend"`
	ServiceURL     string   `toml:"service_url"`
	ImageModel     string   `toml:"image_model"`
	StylizeModel   string   `toml:"stylize_model"`
	AspectRatio    string   `toml:"aspect_ratio"`
	BackgroundSize string   `toml:"background_size"`
	RequestTimeout Duration `toml:"request_timeout"`
	JPEGQuality    int      `toml:"jpeg_quality"`
}

// CaptureConfig tunes the countdown and camera timing.
type CaptureConfig struct {
	Camera             string   `toml:"camera"`
	CountdownSeconds   int      `toml:"countdown_seconds"`
	Tick               Duration `toml:"tick"`
	StabilizationDelay Duration `toml:"stabilization_delay"`
	RetakeDelay        Duration `toml:"retake_delay"`
}

// CollageConfig sets the canvas and caption.
type CollageConfig struct {
	Width           int      `toml:"width"`
	Height          int      `toml:"height"`
	CaptionFont     string   `toml:"caption_font"`
	CaptionSize     float64  `toml:"caption_size"`
	CaptionDebounce Duration `toml:"caption_debounce"`
	DefaultCaption  string   `toml:"default_caption"`
}

// ServerConfig configures booth-web.
type ServerConfig struct {
	Port      int    `toml:"port"`
	ExportDir string `toml:"export_dir"`
}

// Config is the complete booth configuration.
type Config struct {
	Generation GenerationConfig `toml:"generation"`
	Capture    CaptureConfig    `toml:"capture"`
	Collage    CollageConfig    `toml:"collage"`
	Server     ServerConfig     `toml:"server"`
	// StylesPath optionally replaces the built-in style catalog.
	StylesPath string `toml:"styles_path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Generation: GenerationConfig{
			Backend:        BackendHTTP,
			ServiceURL:     "http://localhost:8000",
			ImageModel:     generation.DefaultImageModel,
			StylizeModel:   generation.DefaultStylizeModel,
			AspectRatio:    "3:4",
			BackgroundSize: "2K",
			RequestTimeout: Duration{generation.DefaultRequestTimeout},
			JPEGQuality:    92,
		},
		Capture: CaptureConfig{
			Camera:             "screen",
			CountdownSeconds:   capture.DefaultCountdownSeconds,
			Tick:               Duration{capture.DefaultTick},
			StabilizationDelay: Duration{capture.DefaultStabilizationDelay},
			RetakeDelay:        Duration{capture.DefaultRetakeDelay},
		},
		Collage: CollageConfig{
			Width:           collage.DefaultWidth,
			Height:          collage.DefaultHeight,
			CaptionDebounce: Duration{debounce.DefaultDelay},
		},
		Server: ServerConfig{
			Port:      8080,
			ExportDir: "exports",
		},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and environment overrides apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		log.Debug().Str("path", path).Msg("Config file loaded")
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := []struct {
		env string
		dst *string
	}{
		{"BOOTH_BACKEND", &c.Generation.Backend},
		{"BOOTH_SERVICE_URL", &c.Generation.ServiceURL},
		{"BOOTH_IMAGE_MODEL", &c.Generation.ImageModel},
		{"BOOTH_STYLIZE_MODEL", &c.Generation.StylizeModel},
		{"BOOTH_BACKGROUND_SIZE", &c.Generation.BackgroundSize},
		{"BOOTH_CAMERA", &c.Capture.Camera},
		{"BOOTH_CAPTION_FONT", &c.Collage.CaptionFont},
		{"BOOTH_EXPORT_DIR", &c.Server.ExportDir},
		{"BOOTH_STYLES", &c.StylesPath},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"BOOTH_PORT", &c.Server.Port},
		{"BOOTH_COUNTDOWN_SECONDS", &c.Capture.CountdownSeconds},
	}
	for _, n := range ints {
		v := os.Getenv(n.env)
		if v == "" {
			continue
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer, got %q", n.env, v)
		}
		*n.dst = i
	}

	if v := os.Getenv("BOOTH_REQUEST_TIMEOUT"); v != "" {
		if err := c.Generation.RequestTimeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("BOOTH_REQUEST_TIMEOUT: %w", err)
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	g := c.Generation
	switch g.Backend {
	case BackendHTTP:
		if g.ServiceURL == "" {
			return fmt.Errorf("generation.service_url is required for the %s backend", BackendHTTP)
		}
	case BackendGenAI:
	default:
		return fmt.Errorf("generation.backend must be %q or %q, got %q", BackendHTTP, BackendGenAI, g.Backend)
	}
	if !slices.Contains(generation.AspectRatios, g.AspectRatio) {
		return fmt.Errorf("generation.aspect_ratio %q is not one of %v", g.AspectRatio, generation.AspectRatios)
	}
	if !slices.Contains(generation.SampleImageSizes, g.BackgroundSize) {
		return fmt.Errorf("generation.background_size %q is not one of %v", g.BackgroundSize, generation.SampleImageSizes)
	}
	if g.JPEGQuality < 1 || g.JPEGQuality > 100 {
		return fmt.Errorf("generation.jpeg_quality must be 1-100, got %d", g.JPEGQuality)
	}
	if c.Capture.CountdownSeconds < 1 {
		return fmt.Errorf("capture.countdown_seconds must be at least 1, got %d", c.Capture.CountdownSeconds)
	}
	if c.Capture.Tick.Duration <= 0 {
		return fmt.Errorf("capture.tick must be positive")
	}
	if c.Collage.Width <= 0 || c.Collage.Height <= 0 {
		return fmt.Errorf("collage canvas must be positive, got %dx%d", c.Collage.Width, c.Collage.Height)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// CaptureOptions converts the capture section for capture.NewController.
func (c Config) CaptureOptions() capture.Options {
	return capture.Options{
		CountdownSeconds:   c.Capture.CountdownSeconds,
		Tick:               c.Capture.Tick.Duration,
		StabilizationDelay: c.Capture.StabilizationDelay.Duration,
		RetakeDelay:        c.Capture.RetakeDelay.Duration,
	}
}

// ComposerOptions converts the collage section for collage.NewComposer.
func (c Config) ComposerOptions() collage.Options {
	return collage.Options{
		Width:       c.Collage.Width,
		Height:      c.Collage.Height,
		FontPath:    c.Collage.CaptionFont,
		CaptionSize: c.Collage.CaptionSize,
	}
}
