package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "booth.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Generation.Backend != BackendHTTP || cfg.Generation.BackgroundSize != "2K" || cfg.Generation.AspectRatio != "3:4" {
		t.Errorf("unexpected generation defaults: %+v", cfg.Generation)
	}
	if cfg.Collage.Width != 1200 || cfg.Collage.Height != 1600 {
		t.Errorf("canvas = %dx%d, want 1200x1600", cfg.Collage.Width, cfg.Collage.Height)
	}
	if cfg.Collage.CaptionDebounce.Duration != 300*time.Millisecond {
		t.Errorf("caption debounce = %v, want 300ms", cfg.Collage.CaptionDebounce)
	}
	opts := cfg.CaptureOptions()
	if opts.CountdownSeconds != 5 || opts.Tick != time.Second || opts.StabilizationDelay != 800*time.Millisecond || opts.RetakeDelay != 500*time.Millisecond {
		t.Errorf("capture options = %+v", opts)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
styles_path = "/etc/booth/styles.toml"

[generation]
backend = "genai"
background_size = "1K"
request_timeout = "45s"

[capture]
camera = "replay:/srv/demo"
countdown_seconds = 3
tick = "250ms"

[collage]
caption_font = "/usr/share/fonts/noto.otf"
caption_size = 56.0

[server]
port = 9090
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Generation.Backend != BackendGenAI || cfg.Generation.BackgroundSize != "1K" {
		t.Errorf("generation = %+v", cfg.Generation)
	}
	if cfg.Generation.RequestTimeout.Duration != 45*time.Second {
		t.Errorf("request timeout = %v", cfg.Generation.RequestTimeout)
	}
	if cfg.Capture.Camera != "replay:/srv/demo" || cfg.Capture.CountdownSeconds != 3 || cfg.Capture.Tick.Duration != 250*time.Millisecond {
		t.Errorf("capture = %+v", cfg.Capture)
	}
	// Unset keys keep their defaults.
	if cfg.Capture.RetakeDelay.Duration != 500*time.Millisecond {
		t.Errorf("retake delay = %v, want default", cfg.Capture.RetakeDelay)
	}
	if o := cfg.ComposerOptions(); o.FontPath != "/usr/share/fonts/noto.otf" || o.CaptionSize != 56 {
		t.Errorf("composer options = %+v", o)
	}
	if cfg.Server.Port != 9090 || cfg.StylesPath != "/etc/booth/styles.toml" {
		t.Errorf("server = %+v styles = %q", cfg.Server, cfg.StylesPath)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9090
`)
	t.Setenv("BOOTH_PORT", "7070")
	t.Setenv("BOOTH_CAMERA", "replay:/tmp/x")
	t.Setenv("BOOTH_REQUEST_TIMEOUT", "5s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Capture.Camera != "replay:/tmp/x" {
		t.Errorf("camera = %q", cfg.Capture.Camera)
	}
	if cfg.Generation.RequestTimeout.Duration != 5*time.Second {
		t.Errorf("timeout = %v", cfg.Generation.RequestTimeout)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "unknown key", body: "[server]\nhost = \"x\"\n"},
		{name: "bad duration", body: "[capture]\ntick = \"soon\"\n"},
		{name: "bad backend", body: "[generation]\nbackend = \"carrier-pigeon\"\n"},
		{name: "bad size", body: "[generation]\nbackground_size = \"8K\"\n"},
		{name: "bad aspect", body: "[generation]\naspect_ratio = \"2:1\"\n"},
		{name: "zero countdown", body: "[capture]\ncountdown_seconds = 0\n"},
		{name: "http without url", body: "[generation]\nservice_url = \"\"\n"},
		{name: "bad env int", body: "", env: map[string]string{"BOOTH_PORT": "eighty"}},
		{name: "port out of range", body: "", env: map[string]string{"BOOTH_PORT": "70000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.body != "" {
				path = writeConfig(t, tt.body)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}
