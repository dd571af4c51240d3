package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fpang/photo-booth/internal/booth"
	"github.com/fpang/photo-booth/internal/camera"
	"github.com/fpang/photo-booth/internal/cli"
	"github.com/fpang/photo-booth/internal/collage"
	"github.com/fpang/photo-booth/internal/config"
	"github.com/fpang/photo-booth/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// CLI flags
var (
	configFlag string
	portFlag   int
	cameraFlag string
)

var rootCmd = &cobra.Command{
	Use:   "booth-web",
	Short: "Kiosk server for the AI photo booth",
	Long: `Booth Web runs the photo booth session behind a local HTTP API. The kiosk
page drives the countdown, shows the live frame and the collage, and follows
progress over the /api/events websocket.

Examples:
  booth-web
  booth-web --port 9090
  booth-web --config booth.toml --camera replay:./samples`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&configFlag, "config", "c", logging.EnvOrDefault("BOOTH_CONFIG", ""), "TOML config file (default $BOOTH_CONFIG)")
	rootCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.Flags().StringVar(&cameraFlag, "camera", "", "Camera: screen or replay:<dir> (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.Load(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if portFlag != 0 {
		cfg.Server.Port = portFlag
	}
	if cameraFlag != "" {
		cfg.Capture.Camera = cameraFlag
	}

	startup := logging.NewStartupLogger("booth-web").
		CommitHash(commitHash).
		BuildTime(buildTime).
		Config("camera", cfg.Capture.Camera).
		Config("exportDir", cfg.Server.ExportDir).
		Config("port", fmt.Sprint(cfg.Server.Port)).
		Feature("customFont", cfg.Collage.CaptionFont != "").
		Feature("customStyles", cfg.StylesPath != "")

	device, err := camera.FromSpec(cfg.Capture.Camera)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid camera")
	}
	composer, err := collage.NewComposer(cfg.ComposerOptions())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load caption font")
	}
	width, height := composer.Size()
	startup.Config("canvas", fmt.Sprintf("%dx%d", width, height))
	styleCfg, err := cli.StyleConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid style catalog")
	}

	ctx := context.Background()
	svc := cli.InitGenerationService(ctx, cfg, startup)

	session, err := booth.NewSession(device, svc, composer, booth.Options{
		Capture:      cfg.CaptureOptions(),
		Style:        styleCfg,
		CaptionDelay: cfg.Collage.CaptionDebounce.Duration,
		Caption:      cfg.Collage.DefaultCaption,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create booth session")
	}

	srv := &server{session: session, exportDir: cfg.Server.ExportDir}
	handler := withLogging(withCORS(srv.routes()))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(ctx)
	}()

	startup.InitDuration(time.Since(initStart)).Log()
	fmt.Printf("\n  Photo booth: http://localhost:%d\n\n", cfg.Server.Port)

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
	if err := session.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to release camera")
	}
}

// --- Middleware ---

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if strings.HasPrefix(r.URL.Path, "/api/") && r.URL.Path != "/api/session/frame" {
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("duration", time.Since(start)).
				Msg("API request")
		}
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only allow localhost origins; the kiosk page is served locally.
		origin := r.Header.Get("Origin")
		if origin != "" && (strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
