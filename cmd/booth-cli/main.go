package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fpang/photo-booth/internal/booth"
	"github.com/fpang/photo-booth/internal/cli"
	"github.com/fpang/photo-booth/internal/collage"
	"github.com/fpang/photo-booth/internal/config"
	"github.com/fpang/photo-booth/internal/logging"
	"github.com/fpang/photo-booth/internal/style"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// CLI flags
var (
	configFlag      string
	photosFlag      []string
	dirFlag         string
	pickFlag        bool
	subjectFlag     string
	backgroundFlag  string
	captionFlag     string
	outFlag         string
	backendFlag     string
	interactiveFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "booth-cli",
	Short: "Build a styled photo booth collage from four photos",
	Long: `Booth CLI runs four existing photos through the photo booth pipeline: the
photos are placed into the collage in order, the chosen styles are applied
through the generation service, and the collage is written as PNG.

Examples:
  booth-cli --photos a.jpg,b.jpg,c.jpg,d.jpg --subject Q版公仔風格 --out collage.png
  booth-cli --dir ./shots --background 夢幻星空 --caption "Happy Birthday"
  booth-cli --pick --interactive
  booth-cli --dir ./shots --backend genai`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&configFlag, "config", "c", logging.EnvOrDefault("BOOTH_CONFIG", ""), "TOML config file (default $BOOTH_CONFIG)")
	rootCmd.Flags().StringSliceVarP(&photosFlag, "photos", "p", nil, "Four photo files, in slot order")
	rootCmd.Flags().StringVarP(&dirFlag, "dir", "d", "", "Directory to take the first four photos from, oldest first")
	rootCmd.Flags().BoolVar(&pickFlag, "pick", false, "Choose the photos with a file picker")
	rootCmd.Flags().StringVarP(&subjectFlag, "subject", "s", "", "Subject style ID")
	rootCmd.Flags().StringVarP(&backgroundFlag, "background", "b", "", "Background style ID")
	rootCmd.Flags().StringVar(&captionFlag, "caption", "", "Caption text (defaults to the configured caption)")
	rootCmd.Flags().StringVarP(&outFlag, "out", "o", "collage.png", "Output PNG path")
	rootCmd.Flags().StringVar(&backendFlag, "backend", "", "Generation backend: http or genai (overrides config)")
	rootCmd.Flags().BoolVarP(&interactiveFlag, "interactive", "i", false, "Choose styles from a menu")
	rootCmd.MarkFlagsMutuallyExclusive("photos", "dir", "pick")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	logging.Init()

	cfg, err := config.Load(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if backendFlag != "" {
		cfg.Generation.Backend = backendFlag
		if err := cfg.Validate(); err != nil {
			log.Fatal().Err(err).Msg("Invalid backend")
		}
	}

	paths, err := resolvePaths()
	if err != nil {
		if errors.Is(err, errPickCanceled) {
			fmt.Println("No photos selected.")
			return
		}
		log.Fatal().Err(err).Msg("Failed to find photos")
	}
	photos, err := loadPhotos(paths)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load photos")
	}

	styleCfg, err := cli.StyleConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid style catalog")
	}
	sel := style.Selection{SubjectID: subjectFlag, BackgroundID: backgroundFlag}
	if interactiveFlag {
		sel.SubjectID = cli.PromptForStyle(os.Stdin, os.Stdout, "Subject style", styleCfg.Catalog.Subjects)
		sel.BackgroundID = cli.PromptForStyle(os.Stdin, os.Stdout, "Background style", styleCfg.Catalog.Backgrounds)
	}
	if err := styleCfg.Catalog.Validate(sel); err != nil {
		log.Fatal().Err(err).Msg("Invalid style")
	}

	caption := cfg.Collage.DefaultCaption
	if cmd.Flags().Changed("caption") {
		caption = captionFlag
	}

	composer, err := collage.NewComposer(cfg.ComposerOptions())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load caption font")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startup := logging.NewStartupLogger("booth-cli").
		Config("photos", fmt.Sprint(len(paths))).
		Config("out", outFlag)
	svc := cli.InitGenerationService(ctx, cfg, startup)
	startup.Log()

	res, err := runJob(ctx, job{Photos: photos, Selection: sel, Caption: caption, Style: styleCfg}, svc, composer)
	if err != nil {
		if msg := booth.UserMessage(err); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		log.Fatal().Err(err).Msg("Collage run failed")
	}

	if err := res.Collage.WritePNG(outFlag); err != nil {
		log.Fatal().Err(err).Msg("Failed to write collage")
	}
	if res.Status.Error != "" {
		fmt.Fprintln(os.Stderr, res.Status.Error)
	}
	fmt.Println(cli.RunSummary(outFlag, res.Elapsed, res.Status))
}

func resolvePaths() ([]string, error) {
	switch {
	case pickFlag:
		return pickPhotos()
	case dirFlag != "":
		return photosFromDir(cli.ValidateAndResolveDirectory(dirFlag))
	case len(photosFlag) > 0:
		return photosFlag, nil
	default:
		return nil, fmt.Errorf("give --photos, --dir or --pick")
	}
}
