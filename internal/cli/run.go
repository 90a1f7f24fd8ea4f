package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/smartclip/smartclip/internal/pipeline"
	"github.com/smartclip/smartclip/internal/types"
)

func run(cmd *cobra.Command, input string) error {
	outDir, _ := cmd.Flags().GetString("out")
	clips, _ := cmd.Flags().GetInt("clips")
	aspect, _ := cmd.Flags().GetString("aspect")
	style, _ := cmd.Flags().GetString("style")
	styleFile, _ := cmd.Flags().GetString("styles")
	noCaptions, _ := cmd.Flags().GetBool("no-captions")
	language, _ := cmd.Flags().GetString("language")
	minSec, _ := cmd.Flags().GetInt("min")
	maxSec, _ := cmd.Flags().GetInt("max")
	windowSec, _ := cmd.Flags().GetFloat64("window")
	overlapSec, _ := cmd.Flags().GetFloat64("overlap")

	apiKey := os.Getenv("CLIPAI_API_KEY")
	if apiKey == "" {
		return errors.New("CLIPAI_API_KEY is required (set it in .env)")
	}

	absIn, err := filepath.Abs(input)
	if err != nil {
		return err
	}

	logger := newLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Hour)
	defer cancel()

	cfg := pipeline.Config{
		Input:    absIn,
		OutDir:   outDir,
		MaxClips: clips,
		MinClip:  time.Duration(minSec) * time.Second,
		MaxClip:  time.Duration(maxSec) * time.Second,

		Aspect:     types.AspectRatio(aspect),
		Style:      types.CaptionStyle(style),
		StyleFile:  styleFile,
		NoCaptions: noCaptions,
		Language:   language,

		WindowSec:  windowSec,
		OverlapSec: overlapSec,

		FFmpegPath:  os.Getenv("FFMPEG_PATH"),
		FFprobePath: os.Getenv("FFPROBE_PATH"),

		AnalyzerAPIKey:       apiKey,
		AnalyzerModel:        os.Getenv("CLIPAI_MODEL"),
		AnalyzerBaseURL:      os.Getenv("CLIPAI_BASE_URL"),
		AnalyzerAllowedHosts: splitHosts(os.Getenv("CLIPAI_ALLOWED_HOSTS")),

		Logger: logger,
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return pipeline.Run(ctx, cfg)
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL"))); err == nil && l != zerolog.NoLevel {
		level = l
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

func splitHosts(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
