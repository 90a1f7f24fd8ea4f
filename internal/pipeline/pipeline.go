// Package pipeline wires the adapters to the analysis and render stages
// and owns the on-disk layout of a run: the per-run output directory,
// the rendered clips and the results manifest.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/smartclip/smartclip/internal/chunker"
	"github.com/smartclip/smartclip/internal/domain/subtitles"
	"github.com/smartclip/smartclip/internal/encoder"
	"github.com/smartclip/smartclip/internal/ports/adapters/clipai"
	"github.com/smartclip/smartclip/internal/ports/adapters/ffmpeg"
	"github.com/smartclip/smartclip/internal/render"
	"github.com/smartclip/smartclip/internal/types"
)

type Config struct {
	Input    string
	OutDir   string
	MaxClips int
	MinClip  time.Duration
	MaxClip  time.Duration

	Aspect     types.AspectRatio
	Style      types.CaptionStyle
	StyleFile  string
	NoCaptions bool
	Language   string

	// WindowSec/OverlapSec tune chunked analysis. Zero uses the defaults.
	WindowSec  float64
	OverlapSec float64

	FFmpegPath  string
	FFprobePath string

	AnalyzerAPIKey       string
	AnalyzerModel        string
	AnalyzerBaseURL      string
	AnalyzerAllowedHosts []string

	Logger zerolog.Logger
}

func (c Config) Validate() error {
	if c.Input == "" {
		return errors.New("input is empty")
	}
	if _, err := os.Stat(c.Input); err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	if c.MaxClips <= 0 {
		return fmt.Errorf("clips must be > 0")
	}
	if c.MinClip <= 0 {
		return fmt.Errorf("min clip must be > 0")
	}
	if c.MaxClip <= 0 {
		return fmt.Errorf("max clip must be > 0")
	}
	if c.MinClip > c.MaxClip {
		return fmt.Errorf("min clip must be <= max clip")
	}
	// Compare against the effective values: an unset window still defaults
	// to 1800s downstream, so an oversized explicit overlap must not slip
	// past validation.
	window := c.WindowSec
	if window <= 0 {
		window = chunker.DefaultWindowSeconds
	}
	overlap := c.OverlapSec
	if overlap <= 0 {
		overlap = chunker.DefaultOverlapSeconds
	}
	if overlap >= window {
		return fmt.Errorf("analysis overlap (%.0fs) must be smaller than the window (%.0fs)", overlap, window)
	}
	return clipai.ValidateBaseURL(c.AnalyzerBaseURL, c.AnalyzerAllowedHosts)
}

// Manifest is the results.json written at the end of a run.
type Manifest struct {
	Input     string                `json:"input"`
	CreatedAt time.Time             `json:"created_at"`
	Aspect    types.AspectRatio     `json:"aspect"`
	Encoder   string                `json:"encoder"`
	Clips     []ManifestClip        `json:"clips"`
	Failures  []types.RenderFailure `json:"failures,omitempty"`
}

type ManifestClip struct {
	Index       int     `json:"index"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Start       float64 `json:"start_time"`
	End         float64 `json:"end_time"`
	Output      string  `json:"output"`
}

func Run(ctx context.Context, cfg Config) error {
	log := cfg.Logger.With().Str("component", "pipeline").Logger()

	video := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath, cfg.Logger)
	analyzer := clipai.New(cfg.AnalyzerAPIKey, cfg.AnalyzerModel, cfg.AnalyzerBaseURL, cfg.Logger)
	selector := encoder.NewSelector(video, cfg.Logger)

	styles := subtitles.BuiltinStyles()
	if cfg.StyleFile != "" {
		loaded, err := subtitles.LoadStyleFile(cfg.StyleFile)
		if err != nil {
			return fmt.Errorf("load style file: %w", err)
		}
		styles = loaded
	}

	meta, err := video.Probe(ctx, cfg.Input)
	if err != nil {
		return err
	}
	log.Info().
		Int("width", meta.Width).
		Int("height", meta.Height).
		Float64("duration", meta.Duration).
		Msg("source probed")

	runDir := buildRunOutDir(outRoot(cfg.OutDir), cfg.Input, time.Now().UTC())
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	log.Info().Str("dir", runDir).Msg("run directory")

	cands, err := chunker.New(video, analyzer, cfg.Logger).Analyze(ctx, cfg.Input, meta.Duration, chunker.Options{
		WindowSeconds:  cfg.WindowSec,
		OverlapSeconds: cfg.OverlapSec,
		MaxCandidates:  cfg.MaxClips,
		MinClip:        cfg.MinClip,
		MaxClip:        cfg.MaxClip,
		Language:       cfg.Language,
	})
	if err != nil {
		return err
	}
	if len(cands) == 0 {
		return errors.New("analysis produced no candidate clips")
	}
	log.Info().Int("candidates", len(cands)).Msg("analysis complete")

	scheduler := render.NewScheduler(video, selector, cfg.Logger)
	res, err := scheduler.RenderAll(ctx, cands, render.Options{
		Input:        cfg.Input,
		OutDir:       filepath.Join(runDir, "clips"),
		Meta:         meta,
		Aspect:       cfg.Aspect,
		Styles:       styles,
		Style:        cfg.Style,
		BurnCaptions: !cfg.NoCaptions,
	})
	if err != nil && !errors.Is(err, render.ErrNoClipsRendered) {
		return err
	}

	manifest := buildManifest(cfg, cands, res, selector.Select(ctx).Name)
	b, mErr := json.MarshalIndent(manifest, "", "  ")
	if mErr != nil {
		return fmt.Errorf("marshal manifest: %w", mErr)
	}
	manifestPath := filepath.Join(runDir, "results.json")
	if wErr := os.WriteFile(manifestPath, b, 0o644); wErr != nil {
		return wErr
	}
	log.Info().
		Int("clips", len(manifest.Clips)).
		Int("failures", len(manifest.Failures)).
		Str("manifest", manifestPath).
		Msg("run finished")

	// err still carries ErrNoClipsRendered when every clip failed; the
	// manifest with the failure records is written regardless.
	return err
}

// buildManifest zips submission-ordered outputs back onto their
// candidates. Failed indices consume no output path.
func buildManifest(cfg Config, cands []types.CandidateWindow, res render.Result, encoderName string) Manifest {
	failed := make(map[int]bool, len(res.Failures))
	for _, f := range res.Failures {
		failed[f.Index] = true
	}

	m := Manifest{
		Input:     cfg.Input,
		CreatedAt: time.Now().UTC(),
		Aspect:    cfg.Aspect,
		Encoder:   encoderName,
		Failures:  res.Failures,
	}
	next := 0
	for i, c := range cands {
		if failed[i] || next >= len(res.Outputs) {
			continue
		}
		m.Clips = append(m.Clips, ManifestClip{
			Index:       i,
			Title:       c.Title,
			Description: c.Description,
			Start:       c.Start,
			End:         c.End,
			Output:      res.Outputs[next],
		})
		next++
	}
	return m
}

func outRoot(dir string) string {
	if dir == "" {
		return "out"
	}
	return dir
}

func buildRunOutDir(outRoot, input string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", input, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}
