// Package render turns accepted candidate windows into finished clip
// files. A bounded worker pool renders clips concurrently; results are
// reassembled in submission order so output never depends on scheduling.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sync/errgroup"

	"github.com/smartclip/smartclip/internal/domain/cropgeo"
	"github.com/smartclip/smartclip/internal/domain/subtitles"
	"github.com/smartclip/smartclip/internal/encoder"
	"github.com/smartclip/smartclip/internal/ports"
	"github.com/smartclip/smartclip/internal/types"
)

const (
	maxWorkers = 4

	// minRenderTimeout floors the per-clip deadline; longer clips get
	// 10x their duration plus startup slack.
	minRenderTimeout = 5 * time.Minute

	maxTitleChars = 50
)

// ErrNoClipsRendered reports a batch where every single clip failed.
// Partial failure is not an error; callers get the failures alongside
// the successful outputs.
var ErrNoClipsRendered = errors.New("no clips rendered")

// Options configure one render batch.
type Options struct {
	Input  string
	OutDir string
	Meta   types.VideoMeta
	Aspect types.AspectRatio

	// Styles and Style drive caption burn-in. Captions are skipped when
	// BurnCaptions is false or a candidate carries no segments.
	Styles       subtitles.StyleSet
	Style        types.CaptionStyle
	BurnCaptions bool

	// TempDir hosts the transient subtitle files. Empty uses the system
	// temp directory.
	TempDir string
}

// Result is a finished batch: output paths in submission order plus a
// structured record per failed clip.
type Result struct {
	Outputs  []string
	Failures []types.RenderFailure
}

// Scheduler fans a candidate batch out over a bounded pool of render
// workers sharing one process-wide encoder choice.
type Scheduler struct {
	video    ports.VideoTool
	selector *encoder.Selector
	log      zerolog.Logger
}

func NewScheduler(video ports.VideoTool, selector *encoder.Selector, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		video:    video,
		selector: selector,
		log:      logger.With().Str("component", "render").Logger(),
	}
}

// RenderAll renders every candidate and returns the outputs in the order
// the candidates were submitted, regardless of which worker finished
// first. Individual clip failures are collected, not fatal; only a batch
// with zero successes returns ErrNoClipsRendered.
func (s *Scheduler) RenderAll(ctx context.Context, candidates []types.CandidateWindow, opts Options) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, ErrNoClipsRendered
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}

	choice := s.selector.Select(ctx)
	workers := workerCount()
	s.log.Info().
		Int("clips", len(candidates)).
		Int("workers", workers).
		Str("encoder", choice.Name).
		Msg("render batch started")

	// Per-index slots keep reassembly trivially ordered and lock-free:
	// each worker writes only its own index.
	outputs := make([]string, len(candidates))
	failures := make([]error, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, cand := range candidates {
		i, cand := i, cand
		g.Go(func() error {
			path, err := s.renderOne(gctx, i, cand, choice, opts)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failures[i] = err
				s.log.Error().Err(err).
					Int("clip", i+1).
					Str("title", cand.Title).
					Msg("clip render failed")
				return nil
			}
			outputs[i] = path
			s.log.Info().
				Int("clip", i+1).
				Str("output", path).
				Msg("clip rendered")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var res Result
	for i := range candidates {
		if failures[i] != nil {
			res.Failures = append(res.Failures, types.RenderFailure{
				Index: i,
				Title: candidates[i].Title,
				Err:   failures[i].Error(),
			})
			continue
		}
		res.Outputs = append(res.Outputs, outputs[i])
	}
	if len(res.Outputs) == 0 {
		return res, ErrNoClipsRendered
	}
	return res, nil
}

func (s *Scheduler) renderOne(ctx context.Context, idx int, cand types.CandidateWindow, choice encoder.Choice, opts Options) (string, error) {
	start := cand.Start
	duration := cand.Duration()
	if remaining := opts.Meta.Duration - start; remaining < duration {
		duration = remaining
	}
	if duration <= 0 {
		return "", fmt.Errorf("candidate [%.1f, %.1f] lies outside the source", cand.Start, cand.End)
	}

	crop := cropgeo.Compute(opts.Meta.Width, opts.Meta.Height, opts.Aspect)
	output := filepath.Join(opts.OutDir, outputFileName(idx, cand.Title))

	spec := ports.RenderSpec{
		Input:    opts.Input,
		Output:   output,
		Start:    start,
		Duration: duration,
		Crop:     crop,
		Codec:    choice.Name,
		Hardware: choice.Hardware,
		Timeout:  renderTimeout(duration),
	}

	if opts.BurnCaptions && len(cand.Captions) > 0 {
		subPath, cleanup, err := s.writeSubtitles(cand, crop, duration, opts)
		if err != nil {
			return "", err
		}
		defer cleanup()
		spec.Subtitles = subPath
	}

	if err := s.video.RenderClip(ctx, spec); err != nil {
		return "", err
	}
	return output, nil
}

func (s *Scheduler) writeSubtitles(cand types.CandidateWindow, crop types.CropRegion, duration float64, opts Options) (string, func(), error) {
	doc := subtitles.Synthesize(cand.Captions, opts.Styles, opts.Style, crop.Width, crop.Height, duration)

	tmp, err := os.CreateTemp(opts.TempDir, "captions_*.ass")
	if err != nil {
		return "", nil, fmt.Errorf("create subtitle file: %w", err)
	}
	path := tmp.Name()
	if _, err := tmp.WriteString(doc); err != nil {
		tmp.Close()
		os.Remove(path)
		return "", nil, fmt.Errorf("write subtitle file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(path)
		return "", nil, fmt.Errorf("close subtitle file: %w", err)
	}

	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", path).Msg("remove subtitle file")
		}
	}
	return path, cleanup, nil
}

// renderTimeout scales the per-clip deadline with clip length so a long
// clip on a slow software encoder is not killed mid-encode.
func renderTimeout(duration float64) time.Duration {
	scaled := time.Duration(10*duration+60) * time.Second
	if scaled < minRenderTimeout {
		return minRenderTimeout
	}
	return scaled
}

func workerCount() int {
	cores, err := cpu.Counts(true)
	if err != nil || cores < 1 {
		cores = runtime.NumCPU()
	}
	if cores > maxWorkers {
		return maxWorkers
	}
	if cores < 1 {
		return 1
	}
	return cores
}

// outputFileName builds "clip_NN_title.mp4" from the 0-based submission
// index and the candidate title, sanitized for every mainstream
// filesystem and truncated so paths stay short.
func outputFileName(idx int, title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r):
			// drop
		case r == ' ' || r == '\t' || r == '\n':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	clean := strings.Trim(b.String(), "_.")
	// Truncate on runes, not bytes; a multibyte title must never be cut
	// mid-character into an invalid filename.
	if r := []rune(clean); len(r) > maxTitleChars {
		clean = string(r[:maxTitleChars])
	}
	if clean == "" {
		clean = "clip"
	}
	return fmt.Sprintf("clip_%02d_%s.mp4", idx+1, clean)
}
