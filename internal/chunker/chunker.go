// Package chunker runs candidate-moment analysis over videos too long for
// a single pass. It plans overlapping time windows, feeds each window to
// the external analysis collaborator one at a time, and merges the
// per-window results into one deduplicated, time-ordered candidate list.
package chunker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/smartclip/smartclip/internal/ports"
	"github.com/smartclip/smartclip/internal/types"
)

const (
	// DefaultWindowSeconds is the target analysis window length.
	DefaultWindowSeconds = 1800.0
	// DefaultOverlapSeconds is the overlap between consecutive windows so
	// moments spanning a boundary are seen whole by at least one window.
	DefaultOverlapSeconds = 120.0

	// tailFoldFraction: a final window shorter than this fraction of the
	// target length is folded into the previous window instead. Tunable
	// policy, kept at the historical value for behavioral compatibility.
	tailFoldFraction = 0.3

	// dupOverlapFraction: two candidates overlapping by strictly more than
	// this fraction of the shorter one's duration are duplicates. Tunable
	// policy, same caveat as above.
	dupOverlapFraction = 0.5

	// minPerWindowCandidates floors the per-window ask so merging always
	// has surplus to deduplicate from.
	minPerWindowCandidates = 3
)

// ErrAllWindowsFailed reports that no analysis window produced a result.
// Individual window failures are recovered by skipping the window.
var ErrAllWindowsFailed = errors.New("analysis failed for every window")

type window struct {
	start float64
	end   float64
}

// Options tune one chunked-analysis run. Zero values take defaults.
type Options struct {
	WindowSeconds  float64
	OverlapSeconds float64
	MaxCandidates  int
	MinClip        time.Duration
	MaxClip        time.Duration
	Language       string
	// TempDir hosts the per-window media extracts. Empty uses the system
	// temp directory.
	TempDir string
}

func (o *Options) fillDefaults() {
	if o.WindowSeconds <= 0 {
		o.WindowSeconds = DefaultWindowSeconds
	}
	if o.OverlapSeconds <= 0 {
		o.OverlapSeconds = DefaultOverlapSeconds
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = 5
	}
}

// Runner owns the sequential extract-analyze-translate loop.
type Runner struct {
	video    ports.VideoTool
	analyzer ports.Analyzer
	log      zerolog.Logger
}

func New(video ports.VideoTool, analyzer ports.Analyzer, logger zerolog.Logger) *Runner {
	return &Runner{
		video:    video,
		analyzer: analyzer,
		log:      logger.With().Str("component", "chunker").Logger(),
	}
}

// Analyze finds candidate windows across the whole source. Windows are
// processed strictly one at a time: each materializes a single temporary
// media extract that is removed before the next window starts, bounding
// peak temp disk usage to one window regardless of video length.
func (r *Runner) Analyze(ctx context.Context, sourcePath string, totalDuration float64, opts Options) ([]types.CandidateWindow, error) {
	opts.fillDefaults()
	if opts.OverlapSeconds >= opts.WindowSeconds {
		return nil, fmt.Errorf("window overlap %.0fs must be smaller than the window length %.0fs",
			opts.OverlapSeconds, opts.WindowSeconds)
	}
	windows := planWindows(totalDuration, opts.WindowSeconds, opts.OverlapSeconds)

	if len(windows) <= 1 {
		// Short video: analyze the source directly, no extraction needed.
		cands, err := r.analyzer.AnalyzeWindow(ctx, sourcePath,
			opts.MaxCandidates, opts.MinClip, opts.MaxClip, opts.Language)
		if err != nil {
			return nil, fmt.Errorf("analyze video: %w", err)
		}
		return mergeCandidates(cands, opts.MaxCandidates), nil
	}

	// Ask each window for more than its even share so the dedup merge has
	// surplus to choose from.
	perWindow := 2*opts.MaxCandidates/len(windows) + 1
	if perWindow < minPerWindowCandidates {
		perWindow = minPerWindowCandidates
	}

	var all []types.CandidateWindow
	failed := 0
	for i, w := range windows {
		cands, err := r.analyzeOne(ctx, sourcePath, w, i, perWindow, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			r.log.Warn().Err(err).
				Int("window", i+1).
				Int("windows", len(windows)).
				Float64("start", w.start).
				Float64("end", w.end).
				Msg("window analysis failed, skipping")
			continue
		}
		all = append(all, translate(cands, w.start)...)
	}

	if failed == len(windows) {
		return nil, ErrAllWindowsFailed
	}
	return mergeCandidates(all, opts.MaxCandidates), nil
}

func (r *Runner) analyzeOne(ctx context.Context, sourcePath string, w window, idx, maxCandidates int, opts Options) ([]types.CandidateWindow, error) {
	tmp, err := os.CreateTemp(opts.TempDir, fmt.Sprintf("analysis_window_%d_*.mp4", idx))
	if err != nil {
		return nil, fmt.Errorf("create window extract: %w", err)
	}
	path := tmp.Name()
	tmp.Close()
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			// Leaked temp files are an annoyance, never an operation failure.
			r.log.Warn().Err(err).Str("path", path).Msg("remove window extract")
		}
	}()

	if err := r.video.ExtractWindow(ctx, sourcePath, w.start, w.end-w.start, path); err != nil {
		return nil, fmt.Errorf("extract window: %w", err)
	}
	return r.analyzer.AnalyzeWindow(ctx, path, maxCandidates, opts.MinClip, opts.MaxClip, opts.Language)
}

// planWindows lays consecutive windows of the target length with the given
// overlap across [0, total). A tail shorter than tailFoldFraction of the
// target folds into the previous window's end.
func planWindows(total, length, overlap float64) []window {
	var out []window
	start := 0.0
	for start < total {
		end := start + length
		if end > total {
			end = total
		}
		out = append(out, window{start: start, end: end})
		if end >= total {
			break
		}
		next := end - overlap
		if next <= start {
			// The plan must always advance; an overlap that swallows the
			// whole window degrades to back-to-back windows.
			next = end
		}
		if total-next < length*tailFoldFraction {
			out[len(out)-1].end = total
			break
		}
		start = next
	}
	return out
}

// translate shifts a window's candidates onto the source-video timeline.
// Caption segments stay clip-relative; only the window bounds move.
func translate(cands []types.CandidateWindow, offset float64) []types.CandidateWindow {
	out := make([]types.CandidateWindow, 0, len(cands))
	for _, c := range cands {
		c.Start += offset
		c.End += offset
		out = append(out, c)
	}
	return out
}

// mergeCandidates deduplicates overlapping candidates and returns at most
// max of them in start-time order. Two candidates are duplicates when
// their overlap strictly exceeds dupOverlapFraction of the shorter one's
// duration; the longer of the pair survives.
func mergeCandidates(cands []types.CandidateWindow, max int) []types.CandidateWindow {
	if len(cands) == 0 {
		return nil
	}
	sorted := make([]types.CandidateWindow, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var accepted []types.CandidateWindow
	for _, c := range sorted {
		duplicate := false
		for i, existing := range accepted {
			shorter := c.Duration()
			if existing.Duration() < shorter {
				shorter = existing.Duration()
			}
			if overlapSeconds(c, existing) > shorter*dupOverlapFraction {
				duplicate = true
				if c.Duration() > existing.Duration() {
					accepted[i] = c
				}
				break
			}
		}
		if !duplicate {
			accepted = append(accepted, c)
		}
	}

	sort.SliceStable(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })
	if len(accepted) > max {
		accepted = accepted[:max]
	}
	return accepted
}

func overlapSeconds(a, b types.CandidateWindow) float64 {
	start := a.Start
	if b.Start > start {
		start = b.Start
	}
	end := a.End
	if b.End < end {
		end = b.End
	}
	if end <= start {
		return 0
	}
	return end - start
}
