package ports

import (
	"context"
	"time"

	"github.com/smartclip/smartclip/internal/types"
)

// RenderSpec describes one clip encode for the external video tool.
type RenderSpec struct {
	Input    string
	Output   string
	Start    float64 // seconds into the source
	Duration float64 // seconds
	Crop     types.CropRegion
	// Subtitles is an optional path to a styled subtitle track that is
	// burned into the output. Empty disables the subtitle filter.
	Subtitles string
	Codec     string
	Hardware  bool
	Timeout   time.Duration
}

type VideoTool interface {
	Probe(ctx context.Context, path string) (types.VideoMeta, error)
	// ExtractWindow materializes a sub-range of the source as its own file.
	ExtractWindow(ctx context.Context, src string, start, duration float64, out string) error
	RenderClip(ctx context.Context, spec RenderSpec) error
}

// EncoderProbe exposes the encode binary's runtime encoder capabilities.
type EncoderProbe interface {
	ListEncoders(ctx context.Context) (string, error)
	// TestEncode runs a minimal synthetic encode with the named encoder and
	// reports whether it actually works on this machine.
	TestEncode(ctx context.Context, encoder string) error
}

// Analyzer is the external "find candidate moments" collaborator. Returned
// timestamps are relative to the analyzed window's own start.
type Analyzer interface {
	AnalyzeWindow(
		ctx context.Context,
		mediaPath string,
		maxCandidates int,
		minDuration time.Duration,
		maxDuration time.Duration,
		language string,
	) ([]types.CandidateWindow, error)
}
