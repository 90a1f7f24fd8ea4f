package types

// AspectRatio is a target output aspect preset.
type AspectRatio string

const (
	AspectPortrait  AspectRatio = "9:16"
	AspectSquare    AspectRatio = "1:1"
	AspectLandscape AspectRatio = "16:9"
)

// CaptionStyle names a burn-in caption preset.
type CaptionStyle string

const (
	StyleDefault CaptionStyle = "default"
	StyleBold    CaptionStyle = "bold"
	StyleMinimal CaptionStyle = "minimal"
	StyleKaraoke CaptionStyle = "karaoke"
)

// CaptionSegment is one timed piece of caption text. Times are in seconds
// and clip-relative once the segment is bound to a candidate window.
type CaptionSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// CandidateWindow is a time range of interest in the source video. After
// chunked analysis merges its results, Start/End are absolute on the
// source-video timeline.
type CandidateWindow struct {
	Start       float64          `json:"start_time"`
	End         float64          `json:"end_time"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Captions    []CaptionSegment `json:"captions,omitempty"`
}

func (c CandidateWindow) Duration() float64 { return c.End - c.Start }

// CropRegion is a rectangular subregion in source pixel space. Width and
// Height are always even (chroma subsampling requirement of the encoders).
type CropRegion struct {
	X      int
	Y      int
	Width  int
	Height int
}

// VideoMeta is the probed shape of the source video, computed once per
// batch and shared read-only by all render workers.
type VideoMeta struct {
	Width    int
	Height   int
	Duration float64 // seconds
}

// RenderFailure describes one clip that could not be rendered. Index is
// the clip's original submission index (0-based).
type RenderFailure struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	Err   string `json:"error"`
}
