package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/smartclip/smartclip/internal/domain/subtitles"
	"github.com/smartclip/smartclip/internal/encoder"
	"github.com/smartclip/smartclip/internal/ports"
	"github.com/smartclip/smartclip/internal/types"
)

type fakeProbe struct{}

func (fakeProbe) ListEncoders(context.Context) (string, error) {
	return "", errors.New("not installed")
}
func (fakeProbe) TestEncode(context.Context, string) error { return nil }

type fakeVideoTool struct {
	mu    sync.Mutex
	specs []ports.RenderSpec
	// subtitleDocs captures the subtitle file contents at render time,
	// before the scheduler removes the temp file.
	subtitleDocs []string
	failTitles   map[string]bool
}

func (f *fakeVideoTool) Probe(context.Context, string) (types.VideoMeta, error) {
	return types.VideoMeta{}, nil
}

func (f *fakeVideoTool) ExtractWindow(context.Context, string, float64, float64, string) error {
	return nil
}

func (f *fakeVideoTool) RenderClip(_ context.Context, spec ports.RenderSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs = append(f.specs, spec)
	if spec.Subtitles != "" {
		doc, err := os.ReadFile(spec.Subtitles)
		if err != nil {
			return err
		}
		f.subtitleDocs = append(f.subtitleDocs, string(doc))
	}
	if f.failTitles[filepath.Base(spec.Output)] {
		return errors.New("encoder exploded")
	}
	return nil
}

func newTestScheduler(video *fakeVideoTool) *Scheduler {
	return NewScheduler(video, encoder.NewSelector(fakeProbe{}, zerolog.Nop()), zerolog.Nop())
}

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		Input:  "source.mp4",
		OutDir: t.TempDir(),
		Meta:   types.VideoMeta{Width: 1920, Height: 1080, Duration: 7200},
		Aspect: types.AspectPortrait,
		Styles: subtitles.BuiltinStyles(),
		Style:  types.StyleDefault,
	}
}

func TestRenderAll_PartialFailureKeepsOrderAndReportsFailure(t *testing.T) {
	video := &fakeVideoTool{failTitles: map[string]bool{"clip_03_c.mp4": true}}
	s := newTestScheduler(video)

	cands := []types.CandidateWindow{
		{Start: 10, End: 70, Title: "a"},
		{Start: 100, End: 160, Title: "b"},
		{Start: 200, End: 260, Title: "c"},
		{Start: 300, End: 360, Title: "d"},
		{Start: 400, End: 460, Title: "e"},
	}
	res, err := s.RenderAll(context.Background(), cands, testOptions(t))
	if err != nil {
		t.Fatalf("partial failure must not fail the batch: %v", err)
	}

	if len(res.Outputs) != 4 {
		t.Fatalf("expected 4 outputs, got %v", res.Outputs)
	}
	wantOrder := []string{"clip_01_a.mp4", "clip_02_b.mp4", "clip_04_d.mp4", "clip_05_e.mp4"}
	for i, out := range res.Outputs {
		if filepath.Base(out) != wantOrder[i] {
			t.Fatalf("outputs out of submission order: %v", res.Outputs)
		}
	}
	if len(res.Failures) != 1 {
		t.Fatalf("expected one failure record, got %+v", res.Failures)
	}
	f := res.Failures[0]
	if f.Index != 2 || f.Title != "c" || !strings.Contains(f.Err, "encoder exploded") {
		t.Fatalf("unexpected failure record: %+v", f)
	}
}

func TestRenderAll_AllFailedIsFatal(t *testing.T) {
	video := &fakeVideoTool{failTitles: map[string]bool{"clip_01_a.mp4": true, "clip_02_b.mp4": true}}
	s := newTestScheduler(video)

	cands := []types.CandidateWindow{
		{Start: 10, End: 70, Title: "a"},
		{Start: 100, End: 160, Title: "b"},
	}
	res, err := s.RenderAll(context.Background(), cands, testOptions(t))
	if !errors.Is(err, ErrNoClipsRendered) {
		t.Fatalf("expected ErrNoClipsRendered, got %v", err)
	}
	if len(res.Failures) != 2 {
		t.Fatalf("failures must still be reported, got %+v", res.Failures)
	}
}

func TestRenderAll_EmptyBatch(t *testing.T) {
	s := newTestScheduler(&fakeVideoTool{})
	if _, err := s.RenderAll(context.Background(), nil, testOptions(t)); !errors.Is(err, ErrNoClipsRendered) {
		t.Fatalf("expected ErrNoClipsRendered, got %v", err)
	}
}

func TestRenderAll_SpecCarriesCropAndEncoder(t *testing.T) {
	video := &fakeVideoTool{}
	s := newTestScheduler(video)

	cands := []types.CandidateWindow{{Start: 30, End: 75, Title: "intro"}}
	if _, err := s.RenderAll(context.Background(), cands, testOptions(t)); err != nil {
		t.Fatalf("render: %v", err)
	}

	spec := video.specs[0]
	if spec.Start != 30 || spec.Duration != 45 {
		t.Fatalf("unexpected time range: %+v", spec)
	}
	// 1920x1080 center-cropped to 9:16.
	if spec.Crop.Width != 606 || spec.Crop.Height != 1080 || spec.Crop.X != 657 {
		t.Fatalf("unexpected crop: %+v", spec.Crop)
	}
	if spec.Codec != "libx264" || spec.Hardware {
		t.Fatalf("expected software fallback codec, got %+v", spec)
	}
	if spec.Subtitles != "" {
		t.Fatalf("no captions requested, got subtitle path %q", spec.Subtitles)
	}
}

func TestRenderAll_ClampsToSourceEnd(t *testing.T) {
	video := &fakeVideoTool{}
	s := newTestScheduler(video)
	opts := testOptions(t)
	opts.Meta.Duration = 100

	cands := []types.CandidateWindow{{Start: 80, End: 130, Title: "tail"}}
	if _, err := s.RenderAll(context.Background(), cands, opts); err != nil {
		t.Fatalf("render: %v", err)
	}
	if got := video.specs[0].Duration; got != 20 {
		t.Fatalf("expected duration clamped to 20, got %v", got)
	}
}

func TestRenderAll_BurnsAndCleansUpSubtitles(t *testing.T) {
	video := &fakeVideoTool{}
	s := newTestScheduler(video)
	opts := testOptions(t)
	opts.BurnCaptions = true

	cands := []types.CandidateWindow{{
		Start: 10, End: 40, Title: "talk",
		Captions: []types.CaptionSegment{{Start: 0, End: 2, Text: "hello"}},
	}}
	if _, err := s.RenderAll(context.Background(), cands, opts); err != nil {
		t.Fatalf("render: %v", err)
	}

	spec := video.specs[0]
	if spec.Subtitles == "" {
		t.Fatal("expected a subtitle path on the render spec")
	}
	if len(video.subtitleDocs) != 1 || !strings.Contains(video.subtitleDocs[0], "[Script Info]") {
		t.Fatalf("subtitle file was not a readable track at render time: %q", video.subtitleDocs)
	}
	if _, err := os.Stat(spec.Subtitles); !os.IsNotExist(err) {
		t.Fatalf("subtitle temp file must be removed after rendering, stat err: %v", err)
	}
}

func TestRenderTimeout(t *testing.T) {
	if got := renderTimeout(10); got != minRenderTimeout {
		t.Fatalf("short clip should use the floor, got %v", got)
	}
	// 60s clip: 10*60+60 = 660s.
	if got := renderTimeout(60); got != 660*time.Second {
		t.Fatalf("renderTimeout(60) = %v", got)
	}
}

func TestOutputFileName(t *testing.T) {
	tests := []struct {
		idx   int
		title string
		want  string
	}{
		{0, "Big Reveal", "clip_01_Big_Reveal.mp4"},
		{2, `a/b\c:d?`, "clip_03_abcd.mp4"},
		{9, "", "clip_10_clip.mp4"},
		{0, "...", "clip_01_clip.mp4"},
		{0, strings.Repeat("x", 80), "clip_01_" + strings.Repeat("x", 50) + ".mp4"},
		{1, strings.Repeat("д", 60), "clip_02_" + strings.Repeat("д", 50) + ".mp4"},
	}
	for _, tt := range tests {
		if got := outputFileName(tt.idx, tt.title); got != tt.want {
			t.Fatalf("outputFileName(%d, %q) = %q, want %q", tt.idx, tt.title, got, tt.want)
		}
	}
}

func TestWorkerCount(t *testing.T) {
	if n := workerCount(); n < 1 || n > maxWorkers {
		t.Fatalf("workerCount = %d, want 1..%d", n, maxWorkers)
	}
}
