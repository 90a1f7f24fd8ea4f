// Package ffmpeg invokes the external encode/probe binaries. It owns the
// argument vocabulary (seek, crop and subtitle filters, codec selection)
// and the success policy for encodes: exit code 0 plus an output file above
// the minimum size floor, with a small set of font diagnostics tolerated.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/smartclip/smartclip/internal/ports"
	"github.com/smartclip/smartclip/internal/types"
)

const (
	// minOutputBytes is the floor below which an encode output is treated
	// as corrupt regardless of the exit code.
	minOutputBytes = 1000

	extractTimeout    = 5 * time.Minute
	reencodeTimeout   = 10 * time.Minute
	probeTimeout      = 30 * time.Second
	testEncodeTimeout = 10 * time.Second
)

// benignDiagnostics are stderr substrings emitted for missing fonts. libass
// substitutes a system font and still produces a valid output, so a failed
// exit that only reports these is not treated as an encode failure.
var benignDiagnostics = []string{
	"fontselect:",
	"Glyph",
	"font provider",
	"Fontconfig",
}

// EncodeError reports a failed encode with the tail of the binary's output.
type EncodeError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *EncodeError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ffmpeg %s: %v: %s", e.Op, e.Err, e.Stderr)
}

func (e *EncodeError) Unwrap() error { return e.Err }

type Adapter struct {
	ffmpeg  string
	ffprobe string
	log     zerolog.Logger
}

func New(ffmpegPath, ffprobePath string, logger zerolog.Logger) *Adapter {
	if ffmpegPath == "" {
		ffmpeg, err := exec.LookPath("ffmpeg")
		if err == nil {
			ffmpegPath = ffmpeg
		} else {
			ffmpegPath = "ffmpeg"
		}
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{
		ffmpeg:  ffmpegPath,
		ffprobe: ffprobePath,
		log:     logger.With().Str("component", "ffmpeg").Logger(),
	}
}

// Probe returns the source's pixel dimensions and duration.
func (a *Adapter) Probe(ctx context.Context, path string) (types.VideoMeta, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return types.VideoMeta{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	width := gjson.GetBytes(out, "streams.0.width").Int()
	height := gjson.GetBytes(out, "streams.0.height").Int()
	duration := gjson.GetBytes(out, "format.duration").Float()
	if width <= 0 || height <= 0 {
		return types.VideoMeta{}, fmt.Errorf("ffprobe %s: no video stream dimensions", path)
	}
	if duration <= 0 {
		return types.VideoMeta{}, fmt.Errorf("ffprobe %s: missing duration", path)
	}
	return types.VideoMeta{Width: int(width), Height: int(height), Duration: duration}, nil
}

// ExtractWindow materializes [start, start+duration) of the source as its
// own file. Stream copy is tried first; sources whose keyframe layout
// rejects copy are re-encoded with the fastest preset.
func (a *Adapter) ExtractWindow(ctx context.Context, src string, start, duration float64, out string) error {
	copyArgs := []string{
		"-y",
		"-ss", fmtSeconds(start),
		"-i", src,
		"-t", fmtSeconds(duration),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		out,
	}
	if err := a.run(ctx, extractTimeout, copyArgs); err == nil {
		return nil
	}

	a.log.Debug().Str("src", src).Float64("start", start).
		Msg("stream-copy extract failed, re-encoding window")

	encodeArgs := []string{
		"-y",
		"-ss", fmtSeconds(start),
		"-i", src,
		"-t", fmtSeconds(duration),
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-c:a", "aac",
		out,
	}
	if err := a.run(ctx, reencodeTimeout, encodeArgs); err != nil {
		return fmt.Errorf("extract window at %.1fs: %w", start, err)
	}
	return nil
}

// RenderClip trims, crops, optionally burns subtitles, and encodes one
// clip. Undersized outputs are removed before the failure is reported, so
// no corrupt file is ever left behind.
func (a *Adapter) RenderClip(ctx context.Context, spec ports.RenderSpec) error {
	filters := []string{fmt.Sprintf("crop=%d:%d:%d:%d",
		spec.Crop.Width, spec.Crop.Height, spec.Crop.X, spec.Crop.Y)}
	if spec.Subtitles != "" {
		filters = append(filters, "subtitles='"+escapeFilterPath(spec.Subtitles)+"'")
	}

	args := []string{
		"-y",
		"-ss", fmtSeconds(spec.Start),
		"-i", spec.Input,
		"-t", fmtSeconds(spec.Duration),
		"-vf", strings.Join(filters, ","),
		"-c:v", spec.Codec,
	}
	if spec.Hardware {
		// Hardware encoders take a target bitrate instead of CRF.
		args = append(args, "-b:v", "5M")
	} else {
		args = append(args, "-preset", "medium", "-crf", "23")
	}
	args = append(args,
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		spec.Output,
	)

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = extractTimeout
	}
	runErr := a.run(ctx, timeout, args)
	if runErr == nil {
		return a.verifyOutput(spec.Output, "")
	}

	var encErr *EncodeError
	if errors.As(runErr, &encErr) && onlyBenignDiagnostics(encErr.Stderr) {
		if err := a.verifyOutput(spec.Output, encErr.Stderr); err == nil {
			a.log.Debug().Str("output", spec.Output).
				Msg("encode exited non-zero with font diagnostics only, output valid")
			return nil
		}
	}
	a.removeInvalidOutput(spec.Output)
	return runErr
}

// ListEncoders returns the binary's encoder listing verbatim.
func (a *Adapter) ListEncoders(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.ffmpeg, "-hide_banner", "-encoders")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("list encoders: %w", err)
	}
	return string(out), nil
}

// TestEncode encodes a single synthetic frame with the named encoder. A
// listed encoder can still fail here when its driver or device is missing.
func (a *Adapter) TestEncode(ctx context.Context, encoder string) error {
	tmp, err := os.CreateTemp("", "encprobe_*.mp4")
	if err != nil {
		return fmt.Errorf("create probe output: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			a.log.Warn().Err(err).Str("path", tmpPath).Msg("remove probe output")
		}
	}()

	args := []string{
		"-f", "lavfi",
		"-i", "color=black:s=64x64:d=0.1",
		"-c:v", encoder,
		"-frames:v", "1",
		"-y",
		tmpPath,
	}
	return a.run(ctx, testEncodeTimeout, args)
}

func (a *Adapter) run(ctx context.Context, timeout time.Duration, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &EncodeError{Op: args[len(args)-1], Stderr: tail(string(out), 500), Err: err}
	}
	return nil
}

func (a *Adapter) verifyOutput(path, stderr string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &EncodeError{Op: path, Stderr: stderr, Err: fmt.Errorf("output missing: %w", err)}
	}
	if info.Size() < minOutputBytes {
		a.removeInvalidOutput(path)
		return &EncodeError{Op: path, Stderr: stderr,
			Err: fmt.Errorf("output undersized (%d bytes)", info.Size())}
	}
	return nil
}

func (a *Adapter) removeInvalidOutput(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		a.log.Warn().Err(err).Str("path", path).Msg("remove invalid output")
	}
}

func onlyBenignDiagnostics(stderr string) bool {
	if strings.TrimSpace(stderr) == "" {
		return false
	}
	for _, d := range benignDiagnostics {
		if strings.Contains(stderr, d) {
			return true
		}
	}
	return false
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

// escapeFilterPath escapes a filesystem path for use inside a filter
// argument, where backslashes and colons are syntax.
func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	return p
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

var (
	_ ports.VideoTool    = (*Adapter)(nil)
	_ ports.EncoderProbe = (*Adapter)(nil)
)
