// Package subtitles synthesizes styled ASS tracks for caption burn-in.
// Two modes are supported: standard (one dialogue event per caption) and
// karaoke (word-by-word fill highlighting via {\kf} timing tags).
package subtitles

import (
	"fmt"
	"strings"

	"github.com/smartclip/smartclip/internal/types"
)

const (
	// maxWordsPerCaption bounds how much text one event may show; longer
	// captions are split into proportionally-timed sub-segments.
	maxWordsPerCaption = 2

	// karaokeLineGap is the maximum silence between consecutive segments
	// that still share one karaoke line.
	karaokeLineGap = 0.5 // seconds
)

// Synthesize renders a complete ASS track for one clip. Caption times are
// clip-relative seconds; clipW/clipH set the track's canvas resolution and
// clipDuration bounds standard-mode event times. Zero captions yield a
// valid track with an empty event list.
func Synthesize(captions []types.CaptionSegment, styles StyleSet, style types.CaptionStyle, clipW, clipH int, clipDuration float64) string {
	cfg := styles.config(style)
	split := splitLongCaptions(captions, maxWordsPerCaption)

	var b strings.Builder
	writeHeader(&b, cfg, clipW, clipH)
	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	if cfg.WordHighlight {
		writeKaraokeEvents(&b, split)
	} else {
		writeStandardEvents(&b, split, clipDuration)
	}
	return b.String()
}

func writeHeader(b *strings.Builder, cfg StyleConfig, clipW, clipH int) {
	alignment := alignmentFor(cfg.Position)
	fmt.Fprintf(b, `[Script Info]
Title: SmartClip Generated Subtitles
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
WrapStyle: 0

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default,%s,%d,%s,&H000000FF&,%s,&H00000000&,1,0,0,0,100,100,0,0,1,%d,0,%d,10,10,%d,1
`,
		clipW, clipH,
		cfg.Font, cfg.FontSize, hexToASSColor(cfg.Color), hexToASSColor(cfg.StrokeColor),
		cfg.StrokeWidth, alignment, cfg.MarginBottom,
	)
	if cfg.WordHighlight {
		fmt.Fprintf(b, "Style: Highlight,%s,%d,%s,&H000000FF&,%s,&H00000000&,1,0,0,0,100,100,0,0,1,%d,0,%d,10,10,%d,1\n",
			cfg.Font, cfg.FontSize, hexToASSColor(cfg.HighlightColor), hexToASSColor(cfg.StrokeColor),
			cfg.StrokeWidth, alignment, cfg.MarginBottom,
		)
	}
}

func writeStandardEvents(b *strings.Builder, captions []types.CaptionSegment, clipDuration float64) {
	for _, c := range captions {
		start := c.Start
		end := c.End
		if start < 0 {
			start = 0
		}
		if clipDuration > 0 && end > clipDuration {
			end = clipDuration
		}
		if end <= start {
			continue
		}
		fmt.Fprintf(b, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			formatTime(start), formatTime(end), escapeText(c.Text))
	}
}

func writeKaraokeEvents(b *strings.Builder, captions []types.CaptionSegment) {
	for _, line := range groupLines(captions, karaokeLineGap) {
		if len(line) == 0 {
			continue
		}
		lineStart := line[0].Start
		lineEnd := line[len(line)-1].End
		if lineEnd <= 0 {
			continue
		}
		if lineStart < 0 {
			lineStart = 0
		}

		var text strings.Builder
		for i, seg := range line {
			segStart := seg.Start
			if segStart < 0 {
				segStart = 0
			}
			// Fill duration is the segment's own length in centiseconds,
			// producing sequential highlight as the words are spoken.
			durCS := int((seg.End - segStart) * 100)
			fmt.Fprintf(&text, "{\\kf%d}%s", durCS, escapeText(seg.Text))
			if i < len(line)-1 {
				text.WriteString(" ")
			}
		}
		fmt.Fprintf(b, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			formatTime(lineStart), formatTime(lineEnd), text.String())
	}
}

// splitLongCaptions breaks captions with more than maxWords words into
// sub-segments, dividing the time span linearly by word position. The last
// sub-segment ends exactly at the original end so rounding never drifts.
func splitLongCaptions(captions []types.CaptionSegment, maxWords int) []types.CaptionSegment {
	var out []types.CaptionSegment
	for _, c := range captions {
		words := strings.Fields(strings.TrimSpace(c.Text))
		if len(words) <= maxWords {
			out = append(out, c)
			continue
		}
		perWord := (c.End - c.Start) / float64(len(words))
		for i := 0; i < len(words); i += maxWords {
			j := i + maxWords
			if j > len(words) {
				j = len(words)
			}
			seg := types.CaptionSegment{
				Start: c.Start + float64(i)*perWord,
				End:   c.Start + float64(j)*perWord,
				Text:  strings.Join(words[i:j], " "),
			}
			if j == len(words) {
				seg.End = c.End
			}
			out = append(out, seg)
		}
	}
	return out
}

// groupLines clusters consecutive segments whose inter-segment gap stays
// within maxGap seconds onto a shared karaoke line.
func groupLines(captions []types.CaptionSegment, maxGap float64) [][]types.CaptionSegment {
	if len(captions) == 0 {
		return nil
	}
	var lines [][]types.CaptionSegment
	current := []types.CaptionSegment{captions[0]}
	for i := 1; i < len(captions); i++ {
		if captions[i].Start-captions[i-1].End > maxGap {
			lines = append(lines, current)
			current = []types.CaptionSegment{captions[i]}
			continue
		}
		current = append(current, captions[i])
	}
	return append(lines, current)
}

// formatTime renders seconds as the track's H:MM:SS.cc timestamp.
func formatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := int(seconds) / 3600
	m := (int(seconds) % 3600) / 60
	s := seconds - float64(h*3600) - float64(m*60)
	return fmt.Sprintf("%d:%02d:%05.2f", h, m, s)
}

// escapeText neutralizes the track's control characters in caption text.
func escapeText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\n", "\\N")
	return strings.TrimSpace(s)
}
