package subtitles

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/smartclip/smartclip/internal/types"
)

// StyleConfig describes one caption preset. Colors are #RRGGBB hex;
// Position is one of "bottom", "center", "top".
type StyleConfig struct {
	Font           string `yaml:"font"`
	FontSize       int    `yaml:"font_size"`
	Color          string `yaml:"color"`
	StrokeColor    string `yaml:"stroke_color"`
	StrokeWidth    int    `yaml:"stroke_width"`
	Position       string `yaml:"position"`
	MarginBottom   int    `yaml:"margin_bottom"`
	HighlightColor string `yaml:"highlight_color"`
	WordHighlight  bool   `yaml:"word_highlight"`
}

// StyleSet maps preset names to configurations. The zero value is not
// useful; start from BuiltinStyles or LoadStyleFile.
type StyleSet map[types.CaptionStyle]StyleConfig

// BuiltinStyles returns the four stock presets.
func BuiltinStyles() StyleSet {
	return StyleSet{
		types.StyleDefault: {
			Font:         "Arial Bold",
			FontSize:     24,
			Color:        "#FFFFFF",
			StrokeColor:  "#000000",
			StrokeWidth:  2,
			Position:     "bottom",
			MarginBottom: 150, // raised so captions stay off faces
		},
		types.StyleBold: {
			Font:         "Impact",
			FontSize:     28,
			Color:        "#FFFF00",
			StrokeColor:  "#000000",
			StrokeWidth:  3,
			Position:     "bottom",
			MarginBottom: 150,
		},
		types.StyleMinimal: {
			Font:         "Helvetica",
			FontSize:     20,
			Color:        "#FFFFFF",
			StrokeColor:  "#333333",
			StrokeWidth:  1,
			Position:     "bottom",
			MarginBottom: 100,
		},
		types.StyleKaraoke: {
			Font:           "Arial Bold",
			FontSize:       26,
			Color:          "#FFFFFF",
			HighlightColor: "#00FF00",
			StrokeColor:    "#000000",
			StrokeWidth:    2,
			Position:       "bottom",
			MarginBottom:   150,
			WordHighlight:  true,
		},
	}
}

// LoadStyleFile reads preset overrides from a YAML file and merges them
// over the builtins. Unknown preset names are accepted as new presets.
func LoadStyleFile(path string) (StyleSet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read style file: %w", err)
	}
	var raw map[string]StyleConfig
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse style file %s: %w", path, err)
	}
	out := BuiltinStyles()
	for name, cfg := range raw {
		if cfg.Font == "" || cfg.FontSize <= 0 {
			return nil, fmt.Errorf("style %q: font and font_size are required", name)
		}
		base, ok := out[types.CaptionStyle(name)]
		if !ok {
			base = out[types.StyleDefault]
		}
		merged := base
		merged.Font = cfg.Font
		merged.FontSize = cfg.FontSize
		if cfg.Color != "" {
			merged.Color = cfg.Color
		}
		if cfg.StrokeColor != "" {
			merged.StrokeColor = cfg.StrokeColor
		}
		if cfg.StrokeWidth > 0 {
			merged.StrokeWidth = cfg.StrokeWidth
		}
		if cfg.Position != "" {
			merged.Position = cfg.Position
		}
		if cfg.MarginBottom > 0 {
			merged.MarginBottom = cfg.MarginBottom
		}
		if cfg.HighlightColor != "" {
			merged.HighlightColor = cfg.HighlightColor
		}
		merged.WordHighlight = merged.WordHighlight || cfg.WordHighlight
		out[types.CaptionStyle(name)] = merged
	}
	return out, nil
}

func (s StyleSet) config(style types.CaptionStyle) StyleConfig {
	if cfg, ok := s[style]; ok {
		return cfg
	}
	// Unknown styles fall back silently; a bad --style flag should not
	// break a long render run.
	return s[types.StyleDefault]
}

// hexToASSColor converts #RRGGBB to the track's &HBBGGRR& form. ASS stores
// color bytes in BGR order.
func hexToASSColor(hex string) string {
	h := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(h) != 6 {
		return "&HFFFFFF&"
	}
	return "&H" + h[4:6] + h[2:4] + h[0:2] + "&"
}

// alignmentFor maps a position name to the numpad-style ASS alignment code.
func alignmentFor(position string) int {
	switch position {
	case "center":
		return 5
	case "top":
		return 8
	default:
		return 2 // bottom center
	}
}
