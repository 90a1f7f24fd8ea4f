package subtitles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smartclip/smartclip/internal/types"
)

func TestHexToASSColor(t *testing.T) {
	tests := map[string]string{
		"#FFFFFF": "&HFFFFFF&",
		"#FF0000": "&H0000FF&",
		"#00FF00": "&H00FF00&",
		"FFFF00":  "&H00FFFF&",
		"bogus":   "&HFFFFFF&",
	}
	for in, want := range tests {
		if got := hexToASSColor(in); got != want {
			t.Fatalf("hexToASSColor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAlignmentFor(t *testing.T) {
	tests := map[string]int{"bottom": 2, "center": 5, "top": 8, "": 2, "weird": 2}
	for in, want := range tests {
		if got := alignmentFor(in); got != want {
			t.Fatalf("alignmentFor(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestLoadStyleFile_MergesOverBuiltins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "styles.yaml")
	data := `
bold:
  font: "Futura"
  font_size: 40
neon:
  font: "Monaco"
  font_size: 30
  color: "#00FFFF"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := LoadStyleFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	bold := set[types.StyleBold]
	if bold.Font != "Futura" || bold.FontSize != 40 {
		t.Fatalf("override not applied: %+v", bold)
	}
	if bold.Color != "#FFFF00" || bold.StrokeWidth != 3 {
		t.Fatalf("builtin fields should survive a partial override: %+v", bold)
	}

	neon := set["neon"]
	if neon.Font != "Monaco" || neon.Color != "#00FFFF" {
		t.Fatalf("new preset not registered: %+v", neon)
	}
	if neon.StrokeColor != "#000000" {
		t.Fatalf("new preset should inherit default preset fields: %+v", neon)
	}
}

func TestLoadStyleFile_RejectsIncompleteStyle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "styles.yaml")
	if err := os.WriteFile(path, []byte("broken:\n  color: \"#112233\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadStyleFile(path); err == nil {
		t.Fatalf("expected error for style without font")
	}
}
