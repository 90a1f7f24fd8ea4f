// Package cropgeo computes center-crop regions for aspect-ratio
// conversion. The math is pure: every (width, height, ratio) input yields
// a region that fits the source frame and has even pixel dimensions.
package cropgeo

import "github.com/smartclip/smartclip/internal/types"

type ratio struct{ w, h int }

var ratioPresets = map[types.AspectRatio]ratio{
	types.AspectPortrait:  {9, 16},
	types.AspectSquare:    {1, 1},
	types.AspectLandscape: {16, 9},
}

// Compute returns the centered crop of the source frame that matches the
// target aspect. Unknown ratios fall back to 9:16. Both output dimensions
// are truncated to even integers for encoder compatibility.
func Compute(sourceW, sourceH int, target types.AspectRatio) types.CropRegion {
	r, ok := ratioPresets[target]
	if !ok {
		r = ratioPresets[types.AspectPortrait]
	}
	targetAspect := float64(r.w) / float64(r.h)
	sourceAspect := float64(sourceW) / float64(sourceH)

	var cropW, cropH int
	if sourceAspect > targetAspect {
		// Source is wider: keep full height, crop the sides.
		cropH = sourceH
		cropW = int(float64(sourceH) * targetAspect)
	} else {
		// Source is taller: keep full width, crop top and bottom.
		cropW = sourceW
		cropH = int(float64(sourceW) / targetAspect)
	}
	cropW -= cropW % 2
	cropH -= cropH % 2

	return types.CropRegion{
		X:      (sourceW - cropW) / 2,
		Y:      (sourceH - cropH) / 2,
		Width:  cropW,
		Height: cropH,
	}
}
