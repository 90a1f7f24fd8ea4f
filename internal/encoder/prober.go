// Package encoder selects the video encoder for a process. Hardware
// encoders are often listed by the encode binary but broken at runtime
// (missing driver, no device), so a candidate only wins after a real
// single-frame test encode succeeds.
package encoder

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/smartclip/smartclip/internal/ports"
)

// probeVersion tags the detection logic. Bump it when the probe changes so
// anything persisting a Choice alongside it knows to re-probe.
const probeVersion = "v2"

// hwPreference is vendor-ordered: NVIDIA, AMD, Apple, VA-API, Intel.
var hwPreference = []string{
	"h264_nvenc",
	"h264_amf",
	"h264_videotoolbox",
	"h264_vaapi",
	"h264_qsv",
}

// softwareFallback is the deterministic choice when no hardware encoder
// passes its test encode.
var softwareFallback = Choice{Name: "libx264"}

// Choice is the selected encoder. It is established once per process and
// read-only afterwards.
type Choice struct {
	Name     string
	Hardware bool
}

// Selector probes once and caches the result for the process lifetime.
// Safe for concurrent use; after the first Select call the cached value is
// returned without locking.
type Selector struct {
	probe ports.EncoderProbe
	log   zerolog.Logger

	once   sync.Once
	choice Choice
}

func NewSelector(probe ports.EncoderProbe, logger zerolog.Logger) *Selector {
	return &Selector{
		probe: probe,
		log:   logger.With().Str("component", "encoder-prober").Logger(),
	}
}

// Select returns the process-wide encoder choice, probing on first use.
func (s *Selector) Select(ctx context.Context) Choice {
	s.once.Do(func() {
		s.choice = s.detect(ctx)
		s.log.Info().
			Str("encoder", s.choice.Name).
			Bool("hardware", s.choice.Hardware).
			Str("probe_version", probeVersion).
			Msg("encoder selected")
	})
	return s.choice
}

func (s *Selector) detect(ctx context.Context) Choice {
	listing, err := s.probe.ListEncoders(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("encoder listing failed, using software encoder")
		return softwareFallback
	}
	listing = strings.ToLower(listing)

	for _, name := range hwPreference {
		if !strings.Contains(listing, name) {
			continue
		}
		if err := s.probe.TestEncode(ctx, name); err != nil {
			s.log.Debug().Err(err).Str("encoder", name).
				Msg("listed encoder failed test encode")
			continue
		}
		return Choice{Name: name, Hardware: true}
	}
	return softwareFallback
}
