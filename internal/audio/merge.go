package audio

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/scwf/open-dubbing/internal/config"
	"github.com/scwf/open-dubbing/internal/logging"
	"github.com/scwf/open-dubbing/internal/services"
)

// Speed clamp bounds per mode. The stretch transform degrades outside these
// ranges, so ratios are clamped before invoking it.
var speedBounds = map[string]struct{ min, max float64 }{
	config.SpeedModeStandard:    {0.25, 4.0},
	config.SpeedModeHighQuality: {0.5, 2.0},
	config.SpeedModeUltraWide:   {0.1, 10.0},
}

// Concatenate joins segments back to back in cue order, ignoring timing
// windows entirely. Empty segments are dropped. The result's length is the
// sum of the kept segment lengths.
func Concatenate(segments []Segment) []float32 {
	ordered := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		if !seg.Empty() {
			ordered = append(ordered, seg)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	total := 0
	for _, seg := range ordered {
		total += len(seg.Samples)
	}
	out := make([]float32, 0, total)
	for _, seg := range ordered {
		out = append(out, seg.Samples...)
	}
	return out
}

// Assembler places segments at their exact timing windows in a single output
// buffer, stretching or padding each one to fit sample-accurately.
type Assembler struct {
	sampleRate  int
	peakCeiling float64
	speedMode   string
	truncate    bool
	stretcher   Stretcher
	logger      *slog.Logger
}

// NewAssembler builds a time-sync merge engine. The stretcher handles
// segments whose audio runs longer than their window.
func NewAssembler(cfg *config.Config, stretcher Stretcher, logger *slog.Logger) (*Assembler, error) {
	if stretcher == nil {
		return nil, fmt.Errorf("%w: assembler: stretcher is required", services.ErrConfiguration)
	}
	if _, ok := speedBounds[cfg.Synthesis.SpeedMode]; !ok {
		return nil, fmt.Errorf("%w: assembler: unknown speed mode %q", services.ErrConfiguration, cfg.Synthesis.SpeedMode)
	}
	return &Assembler{
		sampleRate:  cfg.Audio.SampleRate,
		peakCeiling: cfg.Audio.PeakCeiling,
		speedMode:   cfg.Synthesis.SpeedMode,
		truncate:    cfg.Synthesis.TruncateOnOverflow,
		stretcher:   stretcher,
		logger:      logging.NewComponentLogger(logger, "merge"),
	}, nil
}

// Assemble renders the full track. The buffer spans from zero to the latest
// segment end; each segment is fitted to its window exactly, then copied in.
// Segments entirely outside the buffer are skipped with a warning.
func (a *Assembler) Assemble(ctx context.Context, segments []Segment) ([]float32, error) {
	var maxEndMS int64
	for _, seg := range segments {
		if seg.EndMS > maxEndMS {
			maxEndMS = seg.EndMS
		}
	}
	totalSamples := msToSamples(maxEndMS, a.sampleRate)
	buffer := make([]float32, totalSamples)

	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if seg.Empty() {
			continue
		}
		startSample := msToSamples(seg.StartMS, a.sampleRate)
		endSample := msToSamples(seg.EndMS, a.sampleRate)
		windowLen := endSample - startSample
		if windowLen <= 0 {
			a.logger.Warn("segment has an empty window, skipping",
				logging.Int(logging.FieldCueIndex, seg.Index))
			continue
		}
		if startSample >= totalSamples || endSample <= 0 {
			a.logger.Warn("segment lies outside the output buffer, skipping",
				logging.Int(logging.FieldCueIndex, seg.Index),
				logging.Int64("start_ms", seg.StartMS),
				logging.Int64("end_ms", seg.EndMS))
			continue
		}

		fitted, err := a.fitToWindow(ctx, seg, windowLen)
		if err != nil {
			return nil, fmt.Errorf("fit cue %d: %w", seg.Index, err)
		}

		// Clamp the copy region to the buffer bounds.
		dst := startSample
		src := 0
		if dst < 0 {
			src = -dst
			dst = 0
		}
		for src < len(fitted) && dst < totalSamples && dst < endSample {
			buffer[dst] = fitted[src]
			dst++
			src++
		}
		if src < len(fitted) && !a.truncate {
			a.logger.Warn("segment audio extends past its window",
				logging.Int(logging.FieldCueIndex, seg.Index),
				logging.Int("dropped_samples", len(fitted)-src))
		}
	}

	normalizePeak(buffer, a.peakCeiling, a.logger)
	return buffer, nil
}

// fitToWindow forces a segment's audio to exactly windowLen samples. Short
// audio is right-padded with silence; long audio is time-stretched, then the
// approximate stretch output is corrected to the exact length.
func (a *Assembler) fitToWindow(ctx context.Context, seg Segment, windowLen int) ([]float32, error) {
	samples := seg.Samples
	if len(samples) == windowLen {
		return samples, nil
	}
	if len(samples) < windowLen {
		padded := make([]float32, windowLen)
		copy(padded, samples)
		return padded, nil
	}

	ratio := float64(len(samples)) / float64(windowLen)
	bounds := speedBounds[a.speedMode]
	clamped := math.Min(math.Max(ratio, bounds.min), bounds.max)
	if clamped != ratio {
		a.logger.Warn("stretch ratio clamped",
			logging.Int(logging.FieldCueIndex, seg.Index),
			logging.Float64("requested", ratio),
			logging.Float64("clamped", clamped))
	}

	stretched, err := a.stretcher.Stretch(ctx, samples, a.sampleRate, clamped)
	if err != nil {
		return nil, err
	}
	return exactLength(stretched, windowLen), nil
}

// exactLength truncates or zero-pads to precisely n samples. The stretch
// transform is approximate, so this correction always runs.
func exactLength(samples []float32, n int) []float32 {
	if len(samples) == n {
		return samples
	}
	out := make([]float32, n)
	copy(out, samples)
	return out
}

func normalizePeak(buffer []float32, ceiling float64, logger *slog.Logger) {
	if ceiling <= 0 {
		return
	}
	var peak float64
	for _, s := range buffer {
		if abs := math.Abs(float64(s)); abs > peak {
			peak = abs
		}
	}
	if peak <= ceiling {
		return
	}
	scale := float32(ceiling / peak)
	for i := range buffer {
		buffer[i] *= scale
	}
	logger.Warn("output peak exceeded ceiling, normalized",
		logging.Float64("peak", peak),
		logging.Float64("ceiling", ceiling))
}

func msToSamples(ms int64, sampleRate int) int {
	return int(math.Round(float64(ms) / 1000 * float64(sampleRate)))
}
