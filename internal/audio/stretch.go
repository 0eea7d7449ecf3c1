package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strings"

	"github.com/scwf/open-dubbing/internal/services"
)

// Stretcher changes the tempo of audio without altering pitch. The returned
// length is approximate; callers must apply their own exact-length correction.
type Stretcher interface {
	Stretch(ctx context.Context, samples []float32, sampleRate int, ratio float64) ([]float32, error)
}

// FFmpegStretcher shells out to ffmpeg's atempo filter over raw float32 pipes.
type FFmpegStretcher struct {
	binary string
}

// NewFFmpegStretcher builds a stretcher around the given ffmpeg binary, or
// "ffmpeg" from PATH when empty.
func NewFFmpegStretcher(binary string) *FFmpegStretcher {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegStretcher{binary: binary}
}

// Stretch runs the samples through a chain of atempo filters at the given
// tempo ratio. A ratio above 1 speeds the audio up.
func (f *FFmpegStretcher) Stretch(ctx context.Context, samples []float32, sampleRate int, ratio float64) ([]float32, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	if ratio <= 0 {
		return nil, fmt.Errorf("%w: stretch: ratio must be positive, got %g", services.ErrValidation, ratio)
	}
	filter := atempoChain(ratio)

	input := new(bytes.Buffer)
	input.Grow(len(samples) * 4)
	if err := binary.Write(input, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("stretch: encode input: %w", err)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-f", "f32le", "-ar", fmt.Sprintf("%d", sampleRate), "-ac", "1",
		"-i", "pipe:0",
		"-filter:a", filter,
		"-f", "f32le", "-ar", fmt.Sprintf("%d", sampleRate), "-ac", "1",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, f.binary, args...)
	cmd.Stdin = input
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrExternalTool, "merge", "stretch",
			strings.TrimSpace(stderr.String()), err)
	}

	raw := stdout.Bytes()
	out := make([]float32, len(raw)/4)
	if err := binary.Read(bytes.NewReader(raw[:len(out)*4]), binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("stretch: decode output: %w", err)
	}
	return out, nil
}

// atempoChain decomposes a tempo ratio into chained atempo stages. A single
// atempo stage only accepts [0.5, 2.0], so ratios outside that range are
// factored into multiple stages.
func atempoChain(ratio float64) string {
	var stages []string
	for ratio > 2.0 {
		stages = append(stages, "atempo=2.0")
		ratio /= 2.0
	}
	for ratio < 0.5 {
		stages = append(stages, "atempo=0.5")
		ratio /= 0.5
	}
	stages = append(stages, fmt.Sprintf("atempo=%.6f", ratio))
	return strings.Join(stages, ",")
}

var _ Stretcher = (*FFmpegStretcher)(nil)
