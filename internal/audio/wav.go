package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/scwf/open-dubbing/internal/services"
)

const (
	wavFormatPCM       = 1
	wavFormatIEEEFloat = 3
)

// EncodeWAV writes mono samples as a 16-bit PCM RIFF/WAVE stream. Samples
// outside [-1, 1] are clipped.
func EncodeWAV(w io.Writer, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: wav encode: sample rate %d", services.ErrValidation, sampleRate)
	}
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataLen := len(samples) * 2
	byteRate := sampleRate * channels * bitsPerSample / 8

	header := new(bytes.Buffer)
	header.WriteString("RIFF")
	binary.Write(header, binary.LittleEndian, uint32(36+dataLen))
	header.WriteString("WAVE")
	header.WriteString("fmt ")
	binary.Write(header, binary.LittleEndian, uint32(16))
	binary.Write(header, binary.LittleEndian, uint16(wavFormatPCM))
	binary.Write(header, binary.LittleEndian, uint16(channels))
	binary.Write(header, binary.LittleEndian, uint32(sampleRate))
	binary.Write(header, binary.LittleEndian, uint32(byteRate))
	binary.Write(header, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	binary.Write(header, binary.LittleEndian, uint16(bitsPerSample))
	header.WriteString("data")
	binary.Write(header, binary.LittleEndian, uint32(dataLen))
	if _, err := w.Write(header.Bytes()); err != nil {
		return fmt.Errorf("wav encode: header: %w", err)
	}

	pcm := make([]byte, dataLen)
	for i, s := range samples {
		v := clampSample(s)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(math.Round(float64(v)*32767))))
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("wav encode: data: %w", err)
	}
	return nil
}

// DecodeWAV reads a mono or multi-channel RIFF/WAVE stream and returns the
// first channel as float32 samples. 16-bit PCM and 32-bit float payloads are
// supported.
func DecodeWAV(r io.Reader) ([]float32, int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("wav decode: read: %w", err)
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("%w: wav decode: not a RIFF/WAVE stream", services.ErrValidation)
	}

	var (
		format     uint16
		channels   uint16
		sampleRate uint32
		bits       uint16
		payload    []byte
	)
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkLen := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := data[offset+8:]
		if chunkLen > len(body) {
			chunkLen = len(body)
		}
		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return nil, 0, fmt.Errorf("%w: wav decode: short fmt chunk", services.ErrValidation)
			}
			format = binary.LittleEndian.Uint16(body[0:2])
			channels = binary.LittleEndian.Uint16(body[2:4])
			sampleRate = binary.LittleEndian.Uint32(body[4:8])
			bits = binary.LittleEndian.Uint16(body[14:16])
		case "data":
			payload = body[:chunkLen]
		}
		// Chunks are word-aligned.
		offset += 8 + chunkLen + chunkLen%2
	}
	if payload == nil {
		return nil, 0, fmt.Errorf("%w: wav decode: missing data chunk", services.ErrValidation)
	}
	if channels == 0 {
		return nil, 0, fmt.Errorf("%w: wav decode: missing fmt chunk", services.ErrValidation)
	}

	switch {
	case format == wavFormatPCM && bits == 16:
		frameSize := int(channels) * 2
		frames := len(payload) / frameSize
		samples := make([]float32, frames)
		for i := 0; i < frames; i++ {
			v := int16(binary.LittleEndian.Uint16(payload[i*frameSize:]))
			samples[i] = float32(v) / 32768
		}
		return samples, int(sampleRate), nil
	case format == wavFormatIEEEFloat && bits == 32:
		frameSize := int(channels) * 4
		frames := len(payload) / frameSize
		samples := make([]float32, frames)
		for i := 0; i < frames; i++ {
			v := binary.LittleEndian.Uint32(payload[i*frameSize:])
			samples[i] = math.Float32frombits(v)
		}
		return samples, int(sampleRate), nil
	default:
		return nil, 0, fmt.Errorf("%w: wav decode: unsupported format %d/%d-bit", services.ErrValidation, format, bits)
	}
}

// Resample converts samples between rates with linear interpolation. Engine
// adapters use it to standardize output to the pipeline's global rate.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		return samples
	}
	outLen := int(math.Round(float64(len(samples)) * float64(toRate) / float64(fromRate)))
	if outLen <= 0 {
		return nil
	}
	out := make([]float32, outLen)
	step := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * step
		left := int(pos)
		if left >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(left))
		out[i] = samples[left]*(1-frac) + samples[left+1]*frac
	}
	return out
}

func clampSample(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
