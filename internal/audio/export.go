package audio

import (
	"fmt"
	"os"
	"path/filepath"
)

// Export writes the rendered track to disk as 16-bit PCM WAV, creating
// parent directories as needed. The file is written via a temp name and
// renamed so readers never observe a partial track.
func Export(samples []float32, sampleRate int, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("export: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".opendub-*.wav")
	if err != nil {
		return fmt.Errorf("export: create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if err := EncodeWAV(tmp, samples, sampleRate); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("export: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("export: rename: %w", err)
	}
	return nil
}

// Import loads a WAV file and resamples it to the requested rate.
func Import(path string, targetRate int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("import: open: %w", err)
	}
	defer f.Close()

	samples, rate, err := DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", filepath.Base(path), err)
	}
	return Resample(samples, rate, targetRate), nil
}
