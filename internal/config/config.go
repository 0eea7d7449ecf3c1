package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
}

// Timing contains the knobs of the subtitle timing allocator.
type Timing struct {
	ChineseCharMS     int     `toml:"chinese_char_ms"`
	EnglishWordMS     int     `toml:"english_word_ms"`
	MinGapThresholdMS int     `toml:"min_gap_threshold_ms"`
	BorrowRatio       float64 `toml:"borrow_ratio"`
	ExtraBufferMS     int     `toml:"extra_buffer_ms"`
}

// Synthesis contains configuration for the speech synthesis pipeline.
type Synthesis struct {
	Engine         string `toml:"engine"`
	Voice          string `toml:"voice"`
	MaxConcurrency int    `toml:"max_concurrency"`
	MaxRetries     int    `toml:"max_retries"`
	// SpeedMode bounds how far a segment may be time-stretched during merge:
	// "standard", "high_quality", or "ultra_wide".
	SpeedMode string `toml:"speed_mode"`
	// SilenceOnFailure substitutes a silent segment for cues whose synthesis
	// exhausts retries instead of failing the whole batch.
	SilenceOnFailure   bool `toml:"silence_on_failure"`
	TruncateOnOverflow bool `toml:"truncate_on_overflow"`
}

// LLM contains connection settings for the text simplification service.
type LLM struct {
	Enabled           bool   `toml:"enabled"`
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	Model             string `toml:"model"`
	MaxConcurrency    int    `toml:"max_concurrency"`
	MaxRetries        int    `toml:"max_retries"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

// TTSAPI contains configuration for HTTP-served TTS engines.
type TTSAPI struct {
	BaseURL        string `toml:"base_url"`
	ReferenceAudio string `toml:"reference_audio"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Polly contains configuration for the AWS Polly engine.
type Polly struct {
	Region         string `toml:"region"`
	VoiceID        string `toml:"voice_id"`
	Engine         string `toml:"engine"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Audio contains output track settings.
type Audio struct {
	SampleRate  int     `toml:"sample_rate"`
	PeakCeiling float64 `toml:"peak_ceiling"`
}

// Server contains configuration for the HTTP task API.
type Server struct {
	MaxWorkers int `toml:"max_workers"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for open-dubbing.
//
// Configuration sections by subsystem:
//   - Paths: directories and API bind address
//   - Timing: allocator pacing model and slack borrowing
//   - Synthesis: engine selection, concurrency, retries, stretch bounds
//   - LLM: text simplification connection settings
//   - TTSAPI: HTTP TTS engine endpoint
//   - Polly: AWS Polly engine settings
//   - Audio: output sample rate and normalization ceiling
//   - Server: HTTP task API worker pool
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Timing    Timing    `toml:"timing"`
	Synthesis Synthesis `toml:"synthesis"`
	LLM       LLM       `toml:"llm"`
	TTSAPI    TTSAPI    `toml:"tts_api"`
	Polly     Polly     `toml:"polly"`
	Audio     Audio     `toml:"audio"`
	Server    Server    `toml:"server"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/opendub/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/opendub/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("opendub.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for time stretching.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
