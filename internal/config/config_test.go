package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/scwf/open-dubbing/internal/config"
)

func TestLoadDefaultConfigUsesEnvLLMKeyAndExpandsPaths(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "test-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantOutput := filepath.Join(tempHome, ".local", "share", "opendub", "output")
	if cfg.Paths.OutputDir != wantOutput {
		t.Fatalf("unexpected output dir: got %q want %q", cfg.Paths.OutputDir, wantOutput)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7487" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.LLM.APIKey != "test-key" {
		t.Fatalf("expected LLM key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.BaseURL != config.Default().LLM.BaseURL {
		t.Fatalf("unexpected LLM base url: %q", cfg.LLM.BaseURL)
	}
	if cfg.Timing.ChineseCharMS != 150 {
		t.Fatalf("unexpected chinese_char_ms default: %d", cfg.Timing.ChineseCharMS)
	}
	if cfg.Timing.BorrowRatio != 1.0 {
		t.Fatalf("unexpected borrow_ratio default: %v", cfg.Timing.BorrowRatio)
	}
	if cfg.Synthesis.Engine != "tts_api" {
		t.Fatalf("unexpected default engine: %q", cfg.Synthesis.Engine)
	}
	if cfg.Synthesis.SpeedMode != config.SpeedModeStandard {
		t.Fatalf("unexpected default speed mode: %q", cfg.Synthesis.SpeedMode)
	}
	if cfg.Synthesis.SilenceOnFailure {
		t.Fatal("expected silence_on_failure disabled by default")
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Fatalf("unexpected default sample rate: %d", cfg.Audio.SampleRate)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "opendub.toml")

	type payload struct {
		Timing struct {
			ChineseCharMS     int     `toml:"chinese_char_ms"`
			MinGapThresholdMS int     `toml:"min_gap_threshold_ms"`
			BorrowRatio       float64 `toml:"borrow_ratio"`
		} `toml:"timing"`
		Synthesis struct {
			Engine         string `toml:"engine"`
			MaxConcurrency int    `toml:"max_concurrency"`
			SpeedMode      string `toml:"speed_mode"`
		} `toml:"synthesis"`
		LLM struct {
			Enabled bool   `toml:"enabled"`
			APIKey  string `toml:"api_key"`
		} `toml:"llm"`
	}
	custom := payload{}
	custom.Timing.ChineseCharMS = 130
	custom.Timing.MinGapThresholdMS = 200
	custom.Timing.BorrowRatio = 0.5
	custom.Synthesis.Engine = "polly"
	custom.Synthesis.MaxConcurrency = 2
	custom.Synthesis.SpeedMode = "high_quality"
	custom.LLM.Enabled = true
	custom.LLM.APIKey = "abc123"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Timing.ChineseCharMS != 130 {
		t.Fatalf("expected chinese_char_ms 130, got %d", cfg.Timing.ChineseCharMS)
	}
	if cfg.Timing.MinGapThresholdMS != 200 {
		t.Fatalf("expected min_gap_threshold_ms 200, got %d", cfg.Timing.MinGapThresholdMS)
	}
	if cfg.Timing.BorrowRatio != 0.5 {
		t.Fatalf("expected borrow_ratio 0.5, got %v", cfg.Timing.BorrowRatio)
	}
	if cfg.Synthesis.Engine != "polly" {
		t.Fatalf("expected polly engine, got %q", cfg.Synthesis.Engine)
	}
	if cfg.Synthesis.MaxConcurrency != 2 {
		t.Fatalf("expected max_concurrency 2, got %d", cfg.Synthesis.MaxConcurrency)
	}
	if cfg.Synthesis.SpeedMode != config.SpeedModeHighQuality {
		t.Fatalf("expected high_quality speed mode, got %q", cfg.Synthesis.SpeedMode)
	}
	if cfg.LLM.APIKey != "abc123" {
		t.Fatalf("expected LLM key from file, got %q", cfg.LLM.APIKey)
	}
}

func TestEnvVarOverridesConfigFileForAPIKey(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "opendub.toml")

	type payload struct {
		LLM struct {
			Enabled bool   `toml:"enabled"`
			APIKey  string `toml:"api_key"`
		} `toml:"llm"`
	}
	custom := payload{}
	custom.LLM.Enabled = true
	custom.LLM.APIKey = "file-key"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "file-key" {
		t.Fatalf("expected LLM key from file, got %q", cfg.LLM.APIKey)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "chinese_char_ms") {
		t.Fatalf("sample config missing timing keys: %s", contents)
	}

	// Validate it decodes
	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}

	if runtime.GOOS != "windows" {
		if !strings.Contains(cfg.Paths.OutputDir, "opendub") {
			t.Fatalf("expected output dir to contain opendub, got %q", cfg.Paths.OutputDir)
		}
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = "key"
	cfg.Timing.ChineseCharMS = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive chinese_char_ms")
	}

	cfg = config.Default()
	cfg.LLM.APIKey = "key"
	cfg.Timing.BorrowRatio = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for borrow_ratio above 1")
	}

	cfg = config.Default()
	cfg.LLM.APIKey = "key"
	cfg.Synthesis.SpeedMode = "turbo"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown speed mode")
	}

	cfg = config.Default()
	cfg.LLM.APIKey = "key"
	cfg.Synthesis.Engine = "espeak"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown engine")
	}

	cfg = config.Default()
	cfg.LLM.Enabled = true
	cfg.LLM.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when llm enabled without api key")
	}

	cfg = config.Default()
	cfg.LLM.APIKey = "key"
	cfg.Audio.PeakCeiling = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for peak ceiling above 1")
	}
}
