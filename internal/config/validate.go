package config

import (
	"errors"
	"fmt"
	"strings"
)

var knownEngines = map[string]struct{}{
	"tts_api": {},
	"polly":   {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTiming(); err != nil {
		return err
	}
	if err := c.validateSynthesis(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTiming() error {
	if err := ensurePositiveMap(map[string]int{
		"timing.chinese_char_ms": c.Timing.ChineseCharMS,
		"timing.english_word_ms": c.Timing.EnglishWordMS,
	}); err != nil {
		return err
	}
	if c.Timing.MinGapThresholdMS < 0 {
		return errors.New("timing.min_gap_threshold_ms must be >= 0")
	}
	if c.Timing.BorrowRatio <= 0 || c.Timing.BorrowRatio > 1 {
		return errors.New("timing.borrow_ratio must be in (0, 1]")
	}
	if c.Timing.ExtraBufferMS < 0 {
		return errors.New("timing.extra_buffer_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateSynthesis() error {
	if _, ok := knownEngines[c.Synthesis.Engine]; !ok {
		return fmt.Errorf("synthesis.engine must be one of tts_api, polly (got %q)", c.Synthesis.Engine)
	}
	if c.Synthesis.MaxConcurrency <= 0 {
		return errors.New("synthesis.max_concurrency must be positive")
	}
	if c.Synthesis.MaxRetries < 0 {
		return errors.New("synthesis.max_retries must be >= 0")
	}
	switch c.Synthesis.SpeedMode {
	case SpeedModeStandard, SpeedModeHighQuality, SpeedModeUltraWide:
	default:
		return fmt.Errorf("synthesis.speed_mode must be one of standard, high_quality, ultra_wide (got %q)", c.Synthesis.SpeedMode)
	}
	return nil
}

func (c *Config) validateLLM() error {
	if !c.LLM.Enabled {
		return nil
	}
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/opendub/config.toml"
		}
		return fmt.Errorf("llm.api_key is required when llm.enabled is true. Set DEEPSEEK_API_KEY env var or edit %s (create with 'opendub config init')", defaultPath)
	}
	if err := ensurePositiveMap(map[string]int{
		"llm.max_concurrency": c.LLM.MaxConcurrency,
		"llm.timeout_seconds": c.LLM.TimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.LLM.MaxRetries < 0 {
		return errors.New("llm.max_retries must be >= 0")
	}
	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if c.Audio.PeakCeiling <= 0 || c.Audio.PeakCeiling > 1 {
		return errors.New("audio.peak_ceiling must be in (0, 1]")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.MaxWorkers <= 0 {
		return errors.New("server.max_workers must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
