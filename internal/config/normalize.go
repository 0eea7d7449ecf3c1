package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTiming()
	c.normalizeSynthesis()
	c.normalizeLLM()
	c.normalizeTTSAPI()
	c.normalizePolly()
	c.normalizeAudio()
	c.normalizeServer()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeTiming() {
	if c.Timing.ChineseCharMS <= 0 {
		c.Timing.ChineseCharMS = defaultChineseCharMS
	}
	if c.Timing.EnglishWordMS <= 0 {
		c.Timing.EnglishWordMS = defaultEnglishWordMS
	}
	if c.Timing.MinGapThresholdMS < 0 {
		c.Timing.MinGapThresholdMS = defaultMinGapThresholdMS
	}
	if c.Timing.BorrowRatio <= 0 {
		c.Timing.BorrowRatio = defaultBorrowRatio
	}
	if c.Timing.ExtraBufferMS < 0 {
		c.Timing.ExtraBufferMS = defaultExtraBufferMS
	}
}

func (c *Config) normalizeSynthesis() {
	c.Synthesis.Engine = strings.ToLower(strings.TrimSpace(c.Synthesis.Engine))
	if c.Synthesis.Engine == "" {
		c.Synthesis.Engine = defaultSynthesisEngine
	}
	c.Synthesis.Voice = strings.TrimSpace(c.Synthesis.Voice)
	if c.Synthesis.MaxConcurrency <= 0 {
		c.Synthesis.MaxConcurrency = defaultSynthesisConcurrency
	}
	if c.Synthesis.MaxRetries < 0 {
		c.Synthesis.MaxRetries = defaultSynthesisRetries
	}
	c.Synthesis.SpeedMode = strings.ToLower(strings.TrimSpace(c.Synthesis.SpeedMode))
	if c.Synthesis.SpeedMode == "" {
		c.Synthesis.SpeedMode = SpeedModeStandard
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("DEEPSEEK_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("LLM_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.MaxConcurrency <= 0 {
		c.LLM.MaxConcurrency = defaultLLMConcurrency
	}
	if c.LLM.MaxRetries < 0 {
		c.LLM.MaxRetries = defaultLLMRetries
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	if c.LLM.RequestsPerMinute < 0 {
		c.LLM.RequestsPerMinute = 0
	}
}

func (c *Config) normalizeTTSAPI() {
	c.TTSAPI.BaseURL = strings.TrimSpace(c.TTSAPI.BaseURL)
	if c.TTSAPI.BaseURL == "" {
		c.TTSAPI.BaseURL = defaultTTSAPIBaseURL
	}
	if c.TTSAPI.TimeoutSeconds <= 0 {
		c.TTSAPI.TimeoutSeconds = defaultTTSAPITimeout
	}
}

func (c *Config) normalizePolly() {
	c.Polly.Region = strings.TrimSpace(c.Polly.Region)
	if c.Polly.Region == "" {
		c.Polly.Region = defaultPollyRegion
	}
	c.Polly.VoiceID = strings.TrimSpace(c.Polly.VoiceID)
	if c.Polly.VoiceID == "" {
		c.Polly.VoiceID = defaultPollyVoice
	}
	c.Polly.Engine = strings.ToLower(strings.TrimSpace(c.Polly.Engine))
	if c.Polly.Engine == "" {
		c.Polly.Engine = defaultPollyEngine
	}
	if c.Polly.TimeoutSeconds <= 0 {
		c.Polly.TimeoutSeconds = defaultPollyTimeout
	}
}

func (c *Config) normalizeAudio() {
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = defaultSampleRate
	}
	if c.Audio.PeakCeiling <= 0 {
		c.Audio.PeakCeiling = defaultPeakCeiling
	}
}

func (c *Config) normalizeServer() {
	if c.Server.MaxWorkers <= 0 {
		c.Server.MaxWorkers = defaultServerWorkers
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
