package config

const (
	defaultOutputDir = "~/.local/share/opendub/output"
	defaultStateDir  = "~/.local/share/opendub/state"
	defaultLogDir    = "~/.local/share/opendub/logs"
	defaultAPIBind   = "127.0.0.1:7487"

	defaultChineseCharMS     = 150
	defaultEnglishWordMS     = 250
	defaultMinGapThresholdMS = 300
	defaultBorrowRatio       = 1.0
	defaultExtraBufferMS     = 200

	defaultSynthesisEngine      = "tts_api"
	defaultSynthesisConcurrency = 8
	defaultSynthesisRetries     = 2

	defaultLLMBaseURL        = "https://api.deepseek.com"
	defaultLLMModel          = "deepseek-chat"
	defaultLLMConcurrency    = 8
	defaultLLMRetries        = 3
	defaultLLMTimeoutSeconds = 60

	defaultTTSAPIBaseURL = "http://127.0.0.1:9880"
	defaultTTSAPITimeout = 120

	defaultPollyRegion  = "us-east-1"
	defaultPollyVoice   = "Zhiyu"
	defaultPollyEngine  = "neural"
	defaultPollyTimeout = 30

	defaultSampleRate  = 44100
	defaultPeakCeiling = 1.0

	defaultServerWorkers = 4

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// SpeedModeStandard allows ratios in [0.25, 4.0], SpeedModeHighQuality
// restricts to [0.5, 2.0], and SpeedModeUltraWide permits [0.1, 10.0].
const (
	SpeedModeStandard    = "standard"
	SpeedModeHighQuality = "high_quality"
	SpeedModeUltraWide   = "ultra_wide"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Timing: Timing{
			ChineseCharMS:     defaultChineseCharMS,
			EnglishWordMS:     defaultEnglishWordMS,
			MinGapThresholdMS: defaultMinGapThresholdMS,
			BorrowRatio:       defaultBorrowRatio,
			ExtraBufferMS:     defaultExtraBufferMS,
		},
		Synthesis: Synthesis{
			Engine:         defaultSynthesisEngine,
			MaxConcurrency: defaultSynthesisConcurrency,
			MaxRetries:     defaultSynthesisRetries,
			SpeedMode:      SpeedModeStandard,
		},
		LLM: LLM{
			Enabled:        true,
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			MaxConcurrency: defaultLLMConcurrency,
			MaxRetries:     defaultLLMRetries,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		TTSAPI: TTSAPI{
			BaseURL:        defaultTTSAPIBaseURL,
			TimeoutSeconds: defaultTTSAPITimeout,
		},
		Polly: Polly{
			Region:         defaultPollyRegion,
			VoiceID:        defaultPollyVoice,
			Engine:         defaultPollyEngine,
			TimeoutSeconds: defaultPollyTimeout,
		},
		Audio: Audio{
			SampleRate:  defaultSampleRate,
			PeakCeiling: defaultPeakCeiling,
		},
		Server: Server{
			MaxWorkers: defaultServerWorkers,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
