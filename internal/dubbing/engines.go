package dubbing

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/scwf/open-dubbing/internal/audio"
	"github.com/scwf/open-dubbing/internal/config"
	"github.com/scwf/open-dubbing/internal/escalation"
	"github.com/scwf/open-dubbing/internal/logging"
	"github.com/scwf/open-dubbing/internal/services"
	"github.com/scwf/open-dubbing/internal/services/deepseek"
	"github.com/scwf/open-dubbing/internal/services/polly"
	"github.com/scwf/open-dubbing/internal/services/ttsapi"
	"github.com/scwf/open-dubbing/internal/synthesis"
	"github.com/scwf/open-dubbing/internal/timing"
)

// EngineNames lists the synthesis engines this build knows how to construct.
var EngineNames = []string{"tts_api", "polly"}

// KnownEngine reports whether name maps to a constructible engine.
func KnownEngine(name string) bool {
	for _, known := range EngineNames {
		if name == known {
			return true
		}
	}
	return false
}

// NewEngine builds the synthesis engine named by configuration. A non-empty
// synthesis voice overrides the engine's voice setting: the Polly voice id,
// or the TTS API reference audio path.
func NewEngine(cfg *config.Config) (synthesis.Engine, error) {
	if voice := strings.TrimSpace(cfg.Synthesis.Voice); voice != "" {
		clone := *cfg
		switch cfg.Synthesis.Engine {
		case "tts_api":
			clone.TTSAPI.ReferenceAudio = voice
		case "polly":
			clone.Polly.VoiceID = voice
		}
		cfg = &clone
	}
	switch cfg.Synthesis.Engine {
	case "tts_api":
		return ttsapi.New(cfg)
	case "polly":
		return polly.New(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown synthesis engine %q", services.ErrConfiguration, cfg.Synthesis.Engine)
	}
}

// NewGateway builds the LLM simplification gateway, or nil when disabled.
func NewGateway(cfg *config.Config, logger *slog.Logger) (*escalation.Gateway, error) {
	if !cfg.LLM.Enabled {
		return nil, nil
	}
	client := deepseek.NewClient(cfg.LLM.APIKey,
		deepseek.WithBaseURL(cfg.LLM.BaseURL),
		deepseek.WithModel(cfg.LLM.Model),
		deepseek.WithTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
	)
	return escalation.NewGateway(client, cfg.LLM, cfg.Timing, logger)
}

// NewDefault assembles a fully wired orchestrator from configuration.
func NewDefault(cfg *config.Config, logger *slog.Logger) (*Orchestrator, error) {
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	gateway, err := NewGateway(cfg, logger)
	if err != nil {
		return nil, err
	}
	stretcher := audio.NewFFmpegStretcher(cfg.FFmpegBinary())
	return New(cfg, engine, gateway, stretcher, logger)
}

// NewRetimer wires the parse, timing, and simplification stages only, for
// callers that inspect or rewrite cue timing without synthesizing audio.
// The returned orchestrator supports Optimize but not Process or RunTask.
func NewRetimer(cfg *config.Config, logger *slog.Logger) (*Orchestrator, error) {
	gateway, err := NewGateway(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:        cfg,
		allocator:  timing.NewAllocator(cfg.Timing, logger),
		gateway:    gateway,
		baseLogger: logger,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
	}, nil
}
