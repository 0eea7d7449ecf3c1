package dubbing_test

import (
	"errors"
	"testing"

	"github.com/scwf/open-dubbing/internal/dubbing"
	"github.com/scwf/open-dubbing/internal/services"
	"github.com/scwf/open-dubbing/internal/testsupport"
)

func TestKnownEngine(t *testing.T) {
	for _, name := range dubbing.EngineNames {
		if !dubbing.KnownEngine(name) {
			t.Fatalf("%q should be known", name)
		}
	}
	if dubbing.KnownEngine("espeak") || dubbing.KnownEngine("") {
		t.Fatal("unknown names accepted")
	}
}

func TestNewEngineRejectsUnknownName(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Synthesis.Engine = "espeak"
	if _, err := dubbing.NewEngine(cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNewEngineVoiceLeavesConfigUntouched(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Synthesis.Engine = "tts_api"
	cfg.Synthesis.Voice = "/refs/narrator.wav"
	cfg.TTSAPI.ReferenceAudio = "/refs/default.wav"

	if _, err := dubbing.NewEngine(cfg); err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	// The voice override applies to a copy, never the shared config.
	if cfg.TTSAPI.ReferenceAudio != "/refs/default.wav" {
		t.Fatalf("shared config mutated: %q", cfg.TTSAPI.ReferenceAudio)
	}
}
