package dubbing

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/scwf/open-dubbing/internal/audio"
	"github.com/scwf/open-dubbing/internal/config"
	"github.com/scwf/open-dubbing/internal/escalation"
	"github.com/scwf/open-dubbing/internal/logging"
	"github.com/scwf/open-dubbing/internal/services"
	"github.com/scwf/open-dubbing/internal/subtitle"
	"github.com/scwf/open-dubbing/internal/synthesis"
	"github.com/scwf/open-dubbing/internal/task"
	"github.com/scwf/open-dubbing/internal/timing"
)

// Progress milestones per stage. Synthesis interpolates between its start
// and the merge milestone as cues complete.
const (
	progressParsed     = 10
	progressOptimized  = 20
	progressSimplified = 30
	progressSynthStart = 50
	progressMerging    = 90
	progressDone       = 100
)

// ProgressFunc receives coarse stage progress for UI and task updates.
type ProgressFunc func(stage string, percent float64, message string)

// Result summarizes one dubbing run.
type Result struct {
	OutputPath     string
	CueCount       int
	EscalatedCues  int
	SimplifiedCues int
	Decisions      []timing.Decision
	Warnings       []string
}

// Orchestrator drives a dubbing run end to end: parse, retime, simplify,
// synthesize, merge, export.
type Orchestrator struct {
	cfg        *config.Config
	allocator  *timing.Allocator
	gateway    *escalation.Gateway
	pipeline   *synthesis.Pipeline
	assembler  *audio.Assembler
	stretcher  audio.Stretcher
	baseLogger *slog.Logger
	logger     *slog.Logger
}

// New wires an orchestrator. The gateway may be nil when the LLM is disabled;
// escalations are then left unresolved and reported as warnings.
func New(cfg *config.Config, engine synthesis.Engine, gateway *escalation.Gateway, stretcher audio.Stretcher, logger *slog.Logger) (*Orchestrator, error) {
	pipeline, err := synthesis.NewPipeline(engine, cfg.Synthesis, logger)
	if err != nil {
		return nil, err
	}
	assembler, err := audio.NewAssembler(cfg, stretcher, logger)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:        cfg,
		allocator:  timing.NewAllocator(cfg.Timing, logger),
		gateway:    gateway,
		pipeline:   pipeline,
		assembler:  assembler,
		stretcher:  stretcher,
		baseLogger: logger,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
	}, nil
}

// Process runs the full pipeline for one subtitle file and writes the dubbed
// track to outputPath.
func (o *Orchestrator) Process(ctx context.Context, subtitlePath, outputPath string, report ProgressFunc) (*Result, error) {
	if report == nil {
		report = func(string, float64, string) {}
	}
	result := &Result{OutputPath: outputPath}

	o.logger.Info("dubbing started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("subtitle", subtitlePath),
		logging.String("output", outputPath))

	cues, warnings, err := parseInput(subtitlePath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "parse", "", "read subtitle input", err)
	}
	if len(cues) == 0 {
		return nil, services.Wrap(services.ErrValidation, "parse", "", "no usable cues in "+filepath.Base(subtitlePath), nil)
	}
	result.CueCount = len(cues)
	result.Warnings = warnings
	for _, w := range warnings {
		o.logger.Warn("subtitle parse warning", logging.String("detail", w))
	}
	report("parse", progressParsed, fmt.Sprintf("Parsed %d cues", len(cues)))

	// Plain-text input carries no timing windows; it skips retiming and is
	// merged by simple concatenation.
	timed := hasTiming(cues)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if timed {
		var decisions []timing.Decision
		cues, decisions = o.allocator.Optimize(cues)
		result.Decisions = decisions
		escalations := timing.Escalations(decisions)
		result.EscalatedCues = len(escalations)
		report("timing", progressOptimized, fmt.Sprintf("Adjusted timing, %d cues need simplification", len(escalations)))

		if len(escalations) > 0 {
			cues, err = o.simplify(ctx, cues, escalations, result)
			if err != nil {
				return nil, err
			}
			// Shortened lines can change what borrowing fits, so time the
			// rewritten cues again and keep the final decisions.
			if result.SimplifiedCues > 0 {
				cues, result.Decisions = o.allocator.Optimize(cues)
			}
		}
		report("escalation", progressSimplified, fmt.Sprintf("Simplified %d cues", result.SimplifiedCues))
	} else {
		report("timing", progressSimplified, "Untimed input, using concatenation")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	segments, err := o.pipeline.SynthesizeAll(ctx, cues, func(completed, total int) {
		percent := progressSynthStart + (progressMerging-progressSynthStart)*float64(completed)/float64(total)
		report("synthesis", percent, fmt.Sprintf("Synthesized %d/%d cues", completed, total))
	})
	if err != nil {
		return nil, err
	}

	report("merge", progressMerging, "Merging audio track")
	var track []float32
	if timed {
		track, err = o.assembler.Assemble(ctx, segments)
		if err != nil {
			return nil, err
		}
	} else {
		track = audio.Concatenate(segments)
	}

	if err := audio.Export(track, o.cfg.Audio.SampleRate, outputPath); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "export", "", "write output track", err)
	}
	report("export", progressDone, "Dubbing complete")

	o.logger.Info("dubbing completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("cues", result.CueCount),
		logging.Int("escalated", result.EscalatedCues),
		logging.String("output", outputPath))
	return result, nil
}

// simplify resolves escalations through the LLM and rewrites the cue texts.
// Callers re-run the allocator afterwards so the rewritten lines get a fresh
// borrowing pass.
func (o *Orchestrator) simplify(ctx context.Context, cues []subtitle.Cue, escalations []timing.NeedEscalation, result *Result) ([]subtitle.Cue, error) {
	if o.gateway == nil {
		o.logger.Warn("llm disabled, leaving over-long cues unresolved",
			logging.Int("escalated", len(escalations)))
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d cues exceed their windows and llm simplification is disabled", len(escalations)))
		return cues, nil
	}
	results, err := o.gateway.SimplifyBatch(ctx, cues, escalations)
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		if res.Simplified {
			result.SimplifiedCues++
		}
	}
	return escalation.Apply(cues, results), nil
}

// Optimize runs the parse, timing, and simplification stages without
// synthesizing audio. When the LLM gateway is wired, escalated cues are
// simplified and re-timed so the returned cues and decisions reflect the same
// text a full dubbing run would speak.
func (o *Orchestrator) Optimize(ctx context.Context, subtitlePath string) ([]subtitle.Cue, []timing.Decision, *Result, error) {
	result := &Result{}
	cues, warnings, err := parseInput(subtitlePath)
	if err != nil {
		return nil, nil, nil, services.Wrap(services.ErrValidation, "parse", "", "read subtitle input", err)
	}
	result.CueCount = len(cues)
	result.Warnings = warnings
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}
	cues, decisions := o.allocator.Optimize(cues)
	escalations := timing.Escalations(decisions)
	result.EscalatedCues = len(escalations)
	if len(escalations) > 0 {
		cues, err = o.simplify(ctx, cues, escalations, result)
		if err != nil {
			return nil, nil, nil, err
		}
		if result.SimplifiedCues > 0 {
			cues, decisions = o.allocator.Optimize(cues)
		}
	}
	result.Decisions = decisions
	return cues, decisions, result, nil
}

// forTask returns an orchestrator honoring the task's engine and voice
// overrides. Tasks that match the configured defaults reuse the receiver;
// anything else gets a fresh engine built over a copy of the configuration.
func (o *Orchestrator) forTask(t *task.Task) (*Orchestrator, error) {
	engineName := strings.TrimSpace(t.Engine)
	voice := strings.TrimSpace(t.Voice)
	if (engineName == "" || engineName == o.cfg.Synthesis.Engine) &&
		(voice == "" || voice == o.cfg.Synthesis.Voice) {
		return o, nil
	}
	cfg := *o.cfg
	if engineName != "" {
		cfg.Synthesis.Engine = engineName
	}
	if voice != "" {
		cfg.Synthesis.Voice = voice
	}
	engine, err := NewEngine(&cfg)
	if err != nil {
		return nil, err
	}
	return New(&cfg, engine, o.gateway, o.stretcher, o.baseLogger)
}

// RunTask executes a stored task, persisting progress and the terminal state.
// Per-task engine and voice fields override the configured synthesis
// defaults for this run only.
func (o *Orchestrator) RunTask(ctx context.Context, store *task.Store, t *task.Task) error {
	ctx = services.WithTaskID(ctx, t.ID)
	logger := logging.WithContext(ctx, o.logger)

	runner, err := o.forTask(t)
	if err != nil {
		t.Status = services.FailureStatus(err)
		t.ErrorMessage = err.Error()
		logger.Error("dubbing task rejected",
			logging.String(logging.FieldEventType, "task_failed"),
			logging.Error(err))
		if updateErr := store.Update(ctx, t); updateErr != nil {
			logger.Warn("failed to persist task failure", logging.Error(updateErr))
		}
		return err
	}

	t.Status = task.StatusProcessing
	t.SetProgress("parse", "Starting", 0)
	if err := store.Update(ctx, t); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}

	// Synthesis progress arrives from worker goroutines.
	var mu sync.Mutex
	report := func(stage string, percent float64, message string) {
		mu.Lock()
		defer mu.Unlock()
		t.SetProgress(stage, message, percent)
		if err := store.Update(ctx, t); err != nil {
			logger.Warn("progress update failed", logging.Error(err))
		}
	}

	result, err := runner.Process(ctx, t.SubtitlePath, outputPathFor(t, o.cfg), report)
	if err != nil {
		t.Status = services.FailureStatus(err)
		t.ErrorMessage = err.Error()
		logger.Error("dubbing task failed",
			logging.String(logging.FieldEventType, "task_failed"),
			logging.Error(err))
		if t.Status == task.StatusCancelled {
			t.ErrorMessage = task.UserCancelReason
			// the row may already be cancelled, which Update leaves alone
		}
		if updateErr := store.Update(ctx, t); updateErr != nil {
			logger.Warn("failed to persist task failure", logging.Error(updateErr))
		}
		return err
	}

	t.CueCount = result.CueCount
	t.EscalatedCues = result.EscalatedCues
	t.SetCompleted(result.OutputPath)
	if err := store.Update(ctx, t); err != nil {
		return fmt.Errorf("persist task completion: %w", err)
	}
	return nil
}

func hasTiming(cues []subtitle.Cue) bool {
	for _, cue := range cues {
		if cue.EndMS > 0 {
			return true
		}
	}
	return false
}

func parseInput(path string) ([]subtitle.Cue, []string, error) {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		return subtitle.ParseTextFile(path)
	}
	return subtitle.ParseSRTFile(path)
}

func outputPathFor(t *task.Task, cfg *config.Config) string {
	if strings.TrimSpace(t.OutputPath) != "" {
		return t.OutputPath
	}
	base := strings.TrimSuffix(filepath.Base(t.SubtitlePath), filepath.Ext(t.SubtitlePath))
	return filepath.Join(cfg.Paths.OutputDir, base+".wav")
}
