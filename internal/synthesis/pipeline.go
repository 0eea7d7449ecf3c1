package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scwf/open-dubbing/internal/audio"
	"github.com/scwf/open-dubbing/internal/config"
	"github.com/scwf/open-dubbing/internal/logging"
	"github.com/scwf/open-dubbing/internal/services"
	"github.com/scwf/open-dubbing/internal/subtitle"
)

const (
	retryBaseDelay = 1 * time.Second
	retryMaxDelay  = 30 * time.Second
)

// Engine produces speech for one line of text. Implementations must return
// mono samples in [-1, 1] already resampled to the pipeline's global rate.
type Engine interface {
	Name() string
	Synthesize(ctx context.Context, text string) ([]float32, error)
}

// ProgressFunc receives (completed, total) after each cue finishes. It is
// advisory and called from worker goroutines; it must return quickly.
type ProgressFunc func(completed, total int)

// Pipeline fans cues out to a bounded worker pool and collects segments in
// input order regardless of completion order.
type Pipeline struct {
	engine  Engine
	cfg     config.Synthesis
	logger  *slog.Logger
	sleeper func(time.Duration)
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithSleeper overrides how retry backoff waits are performed (useful for
// tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(p *Pipeline) {
		p.sleeper = sleeper
	}
}

// NewPipeline builds a synthesis pipeline around an engine. Concurrency must
// be tunable down to 1 for engines that require serialized calls.
func NewPipeline(engine Engine, cfg config.Synthesis, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: synthesis: engine is required", services.ErrConfiguration)
	}
	pipeline := &Pipeline{
		engine: engine,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "synthesis"),
	}
	for _, opt := range opts {
		opt(pipeline)
	}
	return pipeline, nil
}

// SynthesizeAll renders every cue. results[i] always corresponds to cues[i].
// A cue that exhausts its retry budget fails the whole batch unless
// silence_on_failure is configured, in which case it yields an empty segment.
// Cancellation stops new dispatches and returns the context error.
func (p *Pipeline) SynthesizeAll(ctx context.Context, cues []subtitle.Cue, progress ProgressFunc) ([]audio.Segment, error) {
	segments := make([]audio.Segment, len(cues))
	for i, cue := range cues {
		segments[i] = audio.Segment{Index: cue.Index, StartMS: cue.StartMS, EndMS: cue.EndMS}
	}

	parent := ctx
	grp, ctx := errgroup.WithContext(ctx)
	limit := p.cfg.MaxConcurrency
	if limit < 1 {
		limit = 1
	}
	grp.SetLimit(limit)

	var completed atomic.Int64
	total := len(cues)

	for i, cue := range cues {
		if err := ctx.Err(); err != nil {
			break
		}
		grp.Go(func() error {
			samples, err := p.synthesizeOne(ctx, cue)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if !p.cfg.SilenceOnFailure {
					return services.Wrap(services.ErrExternalTool, "synthesis", p.engine.Name(),
						fmt.Sprintf("cue %d failed after %d attempts", cue.Index, p.cfg.MaxRetries+1), err)
				}
				p.logger.Error("cue synthesis failed, substituting silence",
					logging.Int(logging.FieldCueIndex, cue.Index),
					logging.Error(err))
				samples = nil
			}
			segments[i].Samples = samples
			if progress != nil {
				progress(int(completed.Add(1)), total)
			}
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}
	if err := parent.Err(); err != nil {
		return nil, err
	}
	return segments, nil
}

func (p *Pipeline) synthesizeOne(ctx context.Context, cue subtitle.Cue) ([]float32, error) {
	if strings.TrimSpace(cue.Text) == "" {
		return nil, nil
	}

	var lastErr error
	attempts := p.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			p.logger.Warn("retrying cue synthesis",
				logging.Int(logging.FieldCueIndex, cue.Index),
				logging.Int("attempt", attempt+1),
				logging.Error(lastErr))
			if err := p.sleep(ctx, backoffDelay(attempt)); err != nil {
				return nil, err
			}
		}
		samples, err := p.engine.Synthesize(ctx, cue.Text)
		if err == nil {
			return samples, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (p *Pipeline) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if p.sleeper != nil {
		p.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoffDelay doubles from the base each attempt, capped, with jitter so
// concurrent retries do not synchronize against the engine.
func backoffDelay(attempt int) time.Duration {
	delay := retryBaseDelay << (attempt - 1)
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay + time.Duration(rand.Int64N(int64(delay)/2))
}
