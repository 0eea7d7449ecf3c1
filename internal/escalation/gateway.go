package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/scwf/open-dubbing/internal/config"
	"github.com/scwf/open-dubbing/internal/logging"
	"github.com/scwf/open-dubbing/internal/subtitle"
	"github.com/scwf/open-dubbing/internal/timing"
)

const (
	contextRadius  = 3
	cacheSize      = 512
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 8 * time.Second
)

// Completer produces a chat completion for a system/user prompt pair.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Result records the outcome of one simplification request. A failed or
// skipped request keeps the original text with Simplified=false; the batch
// itself only fails on cancellation.
type Result struct {
	Index          int
	OriginalText   string
	SimplifiedText string
	Reason         string
	Simplified     bool
}

type cacheKey struct {
	text          string
	minRequiredMS int64
}

type cachedReply struct {
	text   string
	reason string
}

// Gateway asks an LLM to shorten cues the allocator could not fit. Calls run
// under a bounded pool with client-side rate limiting, and identical requests
// within a batch are served from cache.
type Gateway struct {
	client  Completer
	cfg     config.LLM
	pacing  config.Timing
	logger  *slog.Logger
	cache   *lru.Cache[cacheKey, cachedReply]
	limiter *rate.Limiter
	sleeper func(time.Duration)
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithSleeper overrides how retry backoff waits are performed (useful for
// tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(g *Gateway) {
		g.sleeper = sleeper
	}
}

// NewGateway constructs a simplification gateway.
func NewGateway(client Completer, cfg config.LLM, pacing config.Timing, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	if client == nil {
		return nil, errors.New("escalation: completer is required")
	}
	cache, err := lru.New[cacheKey, cachedReply](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("escalation: build cache: %w", err)
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	gateway := &Gateway{
		client:  client,
		cfg:     cfg,
		pacing:  pacing,
		logger:  logging.NewComponentLogger(logger, "escalation"),
		cache:   cache,
		limiter: limiter,
	}
	for _, opt := range opts {
		opt(gateway)
	}
	return gateway, nil
}

// SimplifyBatch resolves every escalation against the cue list. Results are
// ordered like the escalations slice. Individual failures downgrade to the
// original text; only cancellation aborts the batch.
func (g *Gateway) SimplifyBatch(ctx context.Context, cues []subtitle.Cue, escalations []timing.NeedEscalation) ([]Result, error) {
	results := make([]Result, len(escalations))

	positions := make(map[int]int, len(cues))
	for pos, cue := range cues {
		positions[cue.Index] = pos
	}

	grp, ctx := errgroup.WithContext(ctx)
	limit := g.cfg.MaxConcurrency
	if limit < 1 {
		limit = 1
	}
	grp.SetLimit(limit)

	for i, esc := range escalations {
		pos, ok := positions[esc.Index]
		if !ok {
			results[i] = Result{Index: esc.Index}
			continue
		}
		cue := cues[pos]
		results[i] = Result{Index: esc.Index, OriginalText: cue.Text, SimplifiedText: cue.Text}

		grp.Go(func() error {
			res, err := g.simplifyOne(ctx, cue, contextWindow(cues, pos))
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				g.logger.Warn("simplification failed, keeping original text",
					logging.Int(logging.FieldCueIndex, cue.Index),
					logging.Error(err))
				return nil
			}
			results[i] = res
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (g *Gateway) simplifyOne(ctx context.Context, cue subtitle.Cue, window []subtitle.Cue) (Result, error) {
	res := Result{Index: cue.Index, OriginalText: cue.Text, SimplifiedText: cue.Text}

	targetMax := cue.DurationMS()
	key := cacheKey{text: cue.Text, minRequiredMS: timing.MinRequiredMS(cue.Text, g.pacing)}
	if cached, ok := g.cache.Get(key); ok {
		res.SimplifiedText = cached.text
		res.Reason = cached.reason
		res.Simplified = true
		return res, nil
	}

	prompt := buildUserPrompt(cue, window, targetMax)

	var lastErr error
	attempts := g.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := g.sleep(ctx, backoffDelay(attempt)); err != nil {
				return res, err
			}
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return res, err
		}
		reply, err := g.client.Complete(ctx, simplificationSystemPrompt, prompt)
		if err != nil {
			lastErr = err
			continue
		}
		text, reason, err := parseReply(reply)
		if err != nil {
			lastErr = err
			continue
		}
		if required := timing.MinRequiredMS(text, g.pacing); required > targetMax {
			g.logger.Debug("simplified text still exceeds window, keeping it anyway",
				logging.Int(logging.FieldCueIndex, cue.Index),
				logging.Int64("required_ms", required),
				logging.Int64("window_ms", targetMax))
		}
		g.cache.Add(key, cachedReply{text: text, reason: reason})
		res.SimplifiedText = text
		res.Reason = reason
		res.Simplified = true
		return res, nil
	}
	return res, lastErr
}

func (g *Gateway) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if g.sleeper != nil {
		g.sleeper(delay)
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

// Apply rewrites cue texts from successful simplifications. Timing windows
// are untouched.
func Apply(cues []subtitle.Cue, results []Result) []subtitle.Cue {
	out := make([]subtitle.Cue, len(cues))
	copy(out, cues)
	byIndex := make(map[int]Result, len(results))
	for _, res := range results {
		if res.Simplified {
			byIndex[res.Index] = res
		}
	}
	for i, cue := range out {
		if res, ok := byIndex[cue.Index]; ok {
			out[i] = cue.WithText(res.SimplifiedText)
		}
	}
	return out
}

func contextWindow(cues []subtitle.Cue, pos int) []subtitle.Cue {
	lo := pos - contextRadius
	if lo < 0 {
		lo = 0
	}
	hi := pos + contextRadius + 1
	if hi > len(cues) {
		hi = len(cues)
	}
	return cues[lo:hi]
}

func backoffDelay(attempt int) time.Duration {
	delay := retryBaseDelay << (attempt - 1)
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	jitter := time.Duration(rand.Int64N(int64(delay) / 2))
	return delay + jitter
}
