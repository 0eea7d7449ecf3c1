package escalation_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/scwf/open-dubbing/internal/config"
	"github.com/scwf/open-dubbing/internal/escalation"
	"github.com/scwf/open-dubbing/internal/logging"
	"github.com/scwf/open-dubbing/internal/subtitle"
	"github.com/scwf/open-dubbing/internal/timing"
)

type fakeCompleter struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	reply   func(userPrompt string) (string, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, userPrompt)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.reply(userPrompt)
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func llmConfig() config.LLM {
	return config.LLM{Enabled: true, MaxConcurrency: 4, MaxRetries: 1}
}

func pacingConfig() config.Timing {
	return config.Timing{ChineseCharMS: 150, EnglishWordMS: 250, MinGapThresholdMS: 300, BorrowRatio: 1.0, ExtraBufferMS: 200}
}

func newGateway(t *testing.T, client escalation.Completer, cfg config.LLM, opts ...escalation.Option) *escalation.Gateway {
	t.Helper()
	// Instant sleeper keeps retry tests from waiting out real backoff.
	opts = append([]escalation.Option{escalation.WithSleeper(func(time.Duration) {})}, opts...)
	gw, err := escalation.NewGateway(client, cfg, pacingConfig(), logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	return gw
}

func TestSimplifyBatchReplacesText(t *testing.T) {
	client := &fakeCompleter{reply: func(string) (string, error) {
		return "SIMPLIFIED_TEXT: shorter line\nREASON: dropped filler", nil
	}}
	gw := newGateway(t, client, llmConfig())

	cues := []subtitle.Cue{
		{Index: 1, StartMS: 0, EndMS: 1000, Text: "before"},
		{Index: 2, StartMS: 1500, EndMS: 1800, Text: "a very long line that does not fit at all"},
		{Index: 3, StartMS: 2500, EndMS: 3000, Text: "after"},
	}
	escalations := []timing.NeedEscalation{{Index: 2, ShortfallMS: 500}}

	results, err := gw.SimplifyBatch(context.Background(), cues, escalations)
	if err != nil {
		t.Fatalf("SimplifyBatch failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	res := results[0]
	if !res.Simplified || res.SimplifiedText != "shorter line" || res.Reason != "dropped filler" {
		t.Fatalf("unexpected result: %#v", res)
	}

	updated := escalation.Apply(cues, results)
	if updated[1].Text != "shorter line" {
		t.Fatalf("Apply did not rewrite text: %q", updated[1].Text)
	}
	if updated[1].StartMS != 1500 || updated[1].EndMS != 1800 {
		t.Fatalf("Apply changed the timing window: %+v", updated[1])
	}
	if updated[0].Text != "before" || updated[2].Text != "after" {
		t.Fatalf("Apply touched unrelated cues: %#v", updated)
	}
}

func TestSimplifyBatchIncludesContextWindow(t *testing.T) {
	client := &fakeCompleter{reply: func(string) (string, error) {
		return "SIMPLIFIED_TEXT: ok", nil
	}}
	gw := newGateway(t, client, llmConfig())

	cues := make([]subtitle.Cue, 10)
	for i := range cues {
		cues[i] = subtitle.Cue{
			Index:   i + 1,
			StartMS: int64(i * 1000),
			EndMS:   int64(i*1000 + 500),
			Text:    fmt.Sprintf("line %d", i+1),
		}
	}
	escalations := []timing.NeedEscalation{{Index: 5, ShortfallMS: 100}}

	if _, err := gw.SimplifyBatch(context.Background(), cues, escalations); err != nil {
		t.Fatalf("SimplifyBatch failed: %v", err)
	}
	if len(client.prompts) != 1 {
		t.Fatalf("expected one call, got %d", len(client.prompts))
	}
	prompt := client.prompts[0]
	for _, want := range []string{"line 2", "line 5", "line 8", ">> 5"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "line 1\n") || strings.Contains(prompt, "line 9") {
		t.Fatalf("prompt includes cues outside the context window:\n%s", prompt)
	}
}

func TestSimplifyBatchMemoizesIdenticalRequests(t *testing.T) {
	client := &fakeCompleter{reply: func(string) (string, error) {
		return "SIMPLIFIED_TEXT: cached", nil
	}}
	cfg := llmConfig()
	cfg.MaxConcurrency = 1
	gw := newGateway(t, client, cfg)

	cues := []subtitle.Cue{
		{Index: 1, StartMS: 0, EndMS: 300, Text: "same repeated line"},
		{Index: 2, StartMS: 1000, EndMS: 1300, Text: "same repeated line"},
	}
	escalations := []timing.NeedEscalation{
		{Index: 1, ShortfallMS: 200},
		{Index: 2, ShortfallMS: 200},
	}

	results, err := gw.SimplifyBatch(context.Background(), cues, escalations)
	if err != nil {
		t.Fatalf("SimplifyBatch failed: %v", err)
	}
	if client.callCount() != 1 {
		t.Fatalf("expected 1 external call for duplicate text, got %d", client.callCount())
	}
	for _, res := range results {
		if !res.Simplified || res.SimplifiedText != "cached" {
			t.Fatalf("unexpected result: %#v", res)
		}
	}
}

func TestSimplifyBatchFailureKeepsOriginal(t *testing.T) {
	client := &fakeCompleter{reply: func(string) (string, error) {
		return "", errors.New("upstream down")
	}}
	cfg := llmConfig()
	cfg.MaxRetries = 1
	gw := newGateway(t, client, cfg)

	cues := []subtitle.Cue{{Index: 1, StartMS: 0, EndMS: 300, Text: "keep me"}}
	escalations := []timing.NeedEscalation{{Index: 1, ShortfallMS: 100}}

	results, err := gw.SimplifyBatch(context.Background(), cues, escalations)
	if err != nil {
		t.Fatalf("batch should not fail on per-cue errors: %v", err)
	}
	if results[0].Simplified || results[0].SimplifiedText != "keep me" {
		t.Fatalf("failed request should keep original: %#v", results[0])
	}
	if client.callCount() != 2 {
		t.Fatalf("expected 2 attempts, got %d", client.callCount())
	}

	updated := escalation.Apply(cues, results)
	if updated[0].Text != "keep me" {
		t.Fatalf("Apply rewrote a failed cue: %q", updated[0].Text)
	}
}

func TestSimplifyBatchRetriesMalformedReply(t *testing.T) {
	attempt := 0
	client := &fakeCompleter{reply: func(string) (string, error) {
		attempt++
		if attempt == 1 {
			return "no usable lines here", nil
		}
		return "SIMPLIFIED_TEXT: second try\nREASON: retry", nil
	}}
	gw := newGateway(t, client, llmConfig())

	cues := []subtitle.Cue{{Index: 1, StartMS: 0, EndMS: 300, Text: "needs help"}}
	results, err := gw.SimplifyBatch(context.Background(), cues, []timing.NeedEscalation{{Index: 1, ShortfallMS: 100}})
	if err != nil {
		t.Fatalf("SimplifyBatch failed: %v", err)
	}
	if !results[0].Simplified || results[0].SimplifiedText != "second try" {
		t.Fatalf("unexpected result: %#v", results[0])
	}
}

func TestSimplifyBatchBacksOffThroughSleeper(t *testing.T) {
	attempt := 0
	client := &fakeCompleter{reply: func(string) (string, error) {
		attempt++
		if attempt < 3 {
			return "", errors.New("upstream down")
		}
		return "SIMPLIFIED_TEXT: third try\nREASON: recovered", nil
	}}
	cfg := llmConfig()
	cfg.MaxRetries = 2

	var mu sync.Mutex
	var slept []time.Duration
	gw, err := escalation.NewGateway(client, cfg, pacingConfig(), logging.NewNop(),
		escalation.WithSleeper(func(d time.Duration) {
			mu.Lock()
			slept = append(slept, d)
			mu.Unlock()
		}))
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}

	cues := []subtitle.Cue{{Index: 1, StartMS: 0, EndMS: 300, Text: "needs help"}}
	results, err := gw.SimplifyBatch(context.Background(), cues, []timing.NeedEscalation{{Index: 1, ShortfallMS: 100}})
	if err != nil {
		t.Fatalf("SimplifyBatch failed: %v", err)
	}
	if !results[0].Simplified || results[0].SimplifiedText != "third try" {
		t.Fatalf("unexpected result: %#v", results[0])
	}
	if len(slept) != 2 {
		t.Fatalf("sleeper called %d times, want 2", len(slept))
	}
	// Second delay doubles the first (ignoring jitter, at least as large).
	if slept[0] < 500*time.Millisecond || slept[1] < time.Second {
		t.Fatalf("unexpected backoff delays %v", slept)
	}
}

func TestSimplifyBatchCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeCompleter{reply: func(string) (string, error) {
		cancel()
		return "", context.Canceled
	}}
	gw := newGateway(t, client, llmConfig())

	cues := []subtitle.Cue{{Index: 1, StartMS: 0, EndMS: 300, Text: "text"}}
	_, err := gw.SimplifyBatch(ctx, cues, []timing.NeedEscalation{{Index: 1, ShortfallMS: 100}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
