package ttsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/scwf/open-dubbing/internal/audio"
	"github.com/scwf/open-dubbing/internal/config"
	"github.com/scwf/open-dubbing/internal/services"
)

const defaultTimeout = 120 * time.Second

// Engine speaks to a local HTTP text-to-speech server (a GPT-SoVITS style
// /tts endpoint returning a WAV body). Output is resampled to the pipeline's
// global rate before it is returned.
type Engine struct {
	baseURL    string
	refAudio   string
	sampleRate int
	httpClient *http.Client
}

// Option customizes the engine.
type Option func(*Engine)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) {
		if client != nil {
			e.httpClient = client
		}
	}
}

// New constructs an engine from configuration.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.TTSAPI.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: tts_api: base_url is required", services.ErrConfiguration)
	}
	timeout := defaultTimeout
	if cfg.TTSAPI.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TTSAPI.TimeoutSeconds) * time.Second
	}
	engine := &Engine{
		baseURL:    base,
		refAudio:   strings.TrimSpace(cfg.TTSAPI.ReferenceAudio),
		sampleRate: cfg.Audio.SampleRate,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Name implements synthesis.Engine.
func (e *Engine) Name() string { return "tts_api" }

type synthesizeRequest struct {
	Text          string `json:"text"`
	TextLang      string `json:"text_lang"`
	RefAudioPath  string `json:"ref_audio_path,omitempty"`
	PromptLang    string `json:"prompt_lang,omitempty"`
	MediaType     string `json:"media_type"`
	StreamingMode bool   `json:"streaming_mode"`
}

// Synthesize implements synthesis.Engine.
func (e *Engine) Synthesize(ctx context.Context, text string) ([]float32, error) {
	endpoint, err := url.JoinPath(e.baseURL, "/tts")
	if err != nil {
		return nil, fmt.Errorf("tts_api: build url: %w", err)
	}
	payload := synthesizeRequest{
		Text:      text,
		TextLang:  "auto",
		MediaType: "wav",
	}
	if e.refAudio != "" {
		payload.RefAudioPath = e.refAudio
		payload.PromptLang = "auto"
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("tts_api: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("tts_api: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "synthesis", "tts_api", "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts_api: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		detail := fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		return nil, services.Wrap(services.ErrExternalTool, "synthesis", "tts_api", detail, nil)
	}

	samples, rate, err := audio.DecodeWAV(bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "synthesis", "tts_api", "malformed audio response", err)
	}
	return audio.Resample(samples, rate, e.sampleRate), nil
}
