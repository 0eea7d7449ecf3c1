package polly

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/scwf/open-dubbing/internal/audio"
	"github.com/scwf/open-dubbing/internal/config"
	"github.com/scwf/open-dubbing/internal/services"
)

// Polly's PCM output is fixed to 16 kHz signed 16-bit mono.
const pollyPCMRate = 16000

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Engine synthesizes speech through Amazon Polly. The AWS client is resolved
// lazily so construction never blocks on credential discovery.
type Engine struct {
	mu         sync.Mutex
	client     synthClient
	region     string
	voiceID    string
	engineMode string
	sampleRate int
	timeout    time.Duration
}

// New constructs a Polly engine from configuration.
func New(cfg *config.Config) (*Engine, error) {
	return NewWithClient(cfg, nil)
}

// NewWithClient injects a pre-built client (used by tests).
func NewWithClient(cfg *config.Config, client synthClient) (*Engine, error) {
	region := strings.TrimSpace(cfg.Polly.Region)
	if region == "" {
		return nil, fmt.Errorf("%w: polly: region is required", services.ErrConfiguration)
	}
	voice := strings.TrimSpace(cfg.Polly.VoiceID)
	if voice == "" {
		return nil, fmt.Errorf("%w: polly: voice_id is required", services.ErrConfiguration)
	}
	timeout := 30 * time.Second
	if cfg.Polly.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Polly.TimeoutSeconds) * time.Second
	}
	return &Engine{
		client:     client,
		region:     region,
		voiceID:    voice,
		engineMode: strings.TrimSpace(cfg.Polly.Engine),
		sampleRate: cfg.Audio.SampleRate,
		timeout:    timeout,
	}, nil
}

// Name implements synthesis.Engine.
func (e *Engine) Name() string { return "polly" }

// Synthesize implements synthesis.Engine. Polly returns 16 kHz PCM which is
// upsampled to the pipeline's global rate.
func (e *Engine) Synthesize(ctx context.Context, text string) ([]float32, error) {
	client, err := e.resolveClient(ctx)
	if err != nil {
		return nil, err
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(e.engineMode, "neural") {
		engine = pollytypes.EngineNeural
	}
	pcmRate := fmt.Sprintf("%d", pollyPCMRate)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	output, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatPcm,
		SampleRate:   &pcmRate,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(e.voiceID),
	})
	if err != nil {
		return nil, normalizeError(err)
	}
	if output == nil || output.AudioStream == nil {
		return nil, services.Wrap(services.ErrExternalTool, "synthesis", "polly", "empty audio stream", nil)
	}
	defer output.AudioStream.Close()

	raw, err := io.ReadAll(output.AudioStream)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "synthesis", "polly", "read audio stream", err)
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	}
	return audio.Resample(samples, pollyPCMRate, e.sampleRate), nil
}

func (e *Engine) resolveClient(ctx context.Context) (synthClient, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		return e.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(e.region))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "synthesis", "polly", "load aws config", err)
	}
	e.client = polly.NewFromConfig(awsCfg)
	return e.client, nil
}

// normalizeError maps AWS failures onto the shared sentinel errors so retry
// logic upstream can tell throttling from hard client errors.
func normalizeError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "synthesis", "polly", "request timed out", err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException":
			return services.Wrap(services.ErrTransient, "synthesis", "polly", "throttled", err)
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException",
			"MarksNotSupportedForFormatException", "InvalidSampleRateException":
			return services.Wrap(services.ErrValidation, "synthesis", "polly", apiErr.ErrorCode(), err)
		default:
			return services.Wrap(services.ErrExternalTool, "synthesis", "polly", apiErr.ErrorCode(), err)
		}
	}
	return services.Wrap(services.ErrExternalTool, "synthesis", "polly", "transport error", err)
}
