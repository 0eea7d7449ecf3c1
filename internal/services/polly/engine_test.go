package polly

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	pollysdk "github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/smithy-go"

	"github.com/scwf/open-dubbing/internal/services"
	"github.com/scwf/open-dubbing/internal/testsupport"
)

type fakePollyClient struct {
	out *pollysdk.SynthesizeSpeechOutput
	err error

	captured *pollysdk.SynthesizeSpeechInput
}

func (f *fakePollyClient) SynthesizeSpeech(ctx context.Context, params *pollysdk.SynthesizeSpeechInput, optFns ...func(*pollysdk.Options)) (*pollysdk.SynthesizeSpeechOutput, error) {
	f.captured = params
	return f.out, f.err
}

type fakeAPIError struct {
	code string
	msg  string
}

func (e fakeAPIError) Error() string                 { return e.code + ": " + e.msg }
func (e fakeAPIError) ErrorCode() string             { return e.code }
func (e fakeAPIError) ErrorMessage() string          { return e.msg }
func (e fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func pcmStream(samples []int16) io.ReadCloser {
	buf := new(bytes.Buffer)
	for _, s := range samples {
		_ = binary.Write(buf, binary.LittleEndian, s)
	}
	return io.NopCloser(buf)
}

func TestSynthesizeDecodesPCM(t *testing.T) {
	client := &fakePollyClient{
		out: &pollysdk.SynthesizeSpeechOutput{
			// 160 samples of 16 kHz PCM.
			AudioStream: pcmStream(make([]int16, 160)),
		},
	}
	cfg := testsupport.NewConfig(t)
	cfg.Polly.VoiceID = "Zhiyu"
	cfg.Polly.Engine = "neural"
	engine, err := NewWithClient(cfg, client)
	if err != nil {
		t.Fatalf("NewWithClient failed: %v", err)
	}
	if engine.Name() != "polly" {
		t.Fatalf("name = %q", engine.Name())
	}

	samples, err := engine.Synthesize(context.Background(), "你好")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	// 160 samples at 16 kHz resample to 441 at 44.1 kHz.
	if len(samples) != 441 {
		t.Fatalf("got %d samples, want 441 after resampling", len(samples))
	}
	if client.captured == nil || string(client.captured.VoiceId) != "Zhiyu" {
		t.Fatalf("unexpected request: %#v", client.captured)
	}
	if client.captured.SampleRate == nil || *client.captured.SampleRate != "16000" {
		t.Fatalf("sample rate not pinned to pcm: %#v", client.captured.SampleRate)
	}
}

func TestSynthesizeErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{name: "timeout", err: context.DeadlineExceeded, expected: services.ErrTimeout},
		{name: "throttled", err: fakeAPIError{code: "TooManyRequestsException", msg: "rate"}, expected: services.ErrTransient},
		{name: "client error", err: fakeAPIError{code: "TextLengthExceededException", msg: "too long"}, expected: services.ErrValidation},
		{name: "server error", err: fakeAPIError{code: "ServiceFailureException", msg: "boom"}, expected: services.ErrExternalTool},
		{name: "transport", err: errors.New("tcp reset"), expected: services.ErrExternalTool},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			engine, err := NewWithClient(cfg, &fakePollyClient{err: tc.err})
			if err != nil {
				t.Fatalf("NewWithClient failed: %v", err)
			}
			_, err = engine.Synthesize(context.Background(), "text")
			if !errors.Is(err, tc.expected) {
				t.Fatalf("expected %v, got %v", tc.expected, err)
			}
		})
	}
}

func TestSynthesizeEmptyStream(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	engine, err := NewWithClient(cfg, &fakePollyClient{out: &pollysdk.SynthesizeSpeechOutput{}})
	if err != nil {
		t.Fatalf("NewWithClient failed: %v", err)
	}
	if _, err := engine.Synthesize(context.Background(), "text"); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Polly.Region = ""
	if _, err := NewWithClient(cfg, &fakePollyClient{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}

	cfg = testsupport.NewConfig(t)
	cfg.Polly.VoiceID = "  "
	if _, err := NewWithClient(cfg, &fakePollyClient{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
