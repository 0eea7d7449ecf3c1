package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/scwf/open-dubbing/internal/config"
	"github.com/scwf/open-dubbing/internal/dubbing"
	"github.com/scwf/open-dubbing/internal/logging"
	"github.com/scwf/open-dubbing/internal/server"
	"github.com/scwf/open-dubbing/internal/task"
	"github.com/scwf/open-dubbing/internal/testsupport"
)

type instantEngine struct{}

func (instantEngine) Name() string { return "stub" }

func (instantEngine) Synthesize(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, 100), nil
}

type slowEngine struct{ delay time.Duration }

func (e slowEngine) Name() string { return "slow" }

func (e slowEngine) Synthesize(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(e.delay):
		return make([]float32, 100), nil
	}
}

type passStretcher struct{}

func (passStretcher) Stretch(ctx context.Context, samples []float32, sampleRate int, ratio float64) ([]float32, error) {
	out := make([]float32, int(math.Round(float64(len(samples))/ratio)))
	copy(out, samples)
	return out, nil
}

const sampleSRT = `1
00:00:00,000 --> 00:00:01,000
hello there

2
00:00:02,000 --> 00:00:03,000
general kenobi
`

func startServer(t *testing.T, cfg *config.Config, store *task.Store, orc *dubbing.Orchestrator) *server.Server {
	t.Helper()
	srv, err := server.New(cfg, store, orc, logging.NewNop())
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("server.Start: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv
}

func setup(t *testing.T, engine interface {
	Name() string
	Synthesize(context.Context, string) ([]float32, error)
}) (*config.Config, *task.Store, *server.Server) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Audio.SampleRate = 1000
	store := testsupport.MustOpenStore(t, cfg)
	orc, err := dubbing.New(cfg, engine, nil, passStretcher{}, logging.NewNop())
	if err != nil {
		t.Fatalf("dubbing.New: %v", err)
	}
	srv := startServer(t, cfg, store, orc)
	return cfg, store, srv
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeTask(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func waitForStatus(t *testing.T, base, id string, want task.Status) map[string]any {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/api/dubbing/status/" + id)
		if err != nil {
			t.Fatalf("GET status: %v", err)
		}
		got := decodeTask(t, resp)
		if got["status"] == string(want) {
			return got
		}
		if task.Status(got["status"].(string)).IsTerminal() {
			t.Fatalf("task reached %v while waiting for %s", got["status"], want)
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("task %s never reached %s", id, want)
	return nil
}

func TestSubmitAndComplete(t *testing.T) {
	cfg, _, srv := setup(t, instantEngine{})
	base := "http://" + srv.Addr()

	srt := filepath.Join(t.TempDir(), "in.srt")
	testsupport.WriteText(t, srt, sampleSRT)

	resp := postJSON(t, base+"/api/dubbing", map[string]string{
		"subtitle_path": srt,
		"output_path":   filepath.Join(cfg.Paths.OutputDir, "out.wav"),
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit status = %d", resp.StatusCode)
	}
	created := decodeTask(t, resp)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("no id in response: %v", created)
	}

	final := waitForStatus(t, base, id, task.StatusCompleted)
	if final["cue_count"].(float64) != 2 {
		t.Fatalf("cue_count = %v", final["cue_count"])
	}
	if final["result_path"].(string) == "" {
		t.Fatal("result_path missing")
	}
}

func TestSubmitValidation(t *testing.T) {
	_, _, srv := setup(t, instantEngine{})
	base := "http://" + srv.Addr()

	resp := postJSON(t, base+"/api/dubbing", map[string]string{"subtitle_path": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty path status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, base+"/api/dubbing", map[string]string{"subtitle_path": "/missing/file.srt"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing file status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	srt := filepath.Join(t.TempDir(), "in.srt")
	testsupport.WriteText(t, srt, sampleSRT)
	resp = postJSON(t, base+"/api/dubbing", map[string]string{
		"subtitle_path": srt,
		"engine":        "espeak",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown engine status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCancelRunningTask(t *testing.T) {
	_, _, srv := setup(t, slowEngine{delay: 30 * time.Second})
	base := "http://" + srv.Addr()

	srt := filepath.Join(t.TempDir(), "in.srt")
	testsupport.WriteText(t, srt, sampleSRT)

	resp := postJSON(t, base+"/api/dubbing", map[string]string{"subtitle_path": srt})
	created := decodeTask(t, resp)
	id := created["id"].(string)

	waitForStatus(t, base, id, task.StatusProcessing)

	cancelResp := postJSON(t, base+"/api/dubbing/cancel/"+id, nil)
	if cancelResp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d", cancelResp.StatusCode)
	}
	cancelResp.Body.Close()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/api/dubbing/status/" + id)
		if err != nil {
			t.Fatalf("GET status: %v", err)
		}
		got := decodeTask(t, resp)
		if got["status"] == string(task.StatusCancelled) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("task never reached cancelled")
}

func TestCancelFinishedTaskConflicts(t *testing.T) {
	cfg, _, srv := setup(t, instantEngine{})
	base := "http://" + srv.Addr()

	srt := filepath.Join(t.TempDir(), "in.srt")
	testsupport.WriteText(t, srt, sampleSRT)

	resp := postJSON(t, base+"/api/dubbing", map[string]string{
		"subtitle_path": srt,
		"output_path":   filepath.Join(cfg.Paths.OutputDir, "out.wav"),
	})
	id := decodeTask(t, resp)["id"].(string)
	waitForStatus(t, base, id, task.StatusCompleted)

	cancelResp := postJSON(t, base+"/api/dubbing/cancel/"+id, nil)
	if cancelResp.StatusCode != http.StatusConflict {
		t.Fatalf("cancel finished status = %d, want 409", cancelResp.StatusCode)
	}
	cancelResp.Body.Close()

	missing := postJSON(t, base+"/api/dubbing/cancel/nope", nil)
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("cancel missing status = %d, want 404", missing.StatusCode)
	}
	missing.Body.Close()
}

func TestHealthAndOptions(t *testing.T) {
	cfg, _, srv := setup(t, instantEngine{})
	base := "http://" + srv.Addr()

	resp, err := http.Get(base + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	health := decodeTask(t, resp)
	if health["status"] != "ok" {
		t.Fatalf("health payload: %v", health)
	}

	resp, err = http.Get(base + "/api/dubbing/options")
	if err != nil {
		t.Fatalf("GET options: %v", err)
	}
	options := decodeTask(t, resp)
	if options["default_engine"] != cfg.Synthesis.Engine {
		t.Fatalf("options payload: %v", options)
	}
}

func TestSecondInstanceRefused(t *testing.T) {
	cfg, store, _ := setup(t, instantEngine{})

	orc, err := dubbing.New(cfg, instantEngine{}, nil, passStretcher{}, logging.NewNop())
	if err != nil {
		t.Fatalf("dubbing.New: %v", err)
	}
	second, err := server.New(cfg, store, orc, logging.NewNop())
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be refused by the lock")
	}
}

func TestStatusUnknownTask(t *testing.T) {
	_, _, srv := setup(t, instantEngine{})
	base := "http://" + srv.Addr()

	resp, err := http.Get(base + "/api/dubbing/status/" + fmt.Sprint("does-not-exist"))
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}
