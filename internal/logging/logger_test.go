package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/scwf/open-dubbing/internal/config"
	"github.com/scwf/open-dubbing/internal/logging"
	"github.com/scwf/open-dubbing/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Format = "console"
	cfg.Logging.Level = "debug"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	logger.Info("dubbing started", logging.String(logging.FieldComponent, "pipeline"), logging.Int(logging.FieldCueIndex, 3))

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "opendub.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, "pipeline: dubbing started") {
		t.Fatalf("expected component-prefixed message, got %q", line)
	}
	if !strings.Contains(line, "cue_index=3") {
		t.Fatalf("expected cue_index attr, got %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsTaskFields(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Format = "console"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}

	ctx := services.WithTaskID(context.Background(), "task-9")
	ctx = services.WithStage(ctx, "merge")
	logging.WithContext(ctx, logger).Info("assembling track")

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "opendub.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, "task_id=task-9") {
		t.Fatalf("expected task_id attr, got %q", line)
	}
	if !strings.Contains(line, "stage=merge") {
		t.Fatalf("expected stage attr, got %q", line)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	logger.Error("should not panic", logging.Error(nil))
}
