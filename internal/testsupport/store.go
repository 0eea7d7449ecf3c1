package testsupport

import (
	"context"
	"testing"

	"github.com/scwf/open-dubbing/internal/config"
	"github.com/scwf/open-dubbing/internal/task"
)

// MustOpenStore opens a task.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *task.Store {
	t.Helper()

	store, err := task.Open(cfg)
	if err != nil {
		t.Fatalf("task.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTask creates a queued dubbing task for tests using the provided store.
func NewTask(t testing.TB, store *task.Store, subtitlePath, outputPath string) *task.Task {
	t.Helper()

	created, err := store.NewTask(context.Background(), subtitlePath, outputPath, "tts_api", "")
	if err != nil {
		t.Fatalf("store.NewTask: %v", err)
	}
	return created
}
