package main

import (
	"context"
	"testing"

	"github.com/scwf/open-dubbing/internal/task"
)

func TestTasksLifecycleCommands(t *testing.T) {
	configPath, cfg := writeCLIConfig(t)

	store, err := task.Open(cfg)
	if err != nil {
		t.Fatalf("task.Open: %v", err)
	}
	created, err := store.NewTask(context.Background(), "/tmp/input.srt", "", "tts_api", "")
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	store.Close()

	out, _, err := runCLI(t, configPath, "tasks", "list")
	if err != nil {
		t.Fatalf("tasks list: %v", err)
	}
	requireContains(t, out, created.ID)
	requireContains(t, out, "queued")

	out, _, err = runCLI(t, configPath, "tasks", "status", created.ID)
	if err != nil {
		t.Fatalf("tasks status: %v", err)
	}
	requireContains(t, out, "Status:    queued")
	requireContains(t, out, "input.srt")

	out, _, err = runCLI(t, configPath, "tasks", "cancel", created.ID)
	if err != nil {
		t.Fatalf("tasks cancel: %v", err)
	}
	requireContains(t, out, "Cancelled task")

	// A second cancel hits a terminal task and must fail.
	if _, _, err := runCLI(t, configPath, "tasks", "cancel", created.ID); err == nil {
		t.Fatal("expected error cancelling a finished task")
	}

	out, _, err = runCLI(t, configPath, "tasks", "list", "--status", "cancelled")
	if err != nil {
		t.Fatalf("tasks list --status: %v", err)
	}
	requireContains(t, out, created.ID)

	if _, _, err := runCLI(t, configPath, "tasks", "list", "--status", "bogus"); err == nil {
		t.Fatal("expected error for unknown status filter")
	}

	out, _, err = runCLI(t, configPath, "tasks", "clear")
	if err != nil {
		t.Fatalf("tasks clear: %v", err)
	}
	requireContains(t, out, "Removed 1 tasks")

	out, _, err = runCLI(t, configPath, "tasks", "list")
	if err != nil {
		t.Fatalf("tasks list after clear: %v", err)
	}
	requireContains(t, out, "No tasks")
}
