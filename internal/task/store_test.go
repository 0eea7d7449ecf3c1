package task_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/scwf/open-dubbing/internal/task"
	"github.com/scwf/open-dubbing/internal/testsupport"
)

func TestOpenInitializesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	created, err := store.NewTask(ctx, "/in/movie.srt", "/out/movie.wav", "tts_api", "")
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected task ID to be assigned")
	}
	if created.Status != task.StatusQueued {
		t.Fatalf("new task status = %s, want queued", created.Status)
	}

	fetched, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.SubtitlePath != "/in/movie.srt" {
		t.Fatalf("unexpected fetched task: %#v", fetched)
	}
	if fetched.Engine != "tts_api" {
		t.Fatalf("engine = %q, want tts_api", fetched.Engine)
	}
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	fetched, err := store.GetByID(context.Background(), "no-such-task")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched != nil {
		t.Fatalf("expected nil for missing task, got %#v", fetched)
	}
}

func TestUpdatePersistsProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewTask(t, store, "/in/a.srt", "/out/a.wav")
	item.Status = task.StatusProcessing
	item.SetProgress("synthesis", "Synthesizing speech", 50)
	item.CueCount = 42
	item.EscalatedCues = 3
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != task.StatusProcessing || fetched.ProgressStage != "synthesis" {
		t.Fatalf("unexpected task after update: %#v", fetched)
	}
	if fetched.ProgressPercent != 50 || fetched.CueCount != 42 || fetched.EscalatedCues != 3 {
		t.Fatalf("progress fields not persisted: %#v", fetched)
	}
}

func TestUpdateIgnoresTerminalTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewTask(t, store, "/in/a.srt", "/out/a.wav")
	item.SetCompleted("/out/a.wav")
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update to completed failed: %v", err)
	}

	item.Status = task.StatusProcessing
	item.SetProgress("merge", "should not apply", 75)
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update after terminal failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != task.StatusCompleted {
		t.Fatalf("terminal task was mutated: %#v", fetched)
	}
	if fetched.ResultPath != "/out/a.wav" {
		t.Fatalf("result path lost: %#v", fetched)
	}
}

func TestCancelTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewTask(t, store, "/in/a.srt", "/out/a.wav")

	cancelled, err := store.Cancel(ctx, item.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if !cancelled {
		t.Fatal("expected queued task to cancel")
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != task.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", fetched.Status)
	}
	if fetched.ErrorMessage != task.UserCancelReason {
		t.Fatalf("error message = %q, want %q", fetched.ErrorMessage, task.UserCancelReason)
	}

	// Cancelling again is idempotent.
	cancelled, err = store.Cancel(ctx, item.ID)
	if err != nil {
		t.Fatalf("second Cancel failed: %v", err)
	}
	if !cancelled {
		t.Fatal("expected repeat cancel to report success")
	}
}

func TestCancelCompletedTaskRefused(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewTask(t, store, "/in/a.srt", "/out/a.wav")
	item.SetCompleted("/out/a.wav")
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	cancelled, err := store.Cancel(ctx, item.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled {
		t.Fatal("completed task should not cancel")
	}

	if _, err := store.Cancel(ctx, "no-such-task"); err == nil {
		t.Fatal("expected error cancelling unknown task")
	}
}

func TestCancelQueuedBulk(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		testsupport.NewTask(t, store, fmt.Sprintf("/in/%d.srt", i), fmt.Sprintf("/out/%d.wav", i))
	}
	active := testsupport.NewTask(t, store, "/in/active.srt", "/out/active.wav")
	active.Status = task.StatusProcessing
	if err := store.Update(ctx, active); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	count, err := store.CancelQueued(ctx)
	if err != nil {
		t.Fatalf("CancelQueued failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("cancelled %d tasks, want 3", count)
	}

	fetched, err := store.GetByID(ctx, active.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != task.StatusProcessing {
		t.Fatalf("processing task touched by CancelQueued: %#v", fetched)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	stuck := testsupport.NewTask(t, store, "/in/stuck.srt", "/out/stuck.wav")
	stuck.Status = task.StatusProcessing
	stuck.SetProgress("synthesis", "mid-flight", 40)
	if err := store.Update(ctx, stuck); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	done := testsupport.NewTask(t, store, "/in/done.srt", "/out/done.wav")
	done.SetCompleted("/out/done.wav")
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	count, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("reset %d tasks, want 1", count)
	}

	fetched, err := store.GetByID(ctx, stuck.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != task.StatusQueued {
		t.Fatalf("stuck task status = %s, want queued", fetched.Status)
	}
}

func TestListFiltersAndNextQueued(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first := testsupport.NewTask(t, store, "/in/1.srt", "/out/1.wav")
	second := testsupport.NewTask(t, store, "/in/2.srt", "/out/2.wav")
	second.SetFailed("synthesis exploded")
	if err := store.Update(ctx, second); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List returned %d tasks, want 2", len(all))
	}

	failed, err := store.List(ctx, task.StatusFailed)
	if err != nil {
		t.Fatalf("List(failed) failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != second.ID {
		t.Fatalf("unexpected failed list: %#v", failed)
	}
	if failed[0].ErrorMessage != "synthesis exploded" {
		t.Fatalf("error message = %q", failed[0].ErrorMessage)
	}

	next, err := store.NextQueued(ctx)
	if err != nil {
		t.Fatalf("NextQueued failed: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("unexpected next queued task: %#v", next)
	}
}

func TestStatsAndClearTerminal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.NewTask(t, store, "/in/q.srt", "/out/q.wav")
	done := testsupport.NewTask(t, store, "/in/done.srt", "/out/done.wav")
	done.SetCompleted("/out/done.wav")
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[task.StatusQueued] != 1 || stats[task.StatusCompleted] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}

	removed, err := store.ClearTerminal(ctx)
	if err != nil {
		t.Fatalf("ClearTerminal failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("ClearTerminal removed %d, want 1", removed)
	}

	remaining, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Status != task.StatusQueued {
		t.Fatalf("unexpected remaining tasks: %#v", remaining)
	}
}

func TestRemove(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewTask(t, store, "/in/a.srt", "/out/a.wav")

	removed, err := store.Remove(ctx, item.ID)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !removed {
		t.Fatal("expected Remove to delete task")
	}

	removed, err = store.Remove(ctx, item.ID)
	if err != nil {
		t.Fatalf("second Remove failed: %v", err)
	}
	if removed {
		t.Fatal("expected second Remove to find nothing")
	}
}
