package task

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a dubbing task.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// UserCancelReason is the message recorded when a user explicitly cancels a task.
const UserCancelReason = "Cancelled by user"

// ServerStopReason is the message recorded when queued tasks are cancelled
// because the server shut down before picking them up.
const ServerStopReason = "Server stopped"

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// Task represents a dubbing run persisted in SQLite.
type Task struct {
	ID              string
	SubtitlePath    string
	OutputPath      string
	Engine          string
	Voice           string
	Status          Status
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	CueCount        int
	EscalatedCues   int
	ResultPath      string
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// IsTerminal reports whether the task has reached a final state.
func (t Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// SetProgress updates all three progress fields atomically.
// Use this instead of setting ProgressStage, ProgressPercent, and
// ProgressMessage individually.
func (t *Task) SetProgress(stage, message string, percent float64) {
	t.ProgressStage = stage
	t.ProgressMessage = message
	t.ProgressPercent = percent
}

// SetFailed marks the task as failed with the given error message.
func (t *Task) SetFailed(message string) {
	t.Status = StatusFailed
	t.ErrorMessage = message
	t.ProgressStage = "Failed"
	t.ProgressMessage = message
}

// SetCompleted marks the task as completed and records the produced track.
func (t *Task) SetCompleted(resultPath string) {
	t.Status = StatusCompleted
	t.ResultPath = resultPath
	t.ErrorMessage = ""
	t.SetProgress("Completed", "Dubbing completed", 100)
}
