package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/scwf/open-dubbing/internal/config"
)

// Store manages task persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the task database under the configured
// state directory and verifies the schema version.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.StateDir, "tasks.db"))
}

// OpenPath opens the task database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// NewTask inserts a queued task for the given subtitle file.
func (s *Store) NewTask(ctx context.Context, subtitlePath, outputPath, engine, voice string) (*Task, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO dubbing_tasks (
            id, subtitle_path, output_path, engine, voice, status,
            created_at, updated_at, progress_stage, progress_percent, progress_message
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		nullableString(subtitlePath),
		nullableString(outputPath),
		nullableString(engine),
		nullableString(voice),
		StatusQueued,
		timestamp,
		timestamp,
		"Queued",
		0.0,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a task by identifier. A missing task returns (nil, nil).
func (s *Store) GetByID(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM dubbing_tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// Update persists changes to an existing task. Terminal tasks are left
// untouched so a completed or cancelled run can never be rewritten by a
// late writer.
func (s *Store) Update(ctx context.Context, t *Task) error {
	if t == nil {
		return errors.New("task is nil")
	}
	t.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE dubbing_tasks
         SET subtitle_path = ?, output_path = ?, engine = ?, voice = ?, status = ?,
             error_message = ?, updated_at = ?, progress_stage = ?, progress_percent = ?,
             progress_message = ?, cue_count = ?, escalated_cues = ?, result_path = ?
         WHERE id = ? AND status NOT IN (?, ?, ?)`,
		nullableString(t.SubtitlePath),
		nullableString(t.OutputPath),
		nullableString(t.Engine),
		nullableString(t.Voice),
		t.Status,
		nullableString(t.ErrorMessage),
		t.UpdatedAt.Format(time.RFC3339Nano),
		nullableString(t.ProgressStage),
		t.ProgressPercent,
		nullableString(t.ProgressMessage),
		t.CueCount,
		t.EscalatedCues,
		nullableString(t.ResultPath),
		t.ID,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// Cancel moves a non-terminal task to cancelled. It is idempotent: cancelling
// an already-cancelled task reports success without touching the row, while
// cancelling a completed or failed task reports false.
func (s *Store) Cancel(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE dubbing_tasks
         SET status = ?, error_message = ?, progress_stage = 'Cancelled',
             progress_message = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusCancelled,
		UserCancelReason,
		UserCancelReason,
		now,
		id,
		StatusQueued,
		StatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("cancel task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, fmt.Errorf("task %s: %w", id, sql.ErrNoRows)
	}
	return existing.Status == StatusCancelled, nil
}

// CancelQueued cancels every queued task, used on server shutdown.
func (s *Store) CancelQueued(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE dubbing_tasks
         SET status = ?, error_message = ?, progress_stage = 'Cancelled',
             progress_message = ?, updated_at = ?
         WHERE status = ?`,
		StatusCancelled,
		ServerStopReason,
		ServerStopReason,
		now,
		StatusQueued,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel queued tasks: %w", err)
	}
	return res.RowsAffected()
}

// ResetStuckProcessing returns tasks stranded in processing back to queued,
// typically after an unclean shutdown.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE dubbing_tasks
         SET status = ?, progress_stage = 'Requeued after restart',
             progress_percent = 0, progress_message = NULL, updated_at = ?
         WHERE status = ?`,
		StatusQueued,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck tasks: %w", err)
	}
	return res.RowsAffected()
}

// List returns tasks filtered by status set (or all tasks when no status is
// provided), oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + taskColumns + ` FROM dubbing_tasks`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// NextQueued returns the oldest queued task, or nil when none is waiting.
func (s *Store) NextQueued(ctx context.Context) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM dubbing_tasks WHERE status = ? ORDER BY created_at LIMIT 1`, StatusQueued)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Stats returns a count of tasks grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM dubbing_tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Remove deletes a task by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dubbing_tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearTerminal removes completed, failed, and cancelled tasks.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM dubbing_tasks WHERE status IN (?, ?, ?)`,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
	)
	if err != nil {
		return 0, fmt.Errorf("clear terminal tasks: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all tasks.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dubbing_tasks`)
	if err != nil {
		return 0, fmt.Errorf("clear tasks: %w", err)
	}
	return res.RowsAffected()
}

const taskColumns = "id, subtitle_path, output_path, engine, voice, status, error_message, created_at, updated_at, progress_stage, progress_percent, progress_message, cue_count, escalated_cues, result_path"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id              string
		subtitlePath    sql.NullString
		outputPath      sql.NullString
		engine          sql.NullString
		voice           sql.NullString
		statusStr       string
		errorMessage    sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		progressStage   sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		cueCount        sql.NullInt64
		escalatedCues   sql.NullInt64
		resultPath      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&subtitlePath,
		&outputPath,
		&engine,
		&voice,
		&statusStr,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&cueCount,
		&escalatedCues,
		&resultPath,
	); err != nil {
		return nil, err
	}

	t := &Task{
		ID:              id,
		SubtitlePath:    subtitlePath.String,
		OutputPath:      outputPath.String,
		Engine:          engine.String,
		Voice:           voice.String,
		Status:          Status(statusStr),
		ErrorMessage:    errorMessage.String,
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
		CueCount:        int(cueCount.Int64),
		EscalatedCues:   int(escalatedCues.Int64),
		ResultPath:      resultPath.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		t.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		t.UpdatedAt = updated
	}
	return t, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
