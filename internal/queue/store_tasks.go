package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// NewTask enqueues a whole-file subtitle task.
func (s *Store) NewTask(ctx context.Context, sourcePath, title, provider, fingerprint string) (*Task, error) {
	return s.insertTask(ctx, &Task{
		SourcePath:  sourcePath,
		SourceName:  filepath.Base(sourcePath),
		Title:       title,
		Kind:        KindWholeFile,
		Provider:    provider,
		Fingerprint: fingerprint,
	})
}

// NewClipTask enqueues a task covering a sub-range of the source file.
func (s *Store) NewClipTask(ctx context.Context, sourcePath, title, clipName string, clipStart, clipEnd float64, provider, fingerprint string) (*Task, error) {
	if clipEnd <= clipStart {
		return nil, fmt.Errorf("clip range invalid: end %.3f not after start %.3f", clipEnd, clipStart)
	}
	return s.insertTask(ctx, &Task{
		SourcePath:  sourcePath,
		SourceName:  filepath.Base(sourcePath),
		Title:       title,
		Kind:        KindClipRange,
		ClipName:    clipName,
		ClipStart:   &clipStart,
		ClipEnd:     &clipEnd,
		Provider:    provider,
		Fingerprint: fingerprint,
	})
}

func (s *Store) insertTask(ctx context.Context, task *Task) (*Task, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO subtitle_tasks (
            source_path, source_name, title, kind, clip_name, clip_start, clip_end,
            provider, status, created_at, updated_at,
            progress_stage, progress_percent, progress_message, fingerprint
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.SourcePath,
		nullableString(task.SourceName),
		nullableString(task.Title),
		string(task.Kind),
		nullableString(task.ClipName),
		nullableFloat(task.ClipStart),
		nullableFloat(task.ClipEnd),
		task.Provider,
		StatusPending,
		timestamp,
		timestamp,
		nil,
		0.0,
		nil,
		nullableString(task.Fingerprint),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a task by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM subtitle_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// FindByFingerprint returns the first task matching a source fingerprint.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) (*Task, error) {
	if fingerprint == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM subtitle_tasks WHERE fingerprint = ? ORDER BY id LIMIT 1`,
		fingerprint,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by fingerprint: %w", err)
	}
	return task, nil
}

// Update persists changes to an existing task.
func (s *Store) Update(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	task.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE subtitle_tasks
         SET source_path = ?, source_name = ?, title = ?, kind = ?, clip_name = ?,
             clip_start = ?, clip_end = ?, provider = ?, status = ?, error_message = ?,
             updated_at = ?, progress_stage = ?, progress_percent = ?, progress_message = ?,
             output_path = ?, fingerprint = ?, last_heartbeat = ?, needs_review = ?, review_reason = ?
         WHERE id = ?`,
		task.SourcePath,
		nullableString(task.SourceName),
		nullableString(task.Title),
		string(task.Kind),
		nullableString(task.ClipName),
		nullableFloat(task.ClipStart),
		nullableFloat(task.ClipEnd),
		task.Provider,
		task.Status,
		nullableString(task.ErrorMessage),
		task.UpdatedAt.Format(time.RFC3339Nano),
		nullableString(task.ProgressStage),
		task.ProgressPercent,
		nullableString(task.ProgressMessage),
		nullableString(task.OutputPath),
		nullableString(task.Fingerprint),
		nullableTime(task.LastHeartbeat),
		boolToInt(task.NeedsReview),
		nullableString(task.ReviewReason),
		task.ID,
	); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// UpdateProgress persists only the progress fields of a task. Unlike Update
// it leaves status, output, and the heartbeat untouched, so stage handlers
// can report progress concurrently with the heartbeat loop.
func (s *Store) UpdateProgress(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	task.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE subtitle_tasks
         SET progress_stage = ?, progress_percent = ?, progress_message = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(task.ProgressStage),
		task.ProgressPercent,
		nullableString(task.ProgressMessage),
		task.UpdatedAt.Format(time.RFC3339Nano),
		task.ID,
	); err != nil {
		return fmt.Errorf("update task progress: %w", err)
	}
	return nil
}

// TasksByStatus returns tasks matching a status ordered by creation time.
func (s *Store) TasksByStatus(ctx context.Context, status Status) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM subtitle_tasks WHERE status = ? ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// List returns tasks filtered by status set (or all tasks when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + taskColumns + ` FROM subtitle_tasks`
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
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// NextForStatuses returns the oldest task matching any of the provided statuses.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*Task, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}

	query := `SELECT ` + taskColumns + ` FROM subtitle_tasks WHERE status IN (` + placeholders + `) ORDER BY created_at LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, args...)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Remove deletes a task by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM subtitle_tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes only completed tasks from the queue.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM subtitle_tasks WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed tasks from the queue.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM subtitle_tasks WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all tasks from the queue.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM subtitle_tasks`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}
