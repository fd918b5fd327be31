package queue

import (
	"context"
	"fmt"
	"time"
)

// ResetStuckProcessing returns tasks stranded in the processing state to
// pending. Called at daemon startup so work interrupted by a crash or an
// unclean shutdown becomes eligible for pickup again.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	result, err := s.execWithRetry(ctx, `
		UPDATE subtitle_tasks
		SET status = ?,
			progress_stage = 'reset from stuck processing',
			progress_percent = 0,
			progress_message = '',
			last_heartbeat = NULL,
			updated_at = ?
		WHERE status = ?`,
		string(StatusPending), now, string(StatusProcessing))
	if err != nil {
		return 0, fmt.Errorf("reset stuck processing: %w", err)
	}
	return result.RowsAffected()
}

// UpdateHeartbeat records liveness for a task currently being processed.
func (s *Store) UpdateHeartbeat(ctx context.Context, taskID int64) error {
	now := time.Now().UTC()
	stamp := now.Format(time.RFC3339Nano)
	err := s.execWithoutResultRetry(ctx, `
		UPDATE subtitle_tasks
		SET last_heartbeat = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		stamp, stamp, taskID, string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("update heartbeat for task %d: %w", taskID, err)
	}
	return nil
}

// ReclaimStaleProcessing returns processing tasks whose heartbeat is older
// than cutoff to pending. Tasks without a heartbeat are left alone; they
// were claimed moments ago and have not reported yet.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	result, err := s.execWithRetry(ctx, `
		UPDATE subtitle_tasks
		SET status = ?,
			progress_stage = 'reclaimed from stale processing',
			progress_percent = 0,
			progress_message = '',
			last_heartbeat = NULL,
			updated_at = ?
		WHERE status = ?
		  AND last_heartbeat IS NOT NULL
		  AND last_heartbeat < ?`,
		string(StatusPending), now, string(StatusProcessing),
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("reclaim stale processing: %w", err)
	}
	return result.RowsAffected()
}

// Retry moves failed and cancelled tasks back to pending. With no ids every
// failed task is retried; with ids only those tasks are touched, and each
// must currently be failed or cancelled.
func (s *Store) Retry(ctx context.Context, ids ...int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	if len(ids) == 0 {
		result, err := s.execWithRetry(ctx, `
			UPDATE subtitle_tasks
			SET status = ?,
				error_message = NULL,
				progress_stage = 'retry requested',
				progress_percent = 0,
				progress_message = '',
				last_heartbeat = NULL,
				updated_at = ?
			WHERE status = ?`,
			string(StatusPending), now, string(StatusFailed))
		if err != nil {
			return 0, fmt.Errorf("retry failed tasks: %w", err)
		}
		return result.RowsAffected()
	}

	args := make([]any, 0, len(ids)+2)
	args = append(args, string(StatusPending), now)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `
		UPDATE subtitle_tasks
		SET status = ?,
			error_message = NULL,
			progress_stage = 'retry requested',
			progress_percent = 0,
			progress_message = '',
			last_heartbeat = NULL,
			updated_at = ?
		WHERE id IN (` + makePlaceholders(len(ids)) + `)
		  AND status IN ('` + string(StatusFailed) + `', '` + string(StatusCancelled) + `')`
	result, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry tasks: %w", err)
	}
	return result.RowsAffected()
}
