package postgres

import (
	"context"
	"fmt"
	"time"

	"bookpoint/internal/models"
)

const syncColumns = `id, target, task_type, booking_id, payload, status, retry_count, last_error,
	created_at, processed_at, next_retry_at`

func (s *Store) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	if task.Status == "" {
		task.Status = models.SyncStatusPending
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sync_queue (target, task_type, booking_id, payload, status, retry_count, last_error, next_retry_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		task.Target, task.TaskType, task.BookingID, task.Payload, task.Status,
		task.RetryCount, task.LastError, task.NextRetryAt,
	).Scan(&task.ID, &task.CreatedAt)
	if err != nil {
		return fmt.Errorf("create sync task: %w", err)
	}
	return nil
}

// GetPendingSyncTasks returns due pending and retry tasks, oldest first.
func (s *Store) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+syncColumns+` FROM sync_queue
		WHERE status IN ($1, $2) AND (next_retry_at IS NULL OR next_retry_at <= now())
		ORDER BY created_at, id
		LIMIT $3`,
		models.SyncStatusPending, models.SyncStatusRetry, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		if err := rows.Scan(&t.ID, &t.Target, &t.TaskType, &t.BookingID, &t.Payload, &t.Status,
			&t.RetryCount, &t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt); err != nil {
			return nil, fmt.Errorf("scan sync task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Store) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var lastError *string
	if errMsg != "" {
		lastError = &errMsg
	}

	var err error
	switch status {
	case models.SyncStatusRetry:
		_, err = s.db.ExecContext(ctx, `
			UPDATE sync_queue SET status = $1, retry_count = retry_count + 1, last_error = $2, next_retry_at = $3
			WHERE id = $4`, status, lastError, nextRetryAt, id)
	case models.SyncStatusCompleted:
		_, err = s.db.ExecContext(ctx, `
			UPDATE sync_queue SET status = $1, last_error = NULL, processed_at = now(), next_retry_at = NULL
			WHERE id = $2`, status, id)
	default:
		_, err = s.db.ExecContext(ctx, `
			UPDATE sync_queue SET status = $1, last_error = $2, processed_at = now()
			WHERE id = $3`, status, lastError, id)
	}
	if err != nil {
		return fmt.Errorf("update sync task %d: %w", id, err)
	}
	return nil
}
