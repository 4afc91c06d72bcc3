package database

import (
	"context"
	"fmt"
	"time"

	"bookpoint/internal/models"
)

const syncColumns = `id, target, task_type, booking_id, payload, status, retry_count, last_error,
	created_at, processed_at, next_retry_at`

func (db *DB) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	if task.Status == "" {
		task.Status = models.SyncStatusPending
	}
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, `
		INSERT INTO sync_queue (target, task_type, booking_id, payload, status, retry_count, last_error, created_at, next_retry_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.Target,
		task.TaskType,
		task.BookingID,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		now,
		utcPtr(task.NextRetryAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create sync task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now

	return nil
}

// GetPendingSyncTasks returns due pending and retry tasks, oldest first.
func (db *DB) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+syncColumns+` FROM sync_queue
		WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at, id
		LIMIT ?`,
		models.SyncStatusPending, models.SyncStatusRetry, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending sync tasks: %w", err)
	}
	defer rows.Close()
	return scanSyncTasks(rows)
}

// UpdateSyncTaskStatus records the outcome of one delivery attempt.
func (db *DB) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	now := time.Now().UTC()
	var lastError *string
	if errMsg != "" {
		lastError = &errMsg
	}

	var err error
	switch status {
	case models.SyncStatusRetry:
		_, err = db.ExecContext(ctx, `
			UPDATE sync_queue SET status = ?, retry_count = retry_count + 1, last_error = ?, next_retry_at = ?
			WHERE id = ?`, status, lastError, utcPtr(nextRetryAt), id)
	case models.SyncStatusCompleted:
		_, err = db.ExecContext(ctx, `
			UPDATE sync_queue SET status = ?, last_error = NULL, processed_at = ?, next_retry_at = NULL
			WHERE id = ?`, status, now, id)
	default:
		_, err = db.ExecContext(ctx, `
			UPDATE sync_queue SET status = ?, last_error = ?, processed_at = ?
			WHERE id = ?`, status, lastError, now, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update sync task %d: %w", id, err)
	}
	return nil
}

// GetFailedSyncTasks lists the dead-letter tasks.
func (db *DB) GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+syncColumns+` FROM sync_queue WHERE status = ? ORDER BY id`, models.SyncStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed sync tasks: %w", err)
	}
	defer rows.Close()
	return scanSyncTasks(rows)
}

// RequeueFailedSyncTasks moves dead-letter tasks back to pending.
func (db *DB) RequeueFailedSyncTasks(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE sync_queue SET status = ?, retry_count = 0, next_retry_at = NULL, processed_at = NULL
		WHERE status = ?`, models.SyncStatusPending, models.SyncStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue sync tasks: %w", err)
	}
	return res.RowsAffected()
}

func scanSyncTasks(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]models.SyncTask, error) {
	var tasks []models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		if err := rows.Scan(&t.ID, &t.Target, &t.TaskType, &t.BookingID, &t.Payload, &t.Status,
			&t.RetryCount, &t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// next_retry_at is compared as text, so every stored time is UTC.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
