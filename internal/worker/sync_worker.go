// Package worker delivers committed booking changes to downstream sinks
// through the durable sync_queue outbox.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookpoint/internal/metrics"
	"bookpoint/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	notifyKey     = "bookpoint:sync:notify"
	deadLetterKey = "bookpoint:sync:deadletter"
)

// SyncQueue is the outbox table. Both stores implement it.
type SyncQueue interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// Sink applies one task to a downstream system. Name is stored as the task target.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, taskType string, p Payload) error
}

// Payload is persisted in SyncTask.Payload as JSON.
type Payload struct {
	BookingID int64           `json:"booking_id"`
	Booking   *models.Booking `json:"booking,omitempty"`
	Status    string          `json:"status,omitempty"`
}

// SyncWorker fans booking changes out to every registered sink. Rows are the
// source of truth; the local channel and the Redis list only wake the loop up.
type SyncWorker struct {
	queue        SyncQueue
	sinks        map[string]Sink
	order        []string
	redis        *redis.Client
	retryPolicy  RetryPolicy
	wake         chan struct{}
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
	now          func() time.Time
}

// NewSyncWorker builds a worker with sane defaults. redisClient may be nil.
func NewSyncWorker(queue SyncQueue, sinks []Sink, redisClient *redis.Client, retry RetryPolicy, pollInterval time.Duration, logger *zerolog.Logger) *SyncWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	w := &SyncWorker{
		queue:        queue,
		sinks:        make(map[string]Sink, len(sinks)),
		redis:        redisClient,
		retryPolicy:  retry,
		wake:         make(chan struct{}, 1),
		pollInterval: pollInterval,
		batchSize:    20,
		logger:       logger,
		now:          time.Now,
	}
	for _, s := range sinks {
		if s == nil {
			continue
		}
		w.sinks[s.Name()] = s
		w.order = append(w.order, s.Name())
	}
	return w
}

// Targets lists the registered sink names in registration order.
func (w *SyncWorker) Targets() []string {
	return append([]string(nil), w.order...)
}

// EnqueueTask persists one task per sink for the booking change.
func (w *SyncWorker) EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if booking == nil || booking.ID == 0 {
		return errors.New("booking id is required")
	}

	raw, err := json.Marshal(Payload{BookingID: booking.ID, Booking: booking, Status: booking.Status})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	for _, target := range w.order {
		task := models.SyncTask{
			Target:    target,
			TaskType:  taskType,
			BookingID: booking.ID,
			Payload:   string(raw),
			Status:    models.SyncStatusPending,
		}
		if err := w.queue.CreateSyncTask(ctx, &task); err != nil {
			return fmt.Errorf("persist sync task for %s: %w", target, err)
		}
		w.notify(ctx, task.ID)
	}
	return nil
}

func (w *SyncWorker) notify(ctx context.Context, id int64) {
	if w.redis != nil {
		if err := w.redis.LPush(ctx, notifyKey, id).Err(); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", id).Msg("redis notify failed, falling back to local wake-up")
		} else {
			return
		}
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Start launches the main loop; it stops when ctx is done.
func (w *SyncWorker) Start(ctx context.Context) {
	w.logger.Info().Strs("targets", w.order).Msg("sync worker started")
	defer w.logger.Info().Msg("sync worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := w.ProcessPending(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending sync tasks")
		}
		if n > 0 && err == nil {
			continue
		}
		w.waitForWork(ctx)
	}
}

// ProcessPending handles one batch of due tasks and returns how many it saw.
func (w *SyncWorker) ProcessPending(ctx context.Context) (int, error) {
	tasks, err := w.queue.GetPendingSyncTasks(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks), nil
}

func (w *SyncWorker) waitForWork(ctx context.Context) {
	if w.redis != nil {
		// BRPOP doubles as the poll interval sleep
		_, err := w.redis.BRPop(ctx, w.pollInterval, notifyKey).Result()
		if err == nil || errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return
		}
		w.logger.Warn().Err(err).Msg("redis BRPOP error")
	}

	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-w.wake:
	case <-timer.C:
	}
}

func (w *SyncWorker) processTask(ctx context.Context, task *models.SyncTask) {
	log := w.logger.With().Int64("task_id", task.ID).Str("target", task.Target).Str("task_type", task.TaskType).Logger()

	sink, ok := w.sinks[task.Target]
	if !ok {
		w.failTask(ctx, task, fmt.Errorf("no sink registered for target %q", task.Target))
		return
	}

	var payload Payload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}
	if payload.Booking == nil {
		w.failTask(ctx, task, errors.New("booking payload missing"))
		return
	}

	if err := sink.Deliver(ctx, task.TaskType, payload); err != nil {
		log.Warn().Err(err).Int("retry_count", task.RetryCount).Msg("sync delivery failed")
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.queue.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil); err != nil {
		log.Error().Err(err).Msg("mark completed")
	}
	metrics.IncSyncTask(task.Target, models.SyncStatusCompleted)
	log.Debug().Msg("sync task completed")
}

func (w *SyncWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.failTask(ctx, task, cause)
		return
	}

	next := w.now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.queue.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
	metrics.IncSyncTask(task.Target, models.SyncStatusRetry)
}

func (w *SyncWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := w.queue.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	metrics.IncSyncTask(task.Target, models.SyncStatusFailed)
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("target", task.Target).Msg("sync task dead-lettered")
	w.pushDeadLetter(ctx, task, cause)
}

func (w *SyncWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask, cause error) {
	if w.redis == nil {
		return
	}
	msg := cause.Error()
	dead := *task
	dead.Status = models.SyncStatusFailed
	dead.LastError = &msg

	data, err := json.Marshal(dead)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}
