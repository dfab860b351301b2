// Package jobs holds the background task definitions and the Asynq
// worker/scheduler wiring.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/inms/inms/internal/jobs"
	"github.com/inms/inms/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskArticlesPurge permanently removes soft-deleted articles past
	// the retention window.
	TaskArticlesPurge = "articles:purge"
	// TaskSessionsCleanup removes expired session rows from postgres.
	TaskSessionsCleanup = "sessions:cleanup"
	// TaskIdempotencyCleanup removes stale idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// PurgePayload carries the retention window for the purge run.
type PurgePayload struct {
	OlderThanDays int `json:"older_than_days"`
}

// NewArticlesPurgeTask constructs the purge task.
func NewArticlesPurgeTask(olderThanDays int) (*asynq.Task, error) {
	body, err := json.Marshal(PurgePayload{OlderThanDays: olderThanDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskArticlesPurge, body, asynq.Queue(QueueDefault)), nil
}

// NewSessionsCleanupTask constructs the session cleanup task.
func NewSessionsCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskSessionsCleanup, nil, asynq.Queue(QueueDefault))
}

// NewIdempotencyCleanupTask constructs the idempotency cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault))
}

// Handlers bundles the dependencies task handlers need.
type Handlers struct {
	Pool    *pgxpool.Pool
	Idem    *shared.IdempotencyStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

func (h *Handlers) metrics() *jobmetrics.Metrics {
	if h.Metrics != nil {
		return h.Metrics
	}
	return defaultJobMetrics
}

// HandleArticlesPurge hard-deletes articles whose soft-delete timestamp
// is older than the retention window.
func (h *Handlers) HandleArticlesPurge(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics().Track(TaskArticlesPurge)
	var payload PurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		_ = tracker.End(err)
		return asynq.SkipRetry
	}
	if payload.OlderThanDays <= 0 {
		payload.OlderThanDays = 30
	}
	cutoff := time.Now().AddDate(0, 0, -payload.OlderThanDays)
	tag, err := h.Pool.Exec(ctx, `DELETE FROM articles WHERE deleted_at IS NOT NULL AND deleted_at < $1`, cutoff)
	if err != nil {
		h.Logger.Error("articles purge", slog.Any("error", err))
		return tracker.End(err)
	}
	h.metrics().AddRows(TaskArticlesPurge, tag.RowsAffected())
	h.Logger.Info("articles purged", slog.Int64("rows", tag.RowsAffected()))
	return tracker.End(nil)
}

// HandleSessionsCleanup removes expired session rows.
func (h *Handlers) HandleSessionsCleanup(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics().Track(TaskSessionsCleanup)
	tag, err := h.Pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		h.Logger.Error("sessions cleanup", slog.Any("error", err))
		return tracker.End(err)
	}
	h.metrics().AddRows(TaskSessionsCleanup, tag.RowsAffected())
	h.Logger.Info("sessions cleaned", slog.Int64("rows", tag.RowsAffected()))
	return tracker.End(nil)
}

// HandleIdempotencyCleanup removes idempotency keys older than 24 hours.
func (h *Handlers) HandleIdempotencyCleanup(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics().Track(TaskIdempotencyCleanup)
	if err := h.Idem.Cleanup(ctx, 24*time.Hour); err != nil {
		h.Logger.Error("idempotency cleanup", slog.Any("error", err))
		return tracker.End(err)
	}
	h.Logger.Info("idempotency keys cleaned")
	return tracker.End(nil)
}
