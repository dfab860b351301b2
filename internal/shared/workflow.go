package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WorkflowAction enumerates workflow history actions.
type WorkflowAction string

const (
	// WorkflowSubmit marks a submission into review.
	WorkflowSubmit WorkflowAction = "SUBMIT"
	// WorkflowApprove marks an approval.
	WorkflowApprove WorkflowAction = "APPROVE"
	// WorkflowRevert marks a transition against the forward flow; only a
	// manage-permission holder can produce one.
	WorkflowRevert WorkflowAction = "REVERT"
)

// WorkflowEntry represents a single workflow history record.
type WorkflowEntry struct {
	ID         int64
	ArticleID  int64
	ActorID    int64
	Action     WorkflowAction
	FromStatus string
	ToStatus   string
	Note       string
	At         time.Time
}

// WorkflowRecorder persists article transition history.
type WorkflowRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewWorkflowRecorder constructs WorkflowRecorder.
func NewWorkflowRecorder(pool *pgxpool.Pool, logger *slog.Logger) *WorkflowRecorder {
	return &WorkflowRecorder{pool: pool, logger: logger}
}

// Record writes a workflow entry to the database.
func (r *WorkflowRecorder) Record(ctx context.Context, entry WorkflowEntry) error {
	if r == nil {
		return errors.New("workflow recorder not initialised")
	}
	if entry.ArticleID == 0 {
		return errors.New("workflow article id required")
	}
	if entry.ActorID == 0 {
		return errors.New("workflow actor required")
	}
	if entry.Action == "" {
		return errors.New("workflow action required")
	}
	// A zero time.Time would reach postgres as year 1, not NULL, and
	// wreck the history ordering.
	at := entry.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO workflow_history (article_id, actor_id, action, from_status, to_status, note, at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ArticleID, entry.ActorID, string(entry.Action), entry.FromStatus, entry.ToStatus, entry.Note, at)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("record workflow entry", slog.Any("error", err))
		}
		return err
	}
	return nil
}

// History returns workflow entries for an article, oldest first.
func (r *WorkflowRecorder) History(ctx context.Context, articleID int64) ([]WorkflowEntry, error) {
	if r == nil {
		return nil, errors.New("workflow recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, article_id, actor_id, action, from_status, to_status, note, at
FROM workflow_history WHERE article_id=$1 ORDER BY at ASC`, articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []WorkflowEntry
	for rows.Next() {
		var e WorkflowEntry
		var action string
		if err := rows.Scan(&e.ID, &e.ArticleID, &e.ActorID, &action, &e.FromStatus, &e.ToStatus, &e.Note, &e.At); err != nil {
			return nil, err
		}
		e.Action = WorkflowAction(action)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
