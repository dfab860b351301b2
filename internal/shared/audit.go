package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit actions recorded by the newsroom services. Free-form strings are
// still accepted; these constants keep the timeline filterable.
const (
	AuditArticleCreated       = "article.created"
	AuditArticleUpdated       = "article.updated"
	AuditArticleStatusChanged = "article.status_changed"
	AuditArticleDeleted       = "article.deleted"

	AuditUserCreated     = "user.created"
	AuditUserUpdated     = "user.updated"
	AuditUserDeactivated = "user.deactivated"
	AuditUserReactivated = "user.reactivated"

	AuditRoleCreated = "role.created"
	AuditRoleUpdated = "role.updated"
	AuditRoleDeleted = "role.deleted"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	// A zero time.Time would reach postgres as year 1, not NULL.
	at := log.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}
