package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Logger writes audit entries. Record never raises to the caller: audit-log
// unavailability must not block legitimate administrative work, so failures
// are reported to the operational log and otherwise swallowed.
type Logger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewLogger returns a new audit Logger.
func NewLogger(pool *pgxpool.Pool, logger *slog.Logger) *Logger {
	return &Logger{pool: pool, logger: logger}
}

// Record persists the entry. Call only after the domain operation succeeded
// so a failed operation never produces a misleading success entry.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	if l == nil || l.pool == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Severity == "" {
		entry.Severity = SeverityInfo
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	before, err := json.Marshal(entry.Before)
	if err != nil {
		l.warn("marshal before", err)
		before = []byte("{}")
	}
	after, err := json.Marshal(entry.After)
	if err != nil {
		l.warn("marshal after", err)
		after = []byte("{}")
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO audit_log (id, actor_id, actor_email, action, target_type, target_id, before_value, after_value, ip, user_agent, severity, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID, entry.ActorID, entry.ActorEmail, entry.Action, entry.TargetType, entry.TargetID,
		before, after, entry.IP, entry.UserAgent, entry.Severity, entry.OccurredAt)
	if err != nil {
		l.warn("insert audit entry", err)
	}
}

func (l *Logger) warn(msg string, err error) {
	if l.logger != nil {
		l.logger.Warn("audit: "+msg, slog.Any("error", err))
	}
}
