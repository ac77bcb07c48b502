package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// TimelineWindow returns a page of audit entries, newest first. Empty
// filter fields are ignored.
func (r *PGRepository) TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, actor_id, actor_email, action, target_type, target_id, before_value, after_value, ip, user_agent, severity, occurred_at
		 FROM audit_log
		 WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		   AND ($2::timestamptz IS NULL OR occurred_at <= $2)
		   AND ($3 = '' OR actor_email = $3)
		   AND ($4 = '' OR action = $4)
		   AND ($5 = '' OR target_type = $5)
		   AND ($6 = '' OR severity = $6)
		 ORDER BY occurred_at DESC
		 OFFSET $7 LIMIT $8`,
		nullableTime(filters.From), nullableTime(filters.To),
		filters.ActorEmail, filters.Action, filters.TargetType, filters.Severity,
		offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e             Entry
			before, after []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorEmail, &e.Action, &e.TargetType, &e.TargetID,
			&before, &after, &e.IP, &e.UserAgent, &e.Severity, &e.OccurredAt); err != nil {
			return nil, err
		}
		if len(before) > 0 {
			_ = json.Unmarshal(before, &e.Before)
		}
		if len(after) > 0 {
			_ = json.Unmarshal(after, &e.After)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ Repository = (*PGRepository)(nil)
