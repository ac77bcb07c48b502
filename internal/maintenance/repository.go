package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UpdateFields is a partial update: nil pointers leave the stored value
// unchanged. ClearScheduledStart wipes scheduled_start in the same
// statement, used by duration-based immediate starts.
type UpdateFields struct {
	Enabled             *bool
	Title               *string
	Subtitle            *string
	Message             *string
	ScheduledStart      *time.Time
	ScheduledEnd        *time.Time
	ClearScheduledStart bool
	AdminBypass         *bool
	ApplyLocalhost      *bool
	BypassIPs           []string
	StatusUpdates       []StatusUpdate
	DiscordAnnounce     *bool
	UpdatedBy           int64
}

// Repository provides PostgreSQL backed persistence for maintenance scopes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `scope, enabled, title, subtitle, message, scheduled_start, scheduled_end, admin_bypass, apply_localhost, bypass_ips, status_updates, discord_announce, updated_by, updated_at`

// GetRecord fetches the stored record for a scope. The second return value
// reports whether a row exists.
func (r *Repository) GetRecord(ctx context.Context, scope Scope) (Record, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM maintenance_scopes WHERE scope = $1`, string(scope))
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return record, true, nil
}

// ListRecords returns every stored maintenance record.
func (r *Repository) ListRecords(ctx context.Context) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM maintenance_scopes ORDER BY scope`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// UpsertRecord creates the row if absent, else applies a COALESCE-style
// partial update. Single statement: concurrent upserts race with
// last-write-wins per field, relying on row-level atomicity only.
func (r *Repository) UpsertRecord(ctx context.Context, scope Scope, fields UpdateFields) (Record, error) {
	var bypassIPs, statusUpdates []byte
	var err error
	if fields.BypassIPs != nil {
		if bypassIPs, err = json.Marshal(fields.BypassIPs); err != nil {
			return Record{}, err
		}
	}
	if fields.StatusUpdates != nil {
		if statusUpdates, err = json.Marshal(fields.StatusUpdates); err != nil {
			return Record{}, err
		}
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO maintenance_scopes (scope, enabled, title, subtitle, message, scheduled_start, scheduled_end, admin_bypass, apply_localhost, bypass_ips, status_updates, discord_announce, updated_by, updated_at)
		VALUES ($1,
			COALESCE($2, FALSE),
			COALESCE($3, ''),
			COALESCE($4, ''),
			COALESCE($5, ''),
			$6,
			$7,
			COALESCE($9, FALSE),
			COALESCE($10, FALSE),
			COALESCE($11, '[]'::jsonb),
			COALESCE($12, '[]'::jsonb),
			COALESCE($13, FALSE),
			$14,
			NOW())
		ON CONFLICT (scope) DO UPDATE SET
			enabled         = COALESCE($2, maintenance_scopes.enabled),
			title           = COALESCE($3, maintenance_scopes.title),
			subtitle        = COALESCE($4, maintenance_scopes.subtitle),
			message         = COALESCE($5, maintenance_scopes.message),
			scheduled_start = CASE WHEN $8 THEN NULL ELSE COALESCE($6, maintenance_scopes.scheduled_start) END,
			scheduled_end   = COALESCE($7, maintenance_scopes.scheduled_end),
			admin_bypass    = COALESCE($9, maintenance_scopes.admin_bypass),
			apply_localhost = COALESCE($10, maintenance_scopes.apply_localhost),
			bypass_ips      = COALESCE($11, maintenance_scopes.bypass_ips),
			status_updates  = COALESCE($12, maintenance_scopes.status_updates),
			discord_announce = COALESCE($13, maintenance_scopes.discord_announce),
			updated_by      = $14,
			updated_at      = NOW()
		RETURNING `+recordColumns,
		string(scope), fields.Enabled, fields.Title, fields.Subtitle, fields.Message,
		fields.ScheduledStart, fields.ScheduledEnd, fields.ClearScheduledStart,
		fields.AdminBypass, fields.ApplyLocalhost, bypassIPs, statusUpdates,
		fields.DiscordAnnounce, fields.UpdatedBy)
	return scanRecord(row)
}

// InsertHistory appends one transition entry.
func (r *Repository) InsertHistory(ctx context.Context, entry HistoryEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO maintenance_history (scope, action, actor_id, reason, duration_minutes, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		string(entry.Scope), entry.Action, entry.ActorID, entry.Reason, entry.DurationMinutes)
	return err
}

// ListHistory returns the most recent transitions for a scope, newest first.
func (r *Repository) ListHistory(ctx context.Context, scope Scope, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, scope, action, actor_id, reason, duration_minutes, created_at
		 FROM maintenance_history WHERE scope = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		string(scope), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []HistoryEntry
	for rows.Next() {
		var (
			e         HistoryEntry
			scopeName string
		)
		if err := rows.Scan(&e.ID, &scopeName, &e.Action, &e.ActorID, &e.Reason, &e.DurationMinutes, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Scope = Scope(scopeName)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec                   Record
		scopeName             string
		bypassIPs, statusRaws []byte
	)
	err := row.Scan(&scopeName, &rec.Enabled, &rec.Title, &rec.Subtitle, &rec.Message,
		&rec.ScheduledStart, &rec.ScheduledEnd, &rec.AdminBypass, &rec.ApplyLocalhost,
		&bypassIPs, &statusRaws, &rec.DiscordAnnounce, &rec.UpdatedBy, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.Scope = Scope(scopeName)
	if len(bypassIPs) > 0 {
		if err := json.Unmarshal(bypassIPs, &rec.BypassIPs); err != nil {
			return Record{}, err
		}
	}
	if len(statusRaws) > 0 {
		if err := json.Unmarshal(statusRaws, &rec.StatusUpdates); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}
