package flags

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/darklock-sec/darklock-console/internal/shared"
)

// Repository provides PostgreSQL backed persistence for feature flags.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const flagColumns = `id, key, description, enabled, is_kill_switch, updated_by, created_at, updated_at`

// List returns every flag ordered by key.
func (r *Repository) List(ctx context.Context) ([]Flag, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+flagColumns+` FROM feature_flags ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var flags []Flag
	for rows.Next() {
		flag, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		flags = append(flags, flag)
	}
	return flags, rows.Err()
}

// Get fetches a flag by key.
func (r *Repository) Get(ctx context.Context, key string) (Flag, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+flagColumns+` FROM feature_flags WHERE key = $1`, key)
	return scanFlag(row)
}

// Create inserts a new flag. A duplicate key maps to a conflict.
func (r *Repository) Create(ctx context.Context, flag Flag) (Flag, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO feature_flags (key, description, enabled, is_kill_switch, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING `+flagColumns,
		flag.Key, flag.Description, flag.Enabled, flag.IsKillSwitch, flag.UpdatedBy)
	created, err := scanFlag(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Flag{}, shared.ErrConflict
		}
		return Flag{}, err
	}
	return created, nil
}

// SetEnabled flips a flag's state.
func (r *Repository) SetEnabled(ctx context.Context, key string, enabled bool, updatedBy int64) (Flag, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE feature_flags SET enabled = $2, updated_by = $3, updated_at = NOW()
		WHERE key = $1
		RETURNING `+flagColumns,
		key, enabled, updatedBy)
	return scanFlag(row)
}

// UpdateDescription changes the flag's description text.
func (r *Repository) UpdateDescription(ctx context.Context, key, description string, updatedBy int64) (Flag, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE feature_flags SET description = $2, updated_by = $3, updated_at = NOW()
		WHERE key = $1
		RETURNING `+flagColumns,
		key, description, updatedBy)
	return scanFlag(row)
}

// Delete removes a flag.
func (r *Repository) Delete(ctx context.Context, key string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM feature_flags WHERE key = $1`, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanFlag(row pgx.Row) (Flag, error) {
	var flag Flag
	err := row.Scan(&flag.ID, &flag.Key, &flag.Description, &flag.Enabled,
		&flag.IsKillSwitch, &flag.UpdatedBy, &flag.CreatedAt, &flag.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Flag{}, shared.ErrNotFound
		}
		return Flag{}, err
	}
	return flag, nil
}
