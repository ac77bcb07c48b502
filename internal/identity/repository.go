package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/darklock-sec/darklock-console/internal/shared"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for operators and
// permission grants.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateOperatorParams collects the fields required to create an operator.
type CreateOperatorParams struct {
	Email        string
	DisplayName  string
	PasswordHash string
	Role         Role
}

// UpdateOperatorParams applies a partial update; nil fields are left unchanged.
type UpdateOperatorParams struct {
	DisplayName *string
	Role        *Role
	IsActive    *bool
}

// GetOperator fetches an operator by ID.
func (r *Repository) GetOperator(ctx context.Context, id int64) (Operator, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, email, display_name, role, is_active, created_at, updated_at FROM operators WHERE id = $1`, id)
	return scanOperator(row)
}

// GetOperatorByEmail fetches an operator by email.
func (r *Repository) GetOperatorByEmail(ctx context.Context, email string) (Operator, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, email, display_name, role, is_active, created_at, updated_at FROM operators WHERE email = $1`, email)
	return scanOperator(row)
}

// ListOperators returns all operators ordered by email.
func (r *Repository) ListOperators(ctx context.Context) ([]Operator, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, email, display_name, role, is_active, created_at, updated_at FROM operators ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var operators []Operator
	for rows.Next() {
		op, err := scanOperator(rows)
		if err != nil {
			return nil, err
		}
		operators = append(operators, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return operators, nil
}

// CreateOperator inserts a new operator account.
func (r *Repository) CreateOperator(ctx context.Context, params CreateOperatorParams) (Operator, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO operators (email, display_name, password_hash, role, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
		 RETURNING id, email, display_name, role, is_active, created_at, updated_at`,
		params.Email, params.DisplayName, params.PasswordHash, params.Role.String())
	op, err := scanOperator(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Operator{}, fmt.Errorf("identity: email already registered: %w", shared.ErrConflict)
		}
		return Operator{}, err
	}
	return op, nil
}

// UpdateOperator applies a partial update with leave-unchanged semantics.
func (r *Repository) UpdateOperator(ctx context.Context, id int64, params UpdateOperatorParams) (Operator, error) {
	var roleName *string
	if params.Role != nil {
		name := params.Role.String()
		roleName = &name
	}
	row := r.pool.QueryRow(ctx,
		`UPDATE operators
		 SET display_name = COALESCE($2, display_name),
		     role = COALESCE($3, role),
		     is_active = COALESCE($4, is_active),
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING id, email, display_name, role, is_active, created_at, updated_at`,
		id, params.DisplayName, roleName, params.IsActive)
	return scanOperator(row)
}

// DeleteOperator removes an operator account.
func (r *Repository) DeleteOperator(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM operators WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("identity: operator %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// SetPasswordHash replaces an operator's password hash.
func (r *Repository) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE operators SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("identity: operator %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// DeleteOperatorSessions removes every stored session row for the operator
// and returns the revoked session IDs so callers can clear the redis copies.
func (r *Repository) DeleteOperatorSessions(ctx context.Context, operatorID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `DELETE FROM operator_sessions WHERE operator_id = $1 RETURNING id`, operatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListGrants returns the grant rows for a role.
func (r *Repository) ListGrants(ctx context.Context, role Role) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `SELECT role, permission_key, granted, updated_at FROM permission_grants WHERE role = $1`, role.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var (
			g        Grant
			roleName string
		)
		if err := rows.Scan(&roleName, &g.PermissionKey, &g.Granted, &g.UpdatedAt); err != nil {
			return nil, err
		}
		if g.Role, err = ParseRole(roleName); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// UpsertGrant writes a (role, permission-key, granted) row, overwriting any
// existing pair.
func (r *Repository) UpsertGrant(ctx context.Context, grant Grant) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO permission_grants (role, permission_key, granted, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (role, permission_key) DO UPDATE SET granted = EXCLUDED.granted, updated_at = NOW()`,
		grant.Role.String(), grant.PermissionKey, grant.Granted)
	return err
}

func scanOperator(row pgx.Row) (Operator, error) {
	var (
		op       Operator
		roleName string
	)
	err := row.Scan(&op.ID, &op.Email, &op.DisplayName, &roleName, &op.IsActive, &op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Operator{}, fmt.Errorf("identity: operator: %w", shared.ErrNotFound)
		}
		return Operator{}, err
	}
	if op.Role, err = ParseRole(roleName); err != nil {
		return Operator{}, err
	}
	return op, nil
}
