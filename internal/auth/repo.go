package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/darklock-sec/darklock-console/internal/identity"
	"github.com/darklock-sec/darklock-console/internal/shared"
)

// Repository defines the persistence surface used by the auth service.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (Credentials, error)
	CreateSession(ctx context.Context, id string, operatorID int64, expiresAt time.Time, ip, userAgent string) error
	DeleteSession(ctx context.Context, id string) error
	SetTOTPSecret(ctx context.Context, operatorID int64, secret string, enabled bool) error
}

// PGRepository is the PostgreSQL implementation of Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail loads an operator with their stored secrets.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (Credentials, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, role, is_active, password_hash,
		       COALESCE(totp_secret, ''), totp_enabled, created_at, updated_at
		FROM operators WHERE LOWER(email) = LOWER($1)`, email)

	var (
		creds    Credentials
		roleName string
	)
	err := row.Scan(&creds.Operator.ID, &creds.Operator.Email, &creds.Operator.DisplayName,
		&roleName, &creds.Operator.IsActive, &creds.PasswordHash,
		&creds.TOTPSecret, &creds.TOTPEnabled,
		&creds.Operator.CreatedAt, &creds.Operator.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credentials{}, shared.ErrNotFound
		}
		return Credentials{}, err
	}
	role, err := identity.ParseRole(roleName)
	if err != nil {
		return Credentials{}, err
	}
	creds.Operator.Role = role
	return creds, nil
}

// CreateSession records session metadata so sessions can be listed and
// force-revoked per operator.
func (r *PGRepository) CreateSession(ctx context.Context, id string, operatorID int64, expiresAt time.Time, ip, userAgent string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO operator_sessions (id, operator_id, expires_at, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET expires_at = $3`,
		id, operatorID, expiresAt, ip, userAgent)
	return err
}

// DeleteSession removes one session record.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM operator_sessions WHERE id = $1`, id)
	return err
}

// DeleteExpiredSessions removes session rows past their expiry. Called by
// the cleanup job; the Redis copies expire on their own TTL.
func (r *PGRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM operator_sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SetTOTPSecret stores or activates the operator's TOTP secret.
func (r *PGRepository) SetTOTPSecret(ctx context.Context, operatorID int64, secret string, enabled bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE operators SET totp_secret = $2, totp_enabled = $3, updated_at = NOW() WHERE id = $1`,
		operatorID, secret, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
