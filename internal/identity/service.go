package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/darklock-sec/darklock-console/internal/audit"
	"github.com/darklock-sec/darklock-console/internal/shared"
)

// RepositoryPort defines the data access methods the service needs.
type RepositoryPort interface {
	GetOperator(ctx context.Context, id int64) (Operator, error)
	ListOperators(ctx context.Context) ([]Operator, error)
	CreateOperator(ctx context.Context, params CreateOperatorParams) (Operator, error)
	UpdateOperator(ctx context.Context, id int64, params UpdateOperatorParams) (Operator, error)
	DeleteOperator(ctx context.Context, id int64) error
	SetPasswordHash(ctx context.Context, id int64, hash string) error
	DeleteOperatorSessions(ctx context.Context, operatorID int64) ([]string, error)
	UpsertGrant(ctx context.Context, grant Grant) error
	ListGrants(ctx context.Context, role Role) ([]Grant, error)
}

// SessionRevoker clears the live copy of a session.
type SessionRevoker interface {
	Revoke(ctx context.Context, sessionID string) error
}

// Service handles operator account management, enforcing the
// self-protection rules that the route-level guards cannot express.
type Service struct {
	repo     RepositoryPort
	sessions SessionRevoker
	audit    *audit.Logger
	logger   *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, sessions SessionRevoker, auditLog *audit.Logger, logger *slog.Logger) *Service {
	return &Service{repo: repo, sessions: sessions, audit: auditLog, logger: logger}
}

// CreateInput collects the fields for a new operator account.
type CreateInput struct {
	Email       string
	DisplayName string
	Password    string
	Role        Role
}

// UpdateInput applies a partial update; nil fields are left unchanged.
type UpdateInput struct {
	DisplayName *string
	Role        *Role
	IsActive    *bool
}

// List returns every operator account.
func (s *Service) List(ctx context.Context) ([]Operator, error) {
	return s.repo.ListOperators(ctx)
}

// Get fetches one operator account.
func (s *Service) Get(ctx context.Context, id int64) (Operator, error) {
	return s.repo.GetOperator(ctx, id)
}

// Create adds a new operator account. Only the owner may assign the owner
// or co-owner role.
func (s *Service) Create(ctx context.Context, actor Operator, input CreateInput) (Operator, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.Email == "" || input.Password == "" {
		return Operator{}, fmt.Errorf("identity: email and password required: %w", shared.ErrInvalidInput)
	}
	if err := s.checkRoleAssignment(actor, input.Role); err != nil {
		return Operator{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return Operator{}, err
	}
	created, err := s.repo.CreateOperator(ctx, CreateOperatorParams{
		Email:        input.Email,
		DisplayName:  strings.TrimSpace(input.DisplayName),
		PasswordHash: string(hash),
		Role:         input.Role,
	})
	if err != nil {
		return Operator{}, err
	}
	s.record(ctx, actor, "operator.create", created.ID, nil, map[string]any{
		"email": created.Email,
		"role":  created.Role.String(),
	}, audit.SeverityInfo)
	return created, nil
}

// Update applies a partial update to an operator account. A non-owner may
// never modify an owner record, and role escalation to owner or co-owner is
// owner-only.
func (s *Service) Update(ctx context.Context, actor Operator, id int64, input UpdateInput) (Operator, error) {
	target, err := s.repo.GetOperator(ctx, id)
	if err != nil {
		return Operator{}, err
	}
	if err := s.checkTargetProtection(actor, target); err != nil {
		return Operator{}, err
	}
	if input.Role != nil {
		if err := s.checkRoleAssignment(actor, *input.Role); err != nil {
			return Operator{}, err
		}
	}
	updated, err := s.repo.UpdateOperator(ctx, id, UpdateOperatorParams{
		DisplayName: input.DisplayName,
		Role:        input.Role,
		IsActive:    input.IsActive,
	})
	if err != nil {
		return Operator{}, err
	}
	s.record(ctx, actor, "operator.update", id, map[string]any{
		"role":      target.Role.String(),
		"is_active": target.IsActive,
	}, map[string]any{
		"role":      updated.Role.String(),
		"is_active": updated.IsActive,
	}, audit.SeverityInfo)
	return updated, nil
}

// Delete removes an operator account. The caller must echo the literal
// confirmation phrase; an operator can never delete their own account.
func (s *Service) Delete(ctx context.Context, actor Operator, id int64, confirmation string) error {
	if err := CheckConfirmation(confirmation, "DELETE"); err != nil {
		return err
	}
	if actor.ID == id {
		return fmt.Errorf("identity: cannot delete own account: %w", shared.ErrForbidden)
	}
	target, err := s.repo.GetOperator(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checkTargetProtection(actor, target); err != nil {
		return err
	}
	if err := s.repo.DeleteOperator(ctx, id); err != nil {
		return err
	}
	s.revokeSessions(ctx, id)
	s.record(ctx, actor, "operator.delete", id, map[string]any{
		"email": target.Email,
		"role":  target.Role.String(),
	}, nil, audit.SeverityCritical)
	return nil
}

// ResetPassword sets a new password and revokes the target's active
// sessions as a side effect.
func (s *Service) ResetPassword(ctx context.Context, actor Operator, id int64, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("identity: password too short: %w", shared.ErrInvalidInput)
	}
	target, err := s.repo.GetOperator(ctx, id)
	if err != nil {
		return err
	}
	if actor.ID != id {
		if err := s.checkTargetProtection(actor, target); err != nil {
			return err
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.SetPasswordHash(ctx, id, string(hash)); err != nil {
		return err
	}
	s.revokeSessions(ctx, id)
	s.record(ctx, actor, "operator.reset_password", id, nil, map[string]any{
		"email": target.Email,
	}, audit.SeverityWarning)
	return nil
}

// RevokeSessions force-logs-out the target operator everywhere.
func (s *Service) RevokeSessions(ctx context.Context, actor Operator, id int64) error {
	target, err := s.repo.GetOperator(ctx, id)
	if err != nil {
		return err
	}
	if actor.ID != id {
		if err := s.checkTargetProtection(actor, target); err != nil {
			return err
		}
	}
	s.revokeSessions(ctx, id)
	s.record(ctx, actor, "operator.revoke_sessions", id, nil, map[string]any{
		"email": target.Email,
	}, audit.SeverityWarning)
	return nil
}

// SetGrant writes a permission grant row. Grant management is owner-only:
// permission keys can widen access past the rank ladder, so only the
// absolute role may hand them out.
func (s *Service) SetGrant(ctx context.Context, actor Operator, grant Grant) error {
	if !actor.IsOwner() {
		return fmt.Errorf("identity: grant management is owner-only: %w", shared.ErrForbidden)
	}
	grant.PermissionKey = strings.ToLower(strings.TrimSpace(grant.PermissionKey))
	if grant.PermissionKey == "" {
		return fmt.Errorf("identity: permission key required: %w", shared.ErrInvalidInput)
	}
	if err := s.repo.UpsertGrant(ctx, grant); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Action:     "grant.set",
		TargetType: "grant",
		TargetID:   grant.Role.String() + ":" + grant.PermissionKey,
		After: map[string]any{
			"granted": grant.Granted,
		},
		Severity: audit.SeverityWarning,
	})
	return nil
}

// Grants lists the grant rows for a role.
func (s *Service) Grants(ctx context.Context, role Role) ([]Grant, error) {
	return s.repo.ListGrants(ctx, role)
}

// checkRoleAssignment enforces that only the owner assigns owner or
// co-owner.
func (s *Service) checkRoleAssignment(actor Operator, role Role) error {
	if (role == RoleOwner || role == RoleCoOwner) && !actor.IsOwner() {
		return fmt.Errorf("identity: only owner may assign %s: %w", role, shared.ErrForbidden)
	}
	return nil
}

// checkTargetProtection enforces that a non-owner never modifies or deletes
// an owner record.
func (s *Service) checkTargetProtection(actor Operator, target Operator) error {
	if target.Role == RoleOwner && !actor.IsOwner() {
		return fmt.Errorf("identity: owner records are protected: %w", shared.ErrForbidden)
	}
	return nil
}

func (s *Service) revokeSessions(ctx context.Context, operatorID int64) {
	ids, err := s.repo.DeleteOperatorSessions(ctx, operatorID)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("delete operator sessions", slog.Any("error", err))
		}
		return
	}
	if s.sessions == nil {
		return
	}
	for _, id := range ids {
		if err := s.sessions.Revoke(ctx, id); err != nil && s.logger != nil {
			s.logger.Warn("revoke session", slog.String("session", id), slog.Any("error", err))
		}
	}
}

func (s *Service) record(ctx context.Context, actor Operator, action string, targetID int64, before, after map[string]any, severity string) {
	target := ""
	if targetID != 0 {
		target = strconv.FormatInt(targetID, 10)
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Action:     action,
		TargetType: "operator",
		TargetID:   target,
		Before:     before,
		After:      after,
		Severity:   severity,
	})
}
