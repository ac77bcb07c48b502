package flags

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/darklock-sec/darklock-console/internal/audit"
	"github.com/darklock-sec/darklock-console/internal/identity"
	"github.com/darklock-sec/darklock-console/internal/shared"
)

// RepositoryPort defines the persistence methods the flag service needs.
type RepositoryPort interface {
	List(ctx context.Context) ([]Flag, error)
	Get(ctx context.Context, key string) (Flag, error)
	Create(ctx context.Context, flag Flag) (Flag, error)
	SetEnabled(ctx context.Context, key string, enabled bool, updatedBy int64) (Flag, error)
	UpdateDescription(ctx context.Context, key, description string, updatedBy int64) (Flag, error)
	Delete(ctx context.Context, key string) error
}

// Service coordinates feature flag mutations and their audit trail.
type Service struct {
	repo      RepositoryPort
	evaluator *identity.Evaluator
	audit     *audit.Logger
	logger    *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, evaluator *identity.Evaluator, auditLog *audit.Logger, logger *slog.Logger) *Service {
	return &Service{repo: repo, evaluator: evaluator, audit: auditLog, logger: logger}
}

// List returns all flags.
func (s *Service) List(ctx context.Context) ([]Flag, error) {
	return s.repo.List(ctx)
}

// Get returns one flag by key.
func (s *Service) Get(ctx context.Context, rawKey string) (Flag, error) {
	key, err := ParseKey(rawKey)
	if err != nil {
		return Flag{}, err
	}
	return s.repo.Get(ctx, key)
}

// CreateInput describes a new flag.
type CreateInput struct {
	Key          string
	Description  string
	Enabled      bool
	IsKillSwitch bool
}

// Create registers a new flag. Creating a kill switch requires the same
// permission as flipping one.
func (s *Service) Create(ctx context.Context, actor identity.Operator, input CreateInput) (Flag, error) {
	key, err := ParseKey(input.Key)
	if err != nil {
		return Flag{}, err
	}
	if input.IsKillSwitch {
		if err := s.checkKillSwitch(ctx, actor); err != nil {
			return Flag{}, err
		}
	}
	created, err := s.repo.Create(ctx, Flag{
		Key:          key,
		Description:  strings.TrimSpace(input.Description),
		Enabled:      input.Enabled,
		IsKillSwitch: input.IsKillSwitch,
		UpdatedBy:    actor.ID,
	})
	if err != nil {
		return Flag{}, err
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Action:     "flags.created",
		TargetType: "feature_flag",
		TargetID:   key,
		After:      map[string]any{"enabled": created.Enabled, "is_kill_switch": created.IsKillSwitch},
	})
	return created, nil
}

// SetEnabled flips a flag. Kill switches demand the dedicated permission
// on top of the route-level rank check.
func (s *Service) SetEnabled(ctx context.Context, actor identity.Operator, rawKey string, enabled bool) (Flag, error) {
	key, err := ParseKey(rawKey)
	if err != nil {
		return Flag{}, err
	}
	current, err := s.repo.Get(ctx, key)
	if err != nil {
		return Flag{}, err
	}
	if current.IsKillSwitch {
		if err := s.checkKillSwitch(ctx, actor); err != nil {
			return Flag{}, err
		}
	}
	updated, err := s.repo.SetEnabled(ctx, key, enabled, actor.ID)
	if err != nil {
		return Flag{}, err
	}
	severity := audit.SeverityInfo
	if current.IsKillSwitch {
		severity = audit.SeverityCritical
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Action:     "flags.toggled",
		TargetType: "feature_flag",
		TargetID:   key,
		Before:     map[string]any{"enabled": current.Enabled},
		After:      map[string]any{"enabled": updated.Enabled},
		Severity:   severity,
	})
	return updated, nil
}

// UpdateDescription changes descriptive text only.
func (s *Service) UpdateDescription(ctx context.Context, actor identity.Operator, rawKey, description string) (Flag, error) {
	key, err := ParseKey(rawKey)
	if err != nil {
		return Flag{}, err
	}
	return s.repo.UpdateDescription(ctx, key, strings.TrimSpace(description), actor.ID)
}

// Delete removes a flag. Kill switches cannot be deleted while enabled.
func (s *Service) Delete(ctx context.Context, actor identity.Operator, rawKey string) error {
	key, err := ParseKey(rawKey)
	if err != nil {
		return err
	}
	current, err := s.repo.Get(ctx, key)
	if err != nil {
		return err
	}
	if current.IsKillSwitch {
		if err := s.checkKillSwitch(ctx, actor); err != nil {
			return err
		}
		if current.Enabled {
			return fmt.Errorf("flags: disable kill switch before deleting: %w", shared.ErrConflict)
		}
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Action:     "flags.deleted",
		TargetType: "feature_flag",
		TargetID:   key,
		Before:     map[string]any{"enabled": current.Enabled},
		Severity:   audit.SeverityWarning,
	})
	return nil
}

func (s *Service) checkKillSwitch(ctx context.Context, actor identity.Operator) error {
	decision, err := s.evaluator.CheckPermission(ctx, actor, identity.PermFlagsKillswitch)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return fmt.Errorf("flags: kill switch requires %s: %w", identity.PermFlagsKillswitch, shared.ErrForbidden)
	}
	return nil
}
