package botstatus

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/darklock-sec/darklock-console/internal/audit"
	"github.com/darklock-sec/darklock-console/internal/identity"
)

// Service reads bot state and relays restart commands. Concurrent status
// requests collapse into one gateway call.
type Service struct {
	gateway Gateway
	audit   *audit.Logger
	logger  *slog.Logger
	group   singleflight.Group
	now     func() time.Time
}

// NewService builds a Service instance.
func NewService(gateway Gateway, auditLog *audit.Logger, logger *slog.Logger) *Service {
	return &Service{gateway: gateway, audit: auditLog, logger: logger, now: time.Now}
}

// Status returns the current snapshot. Gateway failures degrade to the
// offline default so the dashboard read path never errors.
func (s *Service) Status(ctx context.Context) Snapshot {
	result, err, _ := s.group.Do("status", func() (any, error) {
		return s.gateway.Status(ctx)
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("bot gateway status", slog.Any("error", err))
		}
		return OfflineSnapshot(s.now().UTC(), "gateway unreachable")
	}
	return result.(Snapshot)
}

// Restart relays a restart after the typed confirmation check. Unlike the
// read path, a gateway failure here is reported to the caller.
func (s *Service) Restart(ctx context.Context, actor identity.Operator, confirmation string) error {
	if err := identity.CheckConfirmation(confirmation, "RESTART"); err != nil {
		return err
	}
	if err := s.gateway.Restart(ctx); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Action:     "bot.restarted",
		TargetType: "discord_bot",
		TargetID:   "gateway",
		Severity:   audit.SeverityCritical,
	})
	return nil
}
