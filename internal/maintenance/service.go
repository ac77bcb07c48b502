package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	"github.com/darklock-sec/darklock-console/internal/audit"
	"github.com/darklock-sec/darklock-console/internal/observability"
	"github.com/darklock-sec/darklock-console/internal/shared"
)

// RepositoryPort defines the persistence methods the orchestrator needs.
type RepositoryPort interface {
	GetRecord(ctx context.Context, scope Scope) (Record, bool, error)
	ListRecords(ctx context.Context) ([]Record, error)
	UpsertRecord(ctx context.Context, scope Scope, fields UpdateFields) (Record, error)
	InsertHistory(ctx context.Context, entry HistoryEntry) error
	ListHistory(ctx context.Context, scope Scope, limit int) ([]HistoryEntry, error)
}

// Notifier delivers best-effort maintenance notifications, typically to a
// discord webhook via the job queue.
type Notifier interface {
	NotifyMaintenance(ctx context.Context, scope Scope, enabled bool, title, message string) error
}

// Service orchestrates maintenance state. Every decision re-reads current
// state; nothing is cached between requests.
type Service struct {
	repo      RepositoryPort
	audit     *audit.Logger
	notifier  Notifier
	metrics   *observability.Metrics
	sanitizer *bluemonday.Policy
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds a Service instance. notifier and metrics may be nil
// when no webhook or registry is configured.
func NewService(repo RepositoryPort, auditLog *audit.Logger, notifier Notifier, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		audit:     auditLog,
		notifier:  notifier,
		metrics:   metrics,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
		now:       time.Now,
	}
}

// UpsertInput is the partial update accepted from handlers. Nil fields mean
// "leave unchanged". DurationMinutes is mutually exclusive with an explicit
// ScheduledEnd.
type UpsertInput struct {
	Enabled         *bool
	Title           *string
	Subtitle        *string
	Message         *string
	ScheduledStart  *time.Time
	ScheduledEnd    *time.Time
	DurationMinutes *int
	AdminBypass     *bool
	ApplyLocalhost  *bool
	BypassIPs       []string
	DiscordAnnounce *bool
	Reason          string
}

// Get returns the current record, or the scope's defaulted disabled shape
// when no row exists. Never fails for a known scope name.
func (s *Service) Get(ctx context.Context, scope Scope) (Record, error) {
	record, found, err := s.repo.GetRecord(ctx, scope)
	if err != nil {
		return Record{}, err
	}
	if !found {
		return DisabledRecord(scope), nil
	}
	return record, nil
}

// Upsert creates or partially updates a scope record and appends exactly
// one history entry: ENABLED/DISABLED when the enabled flag was explicitly
// part of the request, UPDATED otherwise.
func (s *Service) Upsert(ctx context.Context, scope Scope, input UpsertInput, actor Actor) (Record, error) {
	fields, durationMinutes, err := s.buildFields(input, actor)
	if err != nil {
		return Record{}, err
	}

	before, _, err := s.repo.GetRecord(ctx, scope)
	if err != nil {
		return Record{}, err
	}

	record, err := s.repo.UpsertRecord(ctx, scope, fields)
	if err != nil {
		return Record{}, err
	}

	action := ActionUpdated
	if input.Enabled != nil {
		if *input.Enabled {
			action = ActionEnabled
		} else {
			action = ActionDisabled
		}
	}
	s.appendHistory(ctx, HistoryEntry{
		Scope:           scope,
		Action:          action,
		ActorID:         actor.ID,
		Reason:          strings.TrimSpace(input.Reason),
		DurationMinutes: durationMinutes,
	})

	s.audit.Record(ctx, audit.Entry{
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Action:     "maintenance." + strings.ToLower(action),
		TargetType: "maintenance_scope",
		TargetID:   string(scope),
		Before:     map[string]any{"enabled": before.Enabled},
		After:      map[string]any{"enabled": record.Enabled},
		Severity:   audit.SeverityWarning,
	})

	if input.DiscordAnnounce != nil && *input.DiscordAnnounce {
		s.announce(ctx, record)
	}
	return record, nil
}

// AddStatusUpdate sanitizes the message, prepends it to the scope's status
// list and truncates to the most recent entries. No history entry is
// written; status notes are not state transitions.
func (s *Service) AddStatusUpdate(ctx context.Context, scope Scope, message string, actor Actor) (Record, error) {
	clean := s.cleanText(message)
	if clean == "" {
		return Record{}, fmt.Errorf("maintenance: status update message required: %w", shared.ErrInvalidInput)
	}
	current, found, err := s.repo.GetRecord(ctx, scope)
	if err != nil {
		return Record{}, err
	}
	if !found {
		current = DisabledRecord(scope)
	}
	updates := append([]StatusUpdate{{Message: clean, PostedAt: s.now().UTC()}}, current.StatusUpdates...)
	if len(updates) > maxStatusUpdates {
		updates = updates[:maxStatusUpdates]
	}
	return s.repo.UpsertRecord(ctx, scope, UpdateFields{StatusUpdates: updates, UpdatedBy: actor.ID})
}

// Extend pushes the scheduled end out by the given minutes, from the
// current end or from now when none is set, and appends an EXTENDED
// history entry recording the delta.
func (s *Service) Extend(ctx context.Context, scope Scope, minutes int, actor Actor) (Record, error) {
	if minutes <= 0 {
		return Record{}, fmt.Errorf("maintenance: extension minutes must be positive: %w", shared.ErrInvalidInput)
	}
	current, found, err := s.repo.GetRecord(ctx, scope)
	if err != nil {
		return Record{}, err
	}
	base := s.now().UTC()
	if found && current.ScheduledEnd != nil {
		base = *current.ScheduledEnd
	}
	end := base.Add(time.Duration(minutes) * time.Minute)
	record, err := s.repo.UpsertRecord(ctx, scope, UpdateFields{ScheduledEnd: &end, UpdatedBy: actor.ID})
	if err != nil {
		return Record{}, err
	}
	s.appendHistory(ctx, HistoryEntry{
		Scope:           scope,
		Action:          ActionExtended,
		ActorID:         actor.ID,
		Reason:          fmt.Sprintf("extended by %d minutes until %s", minutes, end.Format(time.RFC3339)),
		DurationMinutes: minutes,
	})
	s.audit.Record(ctx, audit.Entry{
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Action:     "maintenance.extended",
		TargetType: "maintenance_scope",
		TargetID:   string(scope),
		After:      map[string]any{"scheduled_end": end},
		Severity:   audit.SeverityInfo,
	})
	return record, nil
}

// ListAll projects every scope, including scopes with no stored row, with
// derived fields computed at read time.
func (s *Service) ListAll(ctx context.Context) ([]View, error) {
	records, err := s.repo.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	stored := make(map[Scope]Record, len(records))
	for _, r := range records {
		stored[r.Scope] = r
	}
	now := s.now().UTC()
	views := make([]View, 0, len(AllScopes()))
	for _, scope := range AllScopes() {
		record, ok := stored[scope]
		if !ok {
			record = DisabledRecord(scope)
		}
		views = append(views, NewView(record, now))
	}
	return views, nil
}

// ListPending projects only the scopes with maintenance currently enabled.
func (s *Service) ListPending(ctx context.Context) ([]View, error) {
	views, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	pending := make([]View, 0, len(views))
	for _, v := range views {
		if v.Enabled {
			pending = append(pending, v)
		}
	}
	return pending, nil
}

// History returns the most recent transitions for a scope.
func (s *Service) History(ctx context.Context, scope Scope, limit int) ([]HistoryEntry, error) {
	return s.repo.ListHistory(ctx, scope, limit)
}

// IsBypassed reports whether a caller is exempt from an active scope. Any
// one match exempts: operator with admin-bypass set, localhost unless the
// scope opted in to applying maintenance there, or a listed bypass IP.
func IsBypassed(record Record, callerIP string, isOperator bool) bool {
	if record.AdminBypass && isOperator {
		return true
	}
	if isLocalhost(callerIP) && !record.ApplyLocalhost {
		return true
	}
	for _, ip := range record.BypassIPs {
		if ip == callerIP {
			return true
		}
	}
	return false
}

func isLocalhost(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	return parsed != nil && parsed.IsLoopback()
}

func (s *Service) buildFields(input UpsertInput, actor Actor) (UpdateFields, int, error) {
	fields := UpdateFields{
		Enabled:         input.Enabled,
		ScheduledStart:  input.ScheduledStart,
		ScheduledEnd:    input.ScheduledEnd,
		AdminBypass:     input.AdminBypass,
		ApplyLocalhost:  input.ApplyLocalhost,
		DiscordAnnounce: input.DiscordAnnounce,
		UpdatedBy:       actor.ID,
	}
	if input.Title != nil {
		clean := s.cleanText(*input.Title)
		fields.Title = &clean
	}
	if input.Subtitle != nil {
		clean := s.cleanText(*input.Subtitle)
		fields.Subtitle = &clean
	}
	if input.Message != nil {
		clean := s.cleanText(*input.Message)
		fields.Message = &clean
	}
	if input.BypassIPs != nil {
		ips := make([]string, 0, len(input.BypassIPs))
		for _, raw := range input.BypassIPs {
			trimmed := strings.TrimSpace(raw)
			if net.ParseIP(trimmed) == nil {
				return UpdateFields{}, 0, fmt.Errorf("maintenance: invalid bypass ip %q: %w", raw, shared.ErrInvalidInput)
			}
			ips = append(ips, trimmed)
		}
		fields.BypassIPs = ips
	}

	durationMinutes := 0
	if input.DurationMinutes != nil {
		if input.ScheduledEnd != nil {
			return UpdateFields{}, 0, fmt.Errorf("maintenance: duration and scheduled end are mutually exclusive: %w", shared.ErrInvalidInput)
		}
		if *input.DurationMinutes <= 0 {
			return UpdateFields{}, 0, fmt.Errorf("maintenance: duration must be positive: %w", shared.ErrInvalidInput)
		}
		durationMinutes = *input.DurationMinutes
		end := s.now().UTC().Add(time.Duration(durationMinutes) * time.Minute)
		// Duration means "starting now": any stale scheduled start is
		// cleared in the same statement that sets the end.
		fields.ClearScheduledStart = true
		fields.ScheduledStart = nil
		fields.ScheduledEnd = &end
	}
	return fields, durationMinutes, nil
}

// cleanText strips markup and normalizes operator-supplied text to NFC.
func (s *Service) cleanText(text string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(norm.NFC.String(text)))
}

// appendHistory writes the transition row and counts the transition.
// History is bookkeeping around a committed state change; a failure is
// logged, not propagated.
func (s *Service) appendHistory(ctx context.Context, entry HistoryEntry) {
	s.metrics.CountMaintenanceToggle(string(entry.Scope), entry.Action)
	if err := s.repo.InsertHistory(ctx, entry); err != nil && s.logger != nil {
		s.logger.Warn("insert maintenance history", slog.String("scope", string(entry.Scope)), slog.Any("error", err))
	}
}

// announce posts a best-effort notification. Failure never rolls back the
// state change.
func (s *Service) announce(ctx context.Context, record Record) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyMaintenance(ctx, record.Scope, record.Enabled, record.Title, record.Message); err != nil && s.logger != nil {
		s.logger.Warn("maintenance announce", slog.String("scope", string(record.Scope)), slog.Any("error", err))
	}
}
