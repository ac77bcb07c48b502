package announce

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	"github.com/darklock-sec/darklock-console/internal/audit"
	"github.com/darklock-sec/darklock-console/internal/shared"
)

// RepositoryPort defines the persistence methods the service needs.
type RepositoryPort interface {
	List(ctx context.Context, publishedOnly bool) ([]Announcement, error)
	Get(ctx context.Context, id int64) (Announcement, error)
	Create(ctx context.Context, a Announcement) (Announcement, error)
	Update(ctx context.Context, id int64, title, body *string, pinned *bool) (Announcement, error)
	SetPublishedAt(ctx context.Context, id int64, at *time.Time) (Announcement, error)
	Delete(ctx context.Context, id int64) error
}

// Notifier fans a published announcement out to Discord.
type Notifier interface {
	NotifyAnnouncement(ctx context.Context, title, body string) error
}

// Service coordinates announcement lifecycle and notification.
type Service struct {
	repo      RepositoryPort
	audit     *audit.Logger
	notifier  Notifier
	sanitizer *bluemonday.Policy
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds a Service instance. The UGC policy keeps basic
// formatting tags; scripts and event handlers are stripped.
func NewService(repo RepositoryPort, auditLog *audit.Logger, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		audit:     auditLog,
		notifier:  notifier,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger,
		now:       time.Now,
	}
}

// List returns announcements; drafts included only when requested.
func (s *Service) List(ctx context.Context, includeDrafts bool) ([]Announcement, error) {
	return s.repo.List(ctx, !includeDrafts)
}

// Get returns one announcement.
func (s *Service) Get(ctx context.Context, id int64) (Announcement, error) {
	return s.repo.Get(ctx, id)
}

// CreateInput describes a new announcement draft.
type CreateInput struct {
	Title  string
	Body   string
	Pinned bool
}

// Create stores a sanitized draft.
func (s *Service) Create(ctx context.Context, actor Actor, input CreateInput) (Announcement, error) {
	title := s.cleanText(input.Title)
	if title == "" {
		return Announcement{}, fmt.Errorf("announce: title required: %w", shared.ErrInvalidInput)
	}
	created, err := s.repo.Create(ctx, Announcement{
		Title:     title,
		Body:      s.cleanBody(input.Body),
		Pinned:    input.Pinned,
		CreatedBy: actor.ID,
	})
	if err != nil {
		return Announcement{}, err
	}
	s.record(ctx, actor, "announce.created", created.ID, nil)
	return created, nil
}

// UpdateInput is a partial edit.
type UpdateInput struct {
	Title  *string
	Body   *string
	Pinned *bool
}

// Update sanitizes and applies a partial edit.
func (s *Service) Update(ctx context.Context, actor Actor, id int64, input UpdateInput) (Announcement, error) {
	if input.Title != nil {
		clean := s.cleanText(*input.Title)
		if clean == "" {
			return Announcement{}, fmt.Errorf("announce: title required: %w", shared.ErrInvalidInput)
		}
		input.Title = &clean
	}
	if input.Body != nil {
		clean := s.cleanBody(*input.Body)
		input.Body = &clean
	}
	updated, err := s.repo.Update(ctx, id, input.Title, input.Body, input.Pinned)
	if err != nil {
		return Announcement{}, err
	}
	s.record(ctx, actor, "announce.updated", id, nil)
	return updated, nil
}

// Publish marks an announcement live and optionally fans it out to
// Discord. Fan-out failure never rolls the publish back.
func (s *Service) Publish(ctx context.Context, actor Actor, id int64, notifyDiscord bool) (Announcement, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Announcement{}, err
	}
	if current.Published() {
		return Announcement{}, fmt.Errorf("announce: already published: %w", shared.ErrConflict)
	}
	now := s.now().UTC()
	published, err := s.repo.SetPublishedAt(ctx, id, &now)
	if err != nil {
		return Announcement{}, err
	}
	s.record(ctx, actor, "announce.published", id, map[string]any{"published_at": now})
	if notifyDiscord && s.notifier != nil {
		if err := s.notifier.NotifyAnnouncement(ctx, published.Title, published.Body); err != nil && s.logger != nil {
			s.logger.Warn("announcement notify", slog.Int64("id", id), slog.Any("error", err))
		}
	}
	return published, nil
}

// Unpublish returns an announcement to draft state.
func (s *Service) Unpublish(ctx context.Context, actor Actor, id int64) (Announcement, error) {
	updated, err := s.repo.SetPublishedAt(ctx, id, nil)
	if err != nil {
		return Announcement{}, err
	}
	s.record(ctx, actor, "announce.unpublished", id, nil)
	return updated, nil
}

// Delete removes an announcement.
func (s *Service) Delete(ctx context.Context, actor Actor, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "announce.deleted", id, nil)
	return nil
}

// Actor identifies the operator performing a mutation.
type Actor struct {
	ID    int64
	Email string
}

func (s *Service) cleanText(text string) string {
	return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(norm.NFC.String(text)))
}

func (s *Service) cleanBody(text string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(norm.NFC.String(text)))
}

func (s *Service) record(ctx context.Context, actor Actor, action string, id int64, after map[string]any) {
	s.audit.Record(ctx, audit.Entry{
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Action:     action,
		TargetType: "announcement",
		TargetID:   strconv.FormatInt(id, 10),
		After:      after,
	})
}
