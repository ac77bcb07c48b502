// Package maintenance is the authoritative read/write path for per-scope
// maintenance state: scheduling, bypass rules and transition history.
package maintenance

import (
	"fmt"
	"strings"
	"time"

	"github.com/darklock-sec/darklock-console/internal/shared"
)

// Scope names a surface that maintenance mode toggles independently.
// The set is closed; every call site validates through ParseScope.
type Scope string

const (
	ScopeWebsite      Scope = "website"
	ScopePlatform     Scope = "platform"
	ScopeBotDashboard Scope = "bot-dashboard"
	ScopeAPI          Scope = "api"
	ScopeDiscordBot   Scope = "discord-bot"
	ScopeWorkers      Scope = "workers"
)

// AllScopes lists the closed scope set.
func AllScopes() []Scope {
	return []Scope{ScopeWebsite, ScopePlatform, ScopeBotDashboard, ScopeAPI, ScopeDiscordBot, ScopeWorkers}
}

// ParseScope validates a scope name against the closed set.
func ParseScope(name string) (Scope, error) {
	candidate := Scope(strings.ToLower(strings.TrimSpace(name)))
	for _, s := range AllScopes() {
		if candidate == s {
			return s, nil
		}
	}
	return "", fmt.Errorf("maintenance: invalid scope %q: %w", name, shared.ErrInvalidInput)
}

// History actions, append-only.
const (
	ActionEnabled  = "ENABLED"
	ActionDisabled = "DISABLED"
	ActionUpdated  = "UPDATED"
	ActionExtended = "EXTENDED"
)

// maxStatusUpdates bounds the per-scope status update list.
const maxStatusUpdates = 10

// StatusUpdate is one short operator-authored note, newest first.
type StatusUpdate struct {
	Message  string    `json:"message"`
	PostedAt time.Time `json:"posted_at"`
}

// Record is the stored maintenance state for one scope. Absence of a row is
// treated as "maintenance disabled" by every caller.
type Record struct {
	Scope           Scope          `json:"scope"`
	Enabled         bool           `json:"enabled"`
	Title           string         `json:"title"`
	Subtitle        string         `json:"subtitle"`
	Message         string         `json:"message"`
	ScheduledStart  *time.Time     `json:"scheduled_start"`
	ScheduledEnd    *time.Time     `json:"scheduled_end"`
	AdminBypass     bool           `json:"admin_bypass"`
	ApplyLocalhost  bool           `json:"apply_localhost"`
	BypassIPs       []string       `json:"bypass_ips"`
	StatusUpdates   []StatusUpdate `json:"status_updates"`
	DiscordAnnounce bool           `json:"discord_announce"`
	UpdatedBy       int64          `json:"updated_by"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// DisabledRecord is the defaulted shape returned for a known scope with no
// stored row.
func DisabledRecord(scope Scope) Record {
	return Record{Scope: scope}
}

// View is a read-time projection with derived fields. The derived values
// are never stored.
type View struct {
	Record
	IsScheduled     bool  `json:"is_scheduled"`
	HasEnded        bool  `json:"has_ended"`
	CountdownMillis int64 `json:"countdown_millis"`
}

// NewView computes derived fields from the stored timestamps as of now.
// A past scheduled end reports HasEnded; expiry is advisory only and never
// auto-disables the scope.
func NewView(record Record, now time.Time) View {
	view := View{Record: record}
	if record.ScheduledStart != nil && record.ScheduledStart.After(now) {
		view.IsScheduled = true
		view.CountdownMillis = record.ScheduledStart.Sub(now).Milliseconds()
	}
	if record.ScheduledEnd != nil && record.ScheduledEnd.Before(now) {
		view.HasEnded = true
	}
	return view
}

// HistoryEntry records one maintenance state transition. Never updated or
// deleted.
type HistoryEntry struct {
	ID              int64     `json:"id"`
	Scope           Scope     `json:"scope"`
	Action          string    `json:"action"`
	ActorID         int64     `json:"actor_id"`
	Reason          string    `json:"reason,omitempty"`
	DurationMinutes int       `json:"duration_minutes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Actor identifies the operator performing a mutation, for history and
// audit bookkeeping.
type Actor struct {
	ID    int64
	Email string
}
