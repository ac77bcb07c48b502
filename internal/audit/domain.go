// Package audit provides durable, append-only recording of every mutating
// admin action, plus the filtered read path used by the dashboard.
package audit

import "time"

// Severity tags for audit entries.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Entry is one append-only audit record. Entries are never edited or
// deleted by the application; immutability is enforced at this layer only.
type Entry struct {
	ID         string         `json:"id"`
	ActorID    int64          `json:"actor_id"`
	ActorEmail string         `json:"actor_email"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
	IP         string         `json:"ip,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Severity   string         `json:"severity"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// TimelineFilters narrow the audit read path.
type TimelineFilters struct {
	From       time.Time
	To         time.Time
	ActorEmail string
	Action     string
	TargetType string
	Severity   string
	Page       int
	PageSize   int
}

// PagingInfo describes timeline paging state.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []Entry    `json:"rows"`
	Paging PagingInfo `json:"paging"`
}
