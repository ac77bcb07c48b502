// Package announce manages operator-authored announcements shown on the
// customer-facing surfaces, with optional Discord fan-out on publish.
package announce

import "time"

// Announcement is one notice. Body text is sanitized before storage; a nil
// PublishedAt means draft.
type Announcement struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Pinned      bool       `json:"pinned"`
	PublishedAt *time.Time `json:"published_at"`
	CreatedBy   int64      `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Published reports whether the announcement is live.
func (a Announcement) Published() bool {
	return a.PublishedAt != nil
}
