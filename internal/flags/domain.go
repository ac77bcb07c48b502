// Package flags manages runtime feature flags, including kill switches that
// gate on a dedicated permission rather than rank alone.
package flags

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/darklock-sec/darklock-console/internal/shared"
)

// Flag is one runtime toggle. Kill switches disable whole subsystems and
// require an explicit permission grant to flip.
type Flag struct {
	ID           int64     `json:"id"`
	Key          string    `json:"key"`
	Description  string    `json:"description"`
	Enabled      bool      `json:"enabled"`
	IsKillSwitch bool      `json:"is_kill_switch"`
	UpdatedBy    int64     `json:"updated_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

var keyPattern = regexp.MustCompile(`^[a-z0-9]+(\.[a-z0-9_-]+)*$`)

// ParseKey validates the dotted lowercase flag key format.
func ParseKey(raw string) (string, error) {
	key := strings.TrimSpace(strings.ToLower(raw))
	if key == "" || len(key) > 128 || !keyPattern.MatchString(key) {
		return "", fmt.Errorf("flags: invalid flag key %q: %w", raw, shared.ErrInvalidInput)
	}
	return key, nil
}
