// Package identity owns operator accounts, the role ladder and the access
// control evaluator used to guard every admin surface.
package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/darklock-sec/darklock-console/internal/shared"
)

// Role is the closed set of operator tiers. The numeric rank is a total
// order: a strictly greater rank implies a strictly greater privilege set
// unless a permission grant overrides it.
type Role int

const (
	RoleHelper Role = iota
	RoleModerator
	RoleAdmin
	RoleCoOwner
	RoleOwner
)

var roleNames = map[Role]string{
	RoleHelper:    "helper",
	RoleModerator: "moderator",
	RoleAdmin:     "admin",
	RoleCoOwner:   "co-owner",
	RoleOwner:     "owner",
}

var roleRanks = map[Role]int{
	RoleHelper:    30,
	RoleModerator: 50,
	RoleAdmin:     70,
	RoleCoOwner:   90,
	RoleOwner:     100,
}

// String returns the canonical role name.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// Rank returns the numeric rank for the role.
func (r Role) Rank() int {
	return roleRanks[r]
}

// ParseRole resolves a role name to its enum value.
func ParseRole(name string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "helper":
		return RoleHelper, nil
	case "moderator":
		return RoleModerator, nil
	case "admin":
		return RoleAdmin, nil
	case "co-owner", "coowner":
		return RoleCoOwner, nil
	case "owner":
		return RoleOwner, nil
	default:
		return 0, fmt.Errorf("identity: unknown role %q: %w", name, shared.ErrNotFound)
	}
}

// AllRoles lists every role in rank ascending order.
func AllRoles() []Role {
	return []Role{RoleHelper, RoleModerator, RoleAdmin, RoleCoOwner, RoleOwner}
}

// WildcardPermission grants every permission key for a role.
const WildcardPermission = "*"

// Fine-grained permission keys that do not map onto the rank ladder.
const (
	PermAccountsDelete  = "accounts.delete"
	PermFlagsKillswitch = "flags.killswitch"
	PermMaintenanceEdit = "maintenance.edit"
	PermBotRestart      = "bot.restart"
)

// Operator is the authenticated actor. It lives for exactly one request:
// rebuilt from a verified session plus one store lookup every time, so a
// demoted or deactivated operator loses access on the very next request.
type Operator struct {
	ID          int64
	Email       string
	DisplayName string
	Role        Role
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Rank returns the operator's derived numeric rank.
func (o Operator) Rank() int {
	return o.Role.Rank()
}

// IsOwner reports whether the operator holds the absolute-bypass role.
func (o Operator) IsOwner() bool {
	return o.Role == RoleOwner
}

// Grant is one (role, permission-key, granted) row. At most one row exists
// per pair; later writes overwrite via upsert.
type Grant struct {
	Role          Role
	PermissionKey string
	Granted       bool
	UpdatedAt     time.Time
}

// Decision is the structured result of an access check. Denials carry the
// requirement so the client UI can explain the failure.
type Decision struct {
	Allowed       bool     `json:"allowed"`
	Required      []Role   `json:"-"`
	RequiredNames []string `json:"required,omitempty"`
	Actual        string   `json:"actual,omitempty"`
	PermissionKey string   `json:"permission_key,omitempty"`
}

func allow() Decision {
	return Decision{Allowed: true}
}

func denyRank(required []Role, actual Role) Decision {
	names := make([]string, 0, len(required))
	for _, r := range required {
		names = append(names, r.String())
	}
	return Decision{Allowed: false, Required: required, RequiredNames: names, Actual: actual.String()}
}

func denyPermission(key string, actual Role) Decision {
	return Decision{Allowed: false, PermissionKey: key, Actual: actual.String()}
}
