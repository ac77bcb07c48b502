package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/darklock-sec/darklock-console/internal/shared"
)

// GrantStore provides the permission grant rows for a role.
type GrantStore interface {
	ListGrants(ctx context.Context, role Role) ([]Grant, error)
}

// Evaluator decides whether an operator may perform a requested action.
// It holds no state beyond the grant store; every permission check re-reads
// current grants.
type Evaluator struct {
	grants GrantStore
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(grants GrantStore) *Evaluator {
	return &Evaluator{grants: grants}
}

// CheckRank allows when the operator's rank meets the minimum. Owner is
// always accepted regardless of the stated minimum; this hard-coded bypass
// is relied upon elsewhere (only owner can create co-owner accounts) and
// must not become a configurable grant.
func (e *Evaluator) CheckRank(op Operator, min Role) Decision {
	if op.IsOwner() {
		return allow()
	}
	if op.Rank() >= min.Rank() {
		return allow()
	}
	return denyRank([]Role{min}, op.Role)
}

// CheckRankAny allows when the operator's role is one of the listed roles.
// Owner bypasses as with CheckRank.
func (e *Evaluator) CheckRankAny(op Operator, roles ...Role) Decision {
	if op.IsOwner() {
		return allow()
	}
	for _, r := range roles {
		if op.Role == r {
			return allow()
		}
	}
	return denyRank(roles, op.Role)
}

// CheckPermission allows when the operator's role holds a granted row for
// the exact dotted key or the wildcard. Owner bypasses unconditionally.
// A store failure is returned as an error, distinct from a denial.
func (e *Evaluator) CheckPermission(ctx context.Context, op Operator, key string) (Decision, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return Decision{}, fmt.Errorf("identity: empty permission key: %w", shared.ErrInvalidInput)
	}
	if op.IsOwner() {
		return allow(), nil
	}
	grants, err := e.grants.ListGrants(ctx, op.Role)
	if err != nil {
		return Decision{}, err
	}
	for _, g := range grants {
		if !g.Granted {
			continue
		}
		if g.PermissionKey == WildcardPermission || g.PermissionKey == key {
			return allow(), nil
		}
	}
	return denyPermission(key, op.Role), nil
}

// CheckConfirmation verifies the caller echoed the required literal phrase.
// This is deliberate friction for destructive operations, combined with the
// rank/permission gates and never substituted for them.
func CheckConfirmation(got, phrase string) error {
	if strings.TrimSpace(got) != phrase {
		return fmt.Errorf("identity: confirmation phrase %q required: %w", phrase, shared.ErrInvalidInput)
	}
	return nil
}
