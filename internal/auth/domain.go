// Package auth implements operator sign-in: password verification, optional
// TOTP second factor and session bookkeeping.
package auth

import (
	"github.com/darklock-sec/darklock-console/internal/identity"
)

// Credentials pairs an operator with their stored secrets. Secrets never
// leave this package.
type Credentials struct {
	Operator     identity.Operator
	PasswordHash string
	TOTPSecret   string
	TOTPEnabled  bool
}
