package shared

import "errors"

// Core error taxonomy. Handlers translate these to HTTP statuses in
// platform/httpx; domain code only ever returns or wraps them.
var (
	// ErrForbidden indicates a rank or permission denial.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates an unknown scope, role or target record.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates malformed input such as a bad scope name,
	// a missing confirmation phrase or a bad duration.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict indicates a duplicate unique key.
	ErrConflict = errors.New("conflict")
	// ErrUpstreamUnavailable indicates the store or bot gateway is unreachable.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when the CSRF token is missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
