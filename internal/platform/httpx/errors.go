package httpx

import (
	"errors"
	"net/http"

	"github.com/darklock-sec/darklock-console/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrInvalidInput):
		Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrUpstreamUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Upstream Unavailable", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
