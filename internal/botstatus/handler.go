package botstatus

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/darklock-sec/darklock-console/internal/identity"
	"github.com/darklock-sec/darklock-console/internal/platform/httpx"
)

// Handler exposes bot monitoring endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   identity.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard identity.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers bot routes. Status reads are open to moderators;
// restarting requires the dedicated permission.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRole(identity.RoleModerator))
		r.Get("/status", h.status)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(identity.PermBotRestart))
		r.Post("/restart", h.restart)
	})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.Status(r.Context()))
}

type restartRequest struct {
	Confirmation string `json:"confirmation"`
}

func (h *Handler) restart(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.OperatorFromContext(r.Context())
	var req restartRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed json body")
		return
	}
	if err := h.service.Restart(r.Context(), actor, req.Confirmation); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"restarting": true})
}
