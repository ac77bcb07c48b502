package maintenance

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/darklock-sec/darklock-console/internal/identity"
	"github.com/darklock-sec/darklock-console/internal/platform/httpx"
)

// Handler exposes the maintenance orchestration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     identity.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard identity.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers maintenance routes. Reads are open to any
// moderator and up; mutations require the maintenance edit permission.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRole(identity.RoleModerator))
		r.Get("/", h.listAll)
		r.Get("/pending", h.listPending)
		r.Get("/{scope}", h.get)
		r.Get("/{scope}/history", h.history)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(identity.PermMaintenanceEdit))
		r.Put("/{scope}", h.upsert)
		r.Post("/{scope}/status", h.addStatus)
		r.Post("/{scope}/extend", h.extend)
	})
}

func (h *Handler) listAll(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListAll(r.Context())
	if err != nil {
		h.logger.Error("list maintenance scopes", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"scopes": views})
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListPending(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"scopes": views})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	scope, err := ParseScope(chi.URLParam(r, "scope"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	record, err := h.service.Get(r.Context(), scope)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewView(record, time.Now().UTC()))
}

type upsertRequest struct {
	Enabled         *bool      `json:"enabled"`
	Title           *string    `json:"title" validate:"omitempty,max=200"`
	Subtitle        *string    `json:"subtitle" validate:"omitempty,max=200"`
	Message         *string    `json:"message" validate:"omitempty,max=4000"`
	ScheduledStart  *time.Time `json:"scheduled_start"`
	ScheduledEnd    *time.Time `json:"scheduled_end"`
	DurationMinutes *int       `json:"duration_minutes"`
	AdminBypass     *bool      `json:"admin_bypass"`
	ApplyLocalhost  *bool      `json:"apply_localhost"`
	BypassIPs       []string   `json:"bypass_ips"`
	DiscordAnnounce *bool      `json:"discord_announce"`
	Reason          string     `json:"reason" validate:"max=500"`
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	scope, err := ParseScope(chi.URLParam(r, "scope"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req upsertRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	record, err := h.service.Upsert(r.Context(), scope, UpsertInput{
		Enabled:         req.Enabled,
		Title:           req.Title,
		Subtitle:        req.Subtitle,
		Message:         req.Message,
		ScheduledStart:  req.ScheduledStart,
		ScheduledEnd:    req.ScheduledEnd,
		DurationMinutes: req.DurationMinutes,
		AdminBypass:     req.AdminBypass,
		ApplyLocalhost:  req.ApplyLocalhost,
		BypassIPs:       req.BypassIPs,
		DiscordAnnounce: req.DiscordAnnounce,
		Reason:          req.Reason,
	}, h.actor(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewView(record, time.Now().UTC()))
}

type statusRequest struct {
	Message string `json:"message" validate:"required,max=1000"`
}

func (h *Handler) addStatus(w http.ResponseWriter, r *http.Request) {
	scope, err := ParseScope(chi.URLParam(r, "scope"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	record, err := h.service.AddStatusUpdate(r.Context(), scope, req.Message, h.actor(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"scope": record.Scope, "status_updates": record.StatusUpdates})
}

type extendRequest struct {
	Minutes int `json:"minutes" validate:"required,gt=0"`
}

func (h *Handler) extend(w http.ResponseWriter, r *http.Request) {
	scope, err := ParseScope(chi.URLParam(r, "scope"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req extendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	record, err := h.service.Extend(r.Context(), scope, req.Minutes, h.actor(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewView(record, time.Now().UTC()))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	scope, err := ParseScope(chi.URLParam(r, "scope"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.History(r.Context(), scope, 50)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (h *Handler) actor(r *http.Request) Actor {
	op, _ := identity.OperatorFromContext(r.Context())
	return Actor{ID: op.ID, Email: op.Email}
}
