package flags

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/darklock-sec/darklock-console/internal/identity"
	"github.com/darklock-sec/darklock-console/internal/platform/httpx"
)

// Handler exposes feature flag administration endpoints.
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

// MountRoutes registers flag routes. Kill switch checks happen in the
// service layer where the flag's stored type is known.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRole(identity.RoleAdmin))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{key}", h.get)
		r.Patch("/{key}", h.update)
		r.Delete("/{key}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list flags", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"flags": all})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	flag, err := h.service.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, flag)
}

type createFlagRequest struct {
	Key          string `json:"key" validate:"required,max=128"`
	Description  string `json:"description" validate:"max=500"`
	Enabled      bool   `json:"enabled"`
	IsKillSwitch bool   `json:"is_kill_switch"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.OperatorFromContext(r.Context())
	var req createFlagRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), actor, CreateInput{
		Key:          req.Key,
		Description:  req.Description,
		Enabled:      req.Enabled,
		IsKillSwitch: req.IsKillSwitch,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

type updateFlagRequest struct {
	Enabled     *bool   `json:"enabled"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.OperatorFromContext(r.Context())
	key := chi.URLParam(r, "key")
	var req updateFlagRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	var (
		flag Flag
		err  error
	)
	if req.Description != nil {
		flag, err = h.service.UpdateDescription(r.Context(), actor, key, *req.Description)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	if req.Enabled != nil {
		flag, err = h.service.SetEnabled(r.Context(), actor, key, *req.Enabled)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	if req.Description == nil && req.Enabled == nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "nothing to update")
		return
	}
	httpx.JSON(w, http.StatusOK, flag)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.OperatorFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor, chi.URLParam(r, "key")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": chi.URLParam(r, "key")})
}
