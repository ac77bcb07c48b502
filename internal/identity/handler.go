package identity

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/darklock-sec/darklock-console/internal/platform/httpx"
	"github.com/darklock-sec/darklock-console/internal/shared"
)

// Handler manages operator administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers operator administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRole(RoleAdmin))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Patch("/{id}", h.update)
		r.Post("/{id}/reset-password", h.resetPassword)
		r.Post("/{id}/revoke-sessions", h.revokeSessions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(PermAccountsDelete))
		r.Delete("/{id}", h.delete)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRole(RoleOwner))
		r.Get("/grants/{role}", h.listGrants)
		r.Put("/grants", h.setGrant)
	})
}

type operatorView struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Rank        int    `json:"rank"`
	IsActive    bool   `json:"is_active"`
}

func toView(op Operator) operatorView {
	return operatorView{
		ID:          op.ID,
		Email:       op.Email,
		DisplayName: op.DisplayName,
		Role:        op.Role.String(),
		Rank:        op.Rank(),
		IsActive:    op.IsActive,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	operators, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list operators", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]operatorView, 0, len(operators))
	for _, op := range operators {
		views = append(views, toView(op))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"operators": views})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	op, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(op))
}

type createOperatorRequest struct {
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"display_name" validate:"max=120"`
	Password    string `json:"password" validate:"required,min=8"`
	Role        string `json:"role" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, _ := OperatorFromContext(r.Context())
	var req createOperatorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), actor, CreateInput{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
		Role:        role,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toView(created))
}

type updateOperatorRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=120"`
	Role        *string `json:"role"`
	IsActive    *bool   `json:"is_active"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, _ := OperatorFromContext(r.Context())
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateOperatorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	input := UpdateInput{DisplayName: req.DisplayName, IsActive: req.IsActive}
	if req.Role != nil {
		role, err := ParseRole(*req.Role)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.Role = &role
	}
	updated, err := h.service.Update(r.Context(), actor, id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(updated))
}

type deleteOperatorRequest struct {
	Confirmation string `json:"confirmation"`
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, _ := OperatorFromContext(r.Context())
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req deleteOperatorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed json body")
		return
	}
	if err := h.service.Delete(r.Context(), actor, id, req.Confirmation); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": id})
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	actor, _ := OperatorFromContext(r.Context())
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req resetPasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	if err := h.service.ResetPassword(r.Context(), actor, id, req.Password); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reset": id})
}

func (h *Handler) revokeSessions(w http.ResponseWriter, r *http.Request) {
	actor, _ := OperatorFromContext(r.Context())
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RevokeSessions(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"revoked": id})
}

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	grants, err := h.service.Grants(r.Context(), role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	type grantView struct {
		Role    string `json:"role"`
		Key     string `json:"permission_key"`
		Granted bool   `json:"granted"`
	}
	views := make([]grantView, 0, len(grants))
	for _, g := range grants {
		views = append(views, grantView{Role: g.Role.String(), Key: g.PermissionKey, Granted: g.Granted})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"grants": views})
}

type setGrantRequest struct {
	Role          string `json:"role" validate:"required"`
	PermissionKey string `json:"permission_key" validate:"required"`
	Granted       bool   `json:"granted"`
}

func (h *Handler) setGrant(w http.ResponseWriter, r *http.Request) {
	actor, _ := OperatorFromContext(r.Context())
	var req setGrantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.SetGrant(r.Context(), actor, Grant{Role: role, PermissionKey: req.PermissionKey, Granted: req.Granted}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": role.String(), "permission_key": req.PermissionKey, "granted": req.Granted})
}

func (h *Handler) pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, shared.ErrInvalidInput
	}
	return id, nil
}
