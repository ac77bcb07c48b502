package announce

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/darklock-sec/darklock-console/internal/identity"
	"github.com/darklock-sec/darklock-console/internal/platform/httpx"
	"github.com/darklock-sec/darklock-console/internal/shared"
)

// Handler exposes announcement administration endpoints.
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

// MountRoutes registers announcement routes. Moderators can draft and
// edit; publishing and deleting need admin rank.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRole(identity.RoleModerator))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Patch("/{id}", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRole(identity.RoleAdmin))
		r.Post("/{id}/publish", h.publish)
		r.Post("/{id}/unpublish", h.unpublish)
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	includeDrafts := r.URL.Query().Get("drafts") == "true"
	items, err := h.service.List(r.Context(), includeDrafts)
	if err != nil {
		h.logger.Error("list announcements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"announcements": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

type createRequest struct {
	Title  string `json:"title" validate:"required,max=200"`
	Body   string `json:"body" validate:"max=8000"`
	Pinned bool   `json:"pinned"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), h.actor(r), CreateInput{
		Title:  req.Title,
		Body:   req.Body,
		Pinned: req.Pinned,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

type updateRequest struct {
	Title  *string `json:"title" validate:"omitempty,max=200"`
	Body   *string `json:"body" validate:"omitempty,max=8000"`
	Pinned *bool   `json:"pinned"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	updated, err := h.service.Update(r.Context(), h.actor(r), id, UpdateInput{
		Title:  req.Title,
		Body:   req.Body,
		Pinned: req.Pinned,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

type publishRequest struct {
	NotifyDiscord bool `json:"notify_discord"`
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req publishRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed json body")
		return
	}
	published, err := h.service.Publish(r.Context(), h.actor(r), id, req.NotifyDiscord)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, published)
}

func (h *Handler) unpublish(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := h.service.Unpublish(r.Context(), h.actor(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), h.actor(r), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (h *Handler) actor(r *http.Request) Actor {
	op, _ := identity.OperatorFromContext(r.Context())
	return Actor{ID: op.ID, Email: op.Email}
}

func (h *Handler) pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, shared.ErrInvalidInput
	}
	return id, nil
}
