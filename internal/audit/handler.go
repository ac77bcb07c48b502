package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/darklock-sec/darklock-console/internal/platform/httpx"
)

// Handler exposes the audit timeline read path. The guard middleware is
// injected prebuilt: every admin package records into this one, so audit
// cannot import the identity guards itself.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   func(http.Handler) http.Handler
}

// NewHandler builds a Handler instance. guard gates the timeline route,
// typically a rank check for admin and above.
func NewHandler(logger *slog.Logger, service *Service, guard func(http.Handler) http.Handler) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers the timeline route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.guard != nil {
			r.Use(h.guard)
		}
		r.Get("/", h.timeline)
	})
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := TimelineFilters{
		ActorEmail: q.Get("actor"),
		Action:     q.Get("action"),
		TargetType: q.Get("target_type"),
		Severity:   q.Get("severity"),
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "from must be RFC3339")
			return
		}
		filters.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "to must be RFC3339")
			return
		}
		filters.To = to
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))

	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
