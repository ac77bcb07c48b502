package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/darklock-sec/darklock-console/internal/audit"
	"github.com/darklock-sec/darklock-console/internal/identity"
	"github.com/darklock-sec/darklock-console/internal/observability"
	"github.com/darklock-sec/darklock-console/internal/platform/httpx"
	"github.com/darklock-sec/darklock-console/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	auditLog       *audit.Logger
	metrics        *observability.Metrics
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, auditLog *audit.Logger, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		auditLog:       auditLog,
		metrics:        metrics,
		validator:      validator.New(),
	}
}

// MountRoutes registers the public auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

// MountSessionRoutes registers routes that require a signed-in operator.
func (h *Handler) MountSessionRoutes(r chi.Router) {
	r.Get("/me", h.handleMe)
	r.Post("/totp/setup", h.handleTOTPSetup)
	r.Post("/totp/confirm", h.handleTOTPConfirm)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	TOTPCode string `json:"totp_code"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}

	creds, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.metrics.CountLoginFailure()
		h.auditLog.Record(r.Context(), audit.Entry{
			ActorEmail: req.Email,
			Action:     "auth.login_failed",
			TargetType: "session",
			IP:         r.RemoteAddr,
			UserAgent:  r.UserAgent(),
			Severity:   audit.SeverityWarning,
		})
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
		return
	}
	if creds.TOTPEnabled && req.TOTPCode == "" {
		httpx.ProblemWith(w, http.StatusUnauthorized, "Unauthorized", "totp code required", map[string]any{
			"totp_required": true,
		})
		return
	}
	if err := h.service.VerifyTOTP(creds, req.TOTPCode); err != nil {
		h.metrics.CountLoginFailure()
		h.auditLog.Record(r.Context(), audit.Entry{
			ActorID:    creds.Operator.ID,
			ActorEmail: creds.Operator.Email,
			Action:     "auth.totp_failed",
			TargetType: "session",
			IP:         r.RemoteAddr,
			UserAgent:  r.UserAgent(),
			Severity:   audit.SeverityWarning,
		})
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "session unavailable")
		return
	}
	sess.SetOperator(strconv.FormatInt(creds.Operator.ID, 10))
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, creds.Operator.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	csrfToken, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Warn("ensure csrf token", slog.Any("error", err))
	}

	h.auditLog.Record(r.Context(), audit.Entry{
		ActorID:    creds.Operator.ID,
		ActorEmail: creds.Operator.Email,
		Action:     "auth.login",
		TargetType: "session",
		TargetID:   sess.ID,
		IP:         r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})

	httpx.JSON(w, http.StatusOK, map[string]any{
		"operator":   operatorView(creds.Operator),
		"csrf_token": csrfToken,
		"expires_at": expiresAt.UTC(),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"logged_out": true})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	op, ok := identity.OperatorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "operator session required")
		return
	}
	httpx.JSON(w, http.StatusOK, operatorView(op))
}

func (h *Handler) handleTOTPSetup(w http.ResponseWriter, r *http.Request) {
	op, ok := identity.OperatorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "operator session required")
		return
	}
	secret, url, err := h.service.BeginTOTPEnrollment(r.Context(), op)
	if err != nil {
		h.logger.Error("totp setup", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"secret": secret, "otpauth_url": url})
}

type totpConfirmRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

func (h *Handler) handleTOTPConfirm(w http.ResponseWriter, r *http.Request) {
	op, ok := identity.OperatorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "operator session required")
		return
	}
	var req totpConfirmRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	if err := h.service.ConfirmTOTPEnrollment(r.Context(), op, req.Code); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.auditLog.Record(r.Context(), audit.Entry{
		ActorID:    op.ID,
		ActorEmail: op.Email,
		Action:     "auth.totp_enabled",
		TargetType: "operator",
		TargetID:   strconv.FormatInt(op.ID, 10),
	})
	httpx.JSON(w, http.StatusOK, map[string]any{"totp_enabled": true})
}

func operatorView(op identity.Operator) map[string]any {
	return map[string]any{
		"id":           op.ID,
		"email":        op.Email,
		"display_name": op.DisplayName,
		"role":         op.Role.String(),
		"rank":         op.Rank(),
	}
}
