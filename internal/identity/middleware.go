package identity

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/darklock-sec/darklock-console/internal/platform/httpx"
	"github.com/darklock-sec/darklock-console/internal/shared"
)

type operatorContextKey struct{}

// ContextWithOperator stores the operator in context.
func ContextWithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, op)
}

// OperatorFromContext extracts the operator loaded by RequireOperator.
func OperatorFromContext(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(operatorContextKey{}).(Operator)
	return op, ok
}

// OperatorLoader fetches the current operator record.
type OperatorLoader interface {
	GetOperator(ctx context.Context, id int64) (Operator, error)
}

// Middleware wires access control guards for HTTP handlers.
type Middleware struct {
	Evaluator *Evaluator
	Operators OperatorLoader
	Logger    *slog.Logger
}

// RequireOperator rebuilds the operator identity from the session plus one
// store lookup. No caching across requests: a demoted or deactivated
// operator is rejected on their next request.
func (m Middleware) RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || strings.TrimSpace(sess.Operator()) == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "operator session required")
			return
		}
		id, err := strconv.ParseInt(strings.TrimSpace(sess.Operator()), 10, 64)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("parse operator id", slog.String("value", sess.Operator()))
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "operator session required")
			return
		}
		op, err := m.Operators.GetOperator(r.Context(), id)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if !op.IsActive {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "account deactivated")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithOperator(r.Context(), op)))
	})
}

// RequireRole gates a route on the coarse rank ladder.
func (m Middleware) RequireRole(min Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, ok := OperatorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "operator session required")
				return
			}
			decision := m.Evaluator.CheckRank(op, min)
			if !decision.Allowed {
				httpx.ProblemWith(w, http.StatusForbidden, "Forbidden", "insufficient permissions", map[string]any{
					"required": decision.RequiredNames,
					"actual":   decision.Actual,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission gates a route on a fine-grained permission key.
func (m Middleware) RequirePermission(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, ok := OperatorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "operator session required")
				return
			}
			decision, err := m.Evaluator.CheckPermission(r.Context(), op, key)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("check permission", slog.String("key", key), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if !decision.Allowed {
				httpx.ProblemWith(w, http.StatusForbidden, "Forbidden", "insufficient permissions", map[string]any{
					"permission_key": decision.PermissionKey,
					"actual":         decision.Actual,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
