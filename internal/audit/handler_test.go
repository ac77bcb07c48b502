package audit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/darklock-sec/darklock-console/testing"
)

func newTimelineRouter(repo *stubTimelineRepo, guard func(http.Handler) http.Handler) http.Handler {
	h := NewHandler(slog.Default(), NewService(repo), guard)
	r := chi.NewRouter()
	r.Route("/admin/audit", h.MountRoutes)
	return r
}

func TestTimelineRouteUsesInjectedGuard(t *testing.T) {
	denyAll := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
	router := newTimelineRouter(&stubTimelineRepo{rows: entries(3)}, denyAll)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/audit/", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTimelineRouteServesFilteredPage(t *testing.T) {
	repo := &stubTimelineRepo{rows: entries(3)}
	passThrough := func(next http.Handler) http.Handler { return next }
	router := newTimelineRouter(repo, passThrough)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/audit/?actor=ops@darklock.test&severity=critical&page_size=2", nil)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Len(t, result.Rows, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, "ops@darklock.test", repo.lastFilters.ActorEmail)
	assert.Equal(t, "critical", repo.lastFilters.Severity)
}

func TestTimelineRouteRejectsBadTimeWindow(t *testing.T) {
	router := newTimelineRouter(&stubTimelineRepo{}, func(next http.Handler) http.Handler { return next })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/audit/?from=yesterday", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
