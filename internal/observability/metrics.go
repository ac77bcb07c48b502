// Package observability collects Prometheus metrics for the console.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registry and the base HTTP metrics.
type Metrics struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	loginFailures      prometheus.Counter
	maintenanceToggles *prometheus.CounterVec
}

// NewMetrics initializes the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "darklock_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "darklock_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	loginFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "darklock_login_failures_total",
		Help: "Failed operator sign-in attempts.",
	})
	maintenanceToggles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "darklock_maintenance_toggles_total",
		Help: "Maintenance state transitions by scope and action.",
	}, []string{"scope", "action"})
	registry.MustRegister(requests, duration, loginFailures, maintenanceToggles)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		loginFailures:      loginFailures,
		maintenanceToggles: maintenanceToggles,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// CountLoginFailure increments the failed sign-in counter.
func (m *Metrics) CountLoginFailure() {
	if m == nil {
		return
	}
	m.loginFailures.Inc()
}

// CountMaintenanceToggle records one maintenance transition.
func (m *Metrics) CountMaintenanceToggle(scope, action string) {
	if m == nil {
		return
	}
	m.maintenanceToggles.WithLabelValues(scope, action).Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
