/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend
  5. Telemetry:  Prometheus request counters and latency histograms

ROUTE GROUPS:
  /api/metrics/*      Aggregated metric records
  /api/anomalies/*    Rule findings, live and enriched
  /api/narrative      Generated summaries
  /api/config/*       Threshold overrides and narrative settings
  /api/import         Bulk timesheet import
  /api/periods        Months with data
  /api/scenarios/*    Demo scenarios
  /metrics            Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(telemetry)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Metric routes
		r.Route("/metrics", func(r chi.Router) {
			r.Get("/", h.GetMetrics)
			r.Get("/batch", h.GetMetricsBatch)
			r.Get("/snapshot", h.GetMetricSnapshot)
		})

		// Anomaly routes
		r.Route("/anomalies", func(r chi.Router) {
			r.Get("/", h.GetFindings)
			r.Get("/enriched", h.GetEnrichedFindings)
			r.Post("/refresh", h.RefreshFindings)
		})

		// Narrative route
		r.Get("/narrative", h.GetNarrative)

		// Configuration routes
		r.Route("/config", func(r chi.Router) {
			r.Get("/rules", h.GetRules)
			r.Put("/rules", h.PutOverrides)
			r.Get("/narrative", h.GetNarrativeConfig)
			r.Put("/narrative", h.PutNarrativeConfig)
		})

		// Data routes
		r.Post("/import", h.Import)
		r.Get("/periods", h.GetPeriods)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	// Prometheus scrape endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// =============================================================================
// REQUEST TELEMETRY
// =============================================================================

var (
	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_http_requests_total",
		Help: "HTTP requests by route pattern, method and status.",
	}, []string{"route", "method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "insights_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// telemetry records a counter and latency observation per request, labeled
// with the chi route pattern rather than the raw URL.
func telemetry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		requestTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		requestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
