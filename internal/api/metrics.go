package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const unmatched = "unmatched"

// simulatePattern is the one route whose latency is a whole simulation.
const simulatePattern = "/api/simulate"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsunami_http_requests_total",
			Help: "Total number of HTTP requests by method, route and status.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tsunami_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, excluding simulate.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	simulateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tsunami_http_simulate_duration_seconds",
			Help:    "Wall time of POST /api/simulate, which blocks for the whole run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
	)

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tsunami_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, simulateDuration, httpInFlight)

	for _, route := range []string{"/api/templates", "/api/runs", "/api/run/{run_id}/summary", "/run/{run_id}/plots/{filename}"} {
		httpRequestDuration.WithLabelValues(http.MethodGet, route)
	}
}

// metricsMiddleware records count and duration per chi route pattern, so
// run ids and file names never become label values.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()

		elapsed := time.Since(start).Seconds()
		if path == simulatePattern {
			simulateDuration.Observe(elapsed)
			return
		}
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(elapsed)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatched
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}
