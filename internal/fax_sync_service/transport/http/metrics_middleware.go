package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fax_sync",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Internal API requests by route and status code.",
		},
		[]string{"method", "route", "status_code"},
	)

	// Manual sync and outbound sends can run for minutes.
	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fax_sync",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Internal API request latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 15, 30, 60, 120, 300},
		},
		[]string{"method", "route"},
	)

	apiInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fax_sync",
		Subsystem: "api",
		Name:      "requests_in_flight",
		Help:      "Internal API requests currently being served.",
	})
)

// PrometheusMetricsMiddleware records request counts, latency and concurrency per chi route pattern.
func PrometheusMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiInFlight.Inc()
		defer apiInFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		apiRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		apiRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}
