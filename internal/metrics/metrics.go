// Package metrics exposes Prometheus collectors for the HTTP layer, the
// document store and the session table.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ourworld_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ourworld_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	storeWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ourworld_store_writes_total",
		Help: "Store document replacements, by result.",
	}, []string{"result"})

	storeWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ourworld_store_write_duration_seconds",
		Help:    "Time to durably replace the store document, retries included.",
		Buckets: prometheus.DefBuckets,
	})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ourworld_sessions_active",
		Help: "Sessions currently held in memory (expired entries included until evicted).",
	})

	loginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ourworld_login_attempts_total",
		Help: "Login attempts, by result.",
	}, []string{"result"})
)

// Middleware records request metrics labelled by chi route pattern.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			// The route pattern is only complete after routing ran.
			route := routePattern(r)
			httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStoreWrite records one replace of the store document.
func ObserveStoreWrite(err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeWritesTotal.WithLabelValues(result).Inc()
	storeWriteDuration.Observe(d.Seconds())
}

// SetActiveSessions publishes the size of the session table.
func SetActiveSessions(n int) {
	sessionsActive.Set(float64(n))
}

// ObserveLogin counts a login attempt; result is "ok", "rejected" or "throttled".
func ObserveLogin(result string) {
	loginAttemptsTotal.WithLabelValues(result).Inc()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	// Unmatched paths would otherwise create one series per URL.
	return "unmatched"
}
