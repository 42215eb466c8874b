package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// unmatchedPattern labels requests no route accepted. Labels always carry
// the route pattern, never the raw path, so document IDs stay out of the
// series set.
const unmatchedPattern = "unmatched"

// serverMetrics is created per Server so tests can register it against a
// private registry.
type serverMetrics struct {
	// requests is partitioned by method, handler pattern and status code.
	requests *prometheus.CounterVec

	// latency is partitioned by method and handler pattern.
	latency *prometheus.HistogramVec

	inFlight prometheus.Gauge

	// rateLimited counts 429 replies from the per-IP limiter.
	rateLimited prometheus.Counter
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	f := promauto.With(reg)
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: "pmrag", Subsystem: "http", Name: name, Help: help}
	}

	return &serverMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts(opts("requests_total",
			"HTTP requests served, by method, handler pattern and status code.")),
			[]string{"method", "handler", "code"}),

		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pmrag",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "HTTP request latency, by method and handler pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "handler"}),

		inFlight: f.NewGauge(prometheus.GaugeOpts(opts("in_flight_requests",
			"HTTP requests currently being served."))),

		rateLimited: f.NewCounter(prometheus.CounterOpts(opts("rate_limited_total",
			"Requests rejected by the per-IP rate limiter."))),
	}
}

// instrument counts and times every request under the pattern mux matched.
// r.Pattern is only populated once mux has routed the request.
func (m *serverMetrics) instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		mux.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		pattern := r.Pattern
		if pattern == "" {
			pattern = unmatchedPattern
		}
		m.requests.WithLabelValues(r.Method, pattern, strconv.Itoa(rw.status)).Inc()
		m.latency.WithLabelValues(r.Method, pattern).Observe(elapsed.Seconds())
	})
}
