package embedder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fallback reasons recorded on the fallback counter.
const (
	reasonError     = "error"
	reasonTimeout   = "timeout"
	reasonDimension = "dimension"
)

// Metrics holds the Prometheus instruments owned by the Adapter.
type Metrics struct {
	// fallbacks counts texts embedded locally because the provider failed,
	// partitioned by reason.
	fallbacks *prometheus.CounterVec

	// providerDuration records the latency of primary provider calls.
	providerDuration *prometheus.HistogramVec
}

// NewMetrics registers the embedder metrics against reg. A nil reg yields
// unregistered instruments.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pmrag",
			Subsystem: "embedder",
			Name:      "fallback_total",
			Help:      "Total number of texts embedded by the local fallback, partitioned by the provider failure reason.",
		}, []string{"reason"}),

		providerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pmrag",
			Subsystem: "embedder",
			Name:      "provider_duration_seconds",
			Help:      "Latency of embedding provider batch calls.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"provider", "status"}),
	}
}
