package rag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments owned by the Engine.
type Metrics struct {
	// documentsIndexed counts documents written to the vector store.
	documentsIndexed prometheus.Counter

	// indexFailures counts records skipped during indexing, partitioned by
	// reason: "chunk", "embed", "dimension" or "store".
	indexFailures *prometheus.CounterVec

	// searchDuration records the wall-clock time of Engine.Search including
	// query embedding.
	searchDuration prometheus.Histogram

	// citationsDropped counts claimed locators absent from retrieval results.
	citationsDropped prometheus.Counter

	// citationsBackfilled counts locators added from retrieval results to
	// reach the citation minimum.
	citationsBackfilled prometheus.Counter
}

// NewMetrics registers the engine metrics against reg. A nil reg yields
// working but unregistered instruments, which keeps tests hermetic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		documentsIndexed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pmrag",
			Subsystem: "rag",
			Name:      "documents_indexed_total",
			Help:      "Total number of documents written to the vector store.",
		}),

		indexFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pmrag",
			Subsystem: "rag",
			Name:      "index_failures_total",
			Help:      "Total number of records that could not be indexed, partitioned by reason.",
		}, []string{"reason"}),

		searchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pmrag",
			Subsystem: "rag",
			Name:      "search_duration_seconds",
			Help:      "Latency of retrieval searches including query embedding.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		}),

		citationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pmrag",
			Subsystem: "rag",
			Name:      "citations_dropped_total",
			Help:      "Total number of claimed locators dropped because no retrieved document carried them.",
		}),

		citationsBackfilled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pmrag",
			Subsystem: "rag",
			Name:      "citations_backfilled_total",
			Help:      "Total number of locators added from retrieval results to reach the citation minimum.",
		}),
	}
}
