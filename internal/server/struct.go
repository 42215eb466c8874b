package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/pmrag-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. Index
	// requests embed synchronously, so this bounds the largest batch.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// MaxBodyBytes caps request bodies. Defaults to 16 MiB.
	MaxBodyBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// AfterWrite, when set, runs after every successful index or delete,
	// typically to persist a snapshot. Failures are logged, not returned.
	AfterWrite func(ctx context.Context) error
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// retrievalEngine is the engine surface the handlers call.
// *rag.Engine satisfies it; tests may inject a fake.
type retrievalEngine interface {
	Index(ctx context.Context, records []rag.Record) (int, error)
	Search(ctx context.Context, query string, opts rag.SearchOptions) ([]rag.SearchResult, error)
	ValidateCitations(ctx context.Context, claimed []int, results []rag.SearchResult) rag.CitationReport
	Get(ctx context.Context, id string) (rag.Entry, error)
	Delete(ctx context.Context, ids ...string) (int, error)
	Stats(ctx context.Context) (rag.Stats, error)
}

// Server is the HTTP server that exposes a retrieval engine.
type Server struct {
	// engine answers every /api request.
	engine retrievalEngine
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the HTTP instruments.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	// Query is the natural-language search text.
	Query string `json:"query"`
	// TopK is the result window; zero means the engine default.
	TopK int `json:"top_k,omitempty"`
	// Kinds restricts results to these document kinds.
	Kinds []rag.Kind `json:"kinds,omitempty"`
	// OwnerScope restricts results to one project.
	OwnerScope string `json:"owner_scope,omitempty"`
	// MaxTokens trims the ranked results to an estimated token budget.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// options converts the request into engine search options.
func (r searchRequest) options() rag.SearchOptions {
	return rag.SearchOptions{TopK: r.TopK, Kinds: r.Kinds, OwnerScope: r.OwnerScope}
}

// searchResponse is the JSON response for POST /api/search.
type searchResponse struct {
	// Results are ranked best-first.
	Results []rag.SearchResult `json:"results"`
	// Trimmed counts results dropped to fit MaxTokens.
	Trimmed int `json:"trimmed,omitempty"`
}

// indexRequest is the JSON body for POST /api/index.
type indexRequest struct {
	// Records are the source records to index.
	Records []rag.Record `json:"records"`
}

// indexResponse is the JSON response for POST /api/index.
type indexResponse struct {
	// Submitted is the number of records received.
	Submitted int `json:"submitted"`
	// Indexed is the number of documents written.
	Indexed int `json:"indexed"`
}

// validateRequest is the JSON body for POST /api/citations/validate.
// Either Results or Query must be set; Results wins when both are.
type validateRequest struct {
	searchRequest
	// Claimed lists the locators the consumer intends to cite.
	Claimed []int `json:"claimed"`
	// Results is the batch the claims are grounded against.
	Results []rag.SearchResult `json:"results,omitempty"`
}

// documentResponse is the JSON response for GET /api/documents/{id}.
type documentResponse struct {
	Document  rag.Document `json:"document"`
	Dimension int          `json:"dimension"`
	IndexedAt time.Time    `json:"indexed_at,omitzero"`
	Embedding []float32    `json:"embedding,omitempty"`
}

// errorResponse is the JSON body for every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}
