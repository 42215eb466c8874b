package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/54b3r/pmrag-go/internal/logging"
)

// DefaultTopK is the number of results returned when a caller does not ask
// for a specific window.
const DefaultTopK = 5

// EngineConfig holds the dependencies for an Engine.
type EngineConfig struct {
	// Embedder produces vectors for documents and queries. Wrap external
	// providers in the embedder adapter so failures fall back locally.
	Embedder Embedder

	// Store is the vector storage backend.
	Store VectorStore

	// Chunker formats records into documents for Index.
	Chunker RecordChunker

	// DefaultTopK is used when SearchOptions.TopK is zero. Defaults to 5.
	DefaultTopK int

	// MinCitations is the backfill target for ValidateCitations. Defaults to 2.
	MinCitations int

	// Metrics is optional; nil disables engine metrics.
	Metrics *Metrics
}

// SearchOptions narrows and sizes a search.
type SearchOptions struct {
	// TopK is the maximum number of results. Zero means the engine default.
	TopK int

	// Kinds restricts results to these kinds; empty means any.
	Kinds []Kind

	// OwnerScope restricts results to one owner scope when non-empty.
	OwnerScope string
}

// Stats summarizes the contents of the index.
type Stats struct {
	TotalDocuments int            `json:"total_documents"`
	Kinds          map[string]int `json:"kinds"`
	OwnerScopes    map[string]int `json:"owner_scopes"`
	Dimension      int            `json:"dimension"`
	LastIndexed    time.Time      `json:"last_indexed,omitzero"`
}

// Engine orchestrates chunk → embed → store on the write path and
// embed → rank → filter on the read path. It holds no global state; build
// one per index.
type Engine struct {
	embedder     Embedder
	store        VectorStore
	chunker      RecordChunker
	defaultTopK  int
	minCitations int
	metrics      *Metrics
}

// NewEngine constructs an Engine from cfg.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("rag: embedder is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("rag: vector store is required")
	}
	if cfg.Chunker == nil {
		return nil, fmt.Errorf("rag: record chunker is required")
	}

	e := &Engine{
		embedder:     cfg.Embedder,
		store:        cfg.Store,
		chunker:      cfg.Chunker,
		defaultTopK:  cfg.DefaultTopK,
		minCitations: cfg.MinCitations,
		metrics:      cfg.Metrics,
	}
	if e.defaultTopK <= 0 {
		e.defaultTopK = DefaultTopK
	}
	if e.minCitations <= 0 {
		e.minCitations = DefaultMinCitations
	}
	return e, nil
}

// Store returns the engine's vector store.
func (e *Engine) Store() VectorStore { return e.store }

// Index chunks each record, embeds the batch in one call, and upserts the
// documents in the order supplied. Records that cannot be chunked are logged
// and skipped. It returns the number of documents written.
//
// A DimensionMismatchError from the store aborts the batch and is returned;
// it signals a misconfigured embedder, not a bad record.
func (e *Engine) Index(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	log := logging.FromContext(ctx)
	docs := make([]Document, 0, len(records))
	for _, rec := range records {
		doc, err := e.chunker.ChunkRecord(rec)
		if err != nil {
			log.Warn("rag: skipping record",
				slog.String("record_id", rec.ID),
				slog.String("kind", string(rec.Kind)),
				slog.String("error", err.Error()),
			)
			e.countFailure("chunk", 1)
			continue
		}
		docs = append(docs, doc)
	}

	return e.IndexDocuments(ctx, docs)
}

// IndexDocuments embeds and upserts already-chunked documents, such as the
// sections produced from a reference document. Documents repeating an ID
// within the batch collapse to the last one, so the count returned is the
// number of distinct entries written.
func (e *Engine) IndexDocuments(ctx context.Context, docs []Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	if unique := dedupeByID(docs); len(unique) != len(docs) {
		logging.FromContext(ctx).Debug("rag: collapsed repeated document ids",
			slog.Int("submitted", len(docs)),
			slog.Int("distinct", len(unique)),
		)
		docs = unique
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}

	embeddings, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		e.countFailure("embed", len(docs))
		return 0, fmt.Errorf("rag: embed %d documents: %w", len(docs), err)
	}
	if len(embeddings) != len(docs) {
		e.countFailure("embed", len(docs))
		return 0, fmt.Errorf("rag: embedder returned %d vectors for %d documents", len(embeddings), len(docs))
	}

	if err := e.store.Upsert(ctx, docs, embeddings); err != nil {
		var dimErr *DimensionMismatchError
		if errors.As(err, &dimErr) {
			e.countFailure("dimension", len(docs))
		} else {
			e.countFailure("store", len(docs))
		}
		return 0, fmt.Errorf("rag: upsert: %w", err)
	}

	if e.metrics != nil {
		e.metrics.documentsIndexed.Add(float64(len(docs)))
	}
	logging.FromContext(ctx).Debug("rag: indexed documents", slog.Int("count", len(docs)))
	return len(docs), nil
}

// Search embeds query and returns the ranked results matching opts.
// An empty index yields an empty slice, never an error.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.searchDuration.Observe(time.Since(start).Seconds())
		}
	}()

	topK := opts.TopK
	if topK <= 0 {
		topK = e.defaultTopK
	}

	embeddings, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("rag: embedder returned %d vectors for 1 query", len(embeddings))
	}

	results, err := e.store.Search(ctx, embeddings[0], topK, Filter{Kinds: opts.Kinds, OwnerScope: opts.OwnerScope})
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}
	if results == nil {
		results = []SearchResult{}
	}
	return results, nil
}

// Retrieve implements Retriever with no filters.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	return e.Search(ctx, query, SearchOptions{TopK: topK})
}

// ValidateCitations grounds claimed locators against results using the
// engine's citation minimum.
func (e *Engine) ValidateCitations(ctx context.Context, claimed []int, results []SearchResult) CitationReport {
	report := CheckCitations(claimed, results, e.minCitations)
	logCitationReport(ctx, report)
	if e.metrics != nil {
		e.metrics.citationsDropped.Add(float64(len(report.Dropped)))
		e.metrics.citationsBackfilled.Add(float64(len(report.Backfilled)))
	}
	return report
}

// Get returns the stored entry for id, or ErrNotFound.
func (e *Engine) Get(ctx context.Context, id string) (Entry, error) {
	g, ok := e.store.(interface {
		Get(ctx context.Context, id string) (Entry, error)
	})
	if !ok {
		return Entry{}, fmt.Errorf("rag: get: %T does not support lookups", e.store)
	}
	return g.Get(ctx, id)
}

// Delete removes documents by ID and returns how many were present.
func (e *Engine) Delete(ctx context.Context, ids ...string) (int, error) {
	n, err := e.store.Delete(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("rag: delete: %w", err)
	}
	return n, nil
}

// Stats summarizes the index. Stores that can enumerate entries report the
// full distribution; stores that can only count report totals.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Kinds:       make(map[string]int),
		OwnerScopes: make(map[string]int),
	}
	if d, ok := e.store.(interface{ Dimension() int }); ok {
		stats.Dimension = d.Dimension()
	}

	switch s := e.store.(type) {
	case interface{ Entries() []Entry }:
		for _, entry := range s.Entries() {
			stats.TotalDocuments++
			stats.Kinds[string(entry.Document.Kind)]++
			if entry.Document.OwnerScope != "" {
				stats.OwnerScopes[entry.Document.OwnerScope]++
			}
			if entry.IndexedAt.After(stats.LastIndexed) {
				stats.LastIndexed = entry.IndexedAt
			}
		}
	case interface {
		Count(ctx context.Context) (int, error)
	}:
		n, err := s.Count(ctx)
		if err != nil {
			return Stats{}, fmt.Errorf("rag: stats: %w", err)
		}
		stats.TotalDocuments = n
	default:
		return Stats{}, fmt.Errorf("rag: stats: %T does not support enumeration", e.store)
	}

	return stats, nil
}

// dedupeByID keeps the last document for each ID at the position of its
// first occurrence. docs is returned unchanged when every ID is distinct.
func dedupeByID(docs []Document) []Document {
	pos := make(map[string]int, len(docs))
	var out []Document
	for i, d := range docs {
		if j, seen := pos[d.ID]; seen {
			if out == nil {
				out = slices.Clone(docs[:i])
			}
			out[j] = d
			continue
		}
		pos[d.ID] = len(pos)
		if out != nil {
			out = append(out, d)
		}
	}
	if out == nil {
		return docs
	}
	return out
}

// countFailure records n index failures for reason.
func (e *Engine) countFailure(reason string, n int) {
	if e.metrics != nil {
		e.metrics.indexFailures.WithLabelValues(reason).Add(float64(n))
	}
}
