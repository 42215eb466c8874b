// Package ingestion loads source material into the retrieval engine: a JSON
// records database of projects, tasks, risks and issues, and long-form
// reference documents (markdown plus an optional layout.json page index)
// read from disk or fetched over HTTP. This pipeline backs the
// `pmrag index` command and the HTTP index route.
package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/54b3r/pmrag-go/internal/chunker"
	"github.com/54b3r/pmrag-go/internal/logging"
	"github.com/54b3r/pmrag-go/internal/rag"
)

// Indexer is the write side of the retrieval engine. *rag.Engine satisfies it.
type Indexer interface {
	// Index chunks, embeds and stores records.
	Index(ctx context.Context, records []rag.Record) (int, error)

	// IndexDocuments embeds and stores already-chunked documents.
	IndexDocuments(ctx context.Context, docs []rag.Document) (int, error)
}

// ReferenceSource describes one reference document to ingest.
type ReferenceSource struct {
	// Location is a file path or HTTP(S) URL of the markdown text.
	Location string

	// Layout is an optional file path or URL of the matching layout.json.
	// Without it sections carry no page locator.
	Layout string

	// Name labels the source in chunk IDs and attributes. Inferred from
	// Location when empty.
	Name string
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// HTTPTimeout is the timeout for each fetch request. Defaults to 30s.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string

	// MaxBytes caps the size of any one input. Defaults to 64 MiB.
	MaxBytes int64
}

// Result summarizes one Ingest call.
type Result struct {
	// Records is the number of record documents indexed.
	Records int `json:"records"`

	// Sections is the number of reference sections indexed.
	Sections int `json:"sections"`
}

// Pipeline orchestrates the read → chunk → index flow.
type Pipeline struct {
	// indexer receives the parsed records and chunked sections.
	indexer Indexer

	// chunker splits reference documents into sections.
	chunker *chunker.Chunker

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// httpClient is the HTTP client used for fetching remote sources.
	httpClient *http.Client
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(indexer Indexer, ch *chunker.Chunker, cfg *Config) (*Pipeline, error) {
	if indexer == nil {
		return nil, fmt.Errorf("ingestion: indexer must not be nil")
	}
	if ch == nil {
		return nil, fmt.Errorf("ingestion: chunker must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "pmrag-go/1.0 (reference document ingestion)"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 64 << 20
	}

	return &Pipeline{
		indexer: indexer,
		chunker: ch,
		cfg:     cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}, nil
}

// Ingest indexes the records database at recordsPath (skipped when empty)
// and then every reference source, in order. It stops at the first source
// that cannot be read; per-record failures are handled by the indexer.
func (p *Pipeline) Ingest(ctx context.Context, recordsPath string, refs []ReferenceSource) (Result, error) {
	var res Result
	if recordsPath != "" {
		n, err := p.IngestRecords(ctx, recordsPath)
		if err != nil {
			return res, err
		}
		res.Records = n
	}
	for _, ref := range refs {
		n, err := p.IngestReference(ctx, ref)
		if err != nil {
			return res, err
		}
		res.Sections += n
	}
	return res, nil
}

// IngestRecords reads a records database and indexes every record in it.
func (p *Pipeline) IngestRecords(ctx context.Context, location string) (int, error) {
	data, err := p.read(ctx, location)
	if err != nil {
		return 0, fmt.Errorf("ingestion: read records %s: %w", location, err)
	}
	records, err := ParseRecords(data)
	if err != nil {
		return 0, err
	}

	n, err := p.indexer.Index(ctx, records)
	if err != nil {
		return n, fmt.Errorf("ingestion: index records: %w", err)
	}
	logging.FromContext(ctx).Info("ingestion: records indexed",
		slog.String("source", location),
		slog.Int("records", len(records)),
		slog.Int("indexed", n),
	)
	return n, nil
}

// IngestReference reads one reference document, assigns pages from its
// layout when given, and indexes the resulting sections.
func (p *Pipeline) IngestReference(ctx context.Context, src ReferenceSource) (int, error) {
	text, err := p.read(ctx, src.Location)
	if err != nil {
		return 0, fmt.Errorf("ingestion: read reference %s: %w", src.Location, err)
	}

	var pages chunker.PageIndex
	if src.Layout != "" {
		raw, err := p.read(ctx, src.Layout)
		if err != nil {
			return 0, fmt.Errorf("ingestion: read layout %s: %w", src.Layout, err)
		}
		pages, err = chunker.ParseLayout(raw)
		if err != nil {
			return 0, fmt.Errorf("ingestion: parse layout %s: %w", src.Layout, err)
		}
	}

	name := src.Name
	if name == "" {
		name = SourceName(src.Location)
	}

	docs := p.chunker.ChunkReferenceDocument(name, string(text), pages)
	n, err := p.indexer.IndexDocuments(ctx, docs)
	if err != nil {
		return n, fmt.Errorf("ingestion: index reference %s: %w", name, err)
	}
	logging.FromContext(ctx).Info("ingestion: reference document indexed",
		slog.String("source", name),
		slog.Int("sections", n),
		slog.Int("pages", len(pages)),
	)
	return n, nil
}

// read returns the bytes at location, fetching over HTTP for http(s) URLs
// and reading from disk otherwise.
func (p *Pipeline) read(ctx context.Context, location string) ([]byte, error) {
	if isURL(location) {
		return p.fetch(ctx, location)
	}
	f, err := os.Open(location)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLimited(f, p.cfg.MaxBytes)
}

// fetch retrieves the raw body of a URL.
func (p *Pipeline) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/markdown, text/plain, application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}
	return readLimited(resp.Body, p.cfg.MaxBytes)
}

// readLimited reads r fully, failing if it exceeds limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("input exceeds %d bytes", limit)
	}
	return data, nil
}

// isURL reports whether location is an http(s) URL.
func isURL(location string) bool {
	u, err := url.Parse(location)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// SourceName derives a short source label from a path or URL: the base name
// without extension, with a trailing "full" or "_full" segment (as written
// by PDF layout extractors) replaced by the parent directory name.
//
//	/data/pmbok/full.md           → pmbok
//	https://x.test/docs/guide.md  → guide
func SourceName(location string) string {
	var dir, base string
	if isURL(location) {
		u, _ := url.Parse(location)
		dir, base = path.Split(strings.TrimSuffix(u.Path, "/"))
		if base == "" {
			return u.Hostname()
		}
	} else {
		dir, base = filepath.Split(location)
	}

	name := strings.TrimSuffix(base, path.Ext(base))
	name = strings.TrimSuffix(name, "_full")
	if name == "" || name == "full" {
		parent := path.Base(filepath.ToSlash(strings.TrimRight(dir, `/\`)))
		if parent != "." && parent != "/" && parent != "" {
			return parent
		}
		if name == "" {
			return "reference"
		}
	}
	return name
}
