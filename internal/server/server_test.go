package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/pmrag-go/internal/chunker"
	"github.com/54b3r/pmrag-go/internal/embedder"
	"github.com/54b3r/pmrag-go/internal/logging"
	"github.com/54b3r/pmrag-go/internal/rag"
)

// newTestEngine returns an engine over an in-memory store and the local
// embedder, so handler tests exercise the real read and write paths.
func newTestEngine(t *testing.T) *rag.Engine {
	t.Helper()
	e, err := rag.NewEngine(&rag.EngineConfig{
		Embedder: embedder.NewLocalEmbedder(64),
		Store:    rag.NewMemoryStore(64),
		Chunker:  chunker.New(0, nil),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

// newTestServer builds a Server around engine with an isolated registry.
func newTestServer(t *testing.T, engine retrievalEngine, cfg *Config) (*Server, *prometheus.Registry) {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	reg := prometheus.NewRegistry()
	cfg.MetricsRegistry = reg
	cfg.MetricsGatherer = reg
	s, err := New(engine, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s, reg
}

// do sends a request through the full handler tree.
func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

const indexBody = `{"records": [
  {"id": "R1", "kind": "risk", "owner_scope": "P1", "fields": {"title": "Vendor delay", "description": "supplier may slip", "level": "high"}},
  {"id": "T1", "kind": "task", "owner_scope": "P1", "fields": {"name": "Sign contract", "status": "todo"}},
  {"id": "", "kind": "issue", "fields": {"title": "broken"}}
]}`

func TestHandleIndex_PartialFailure(t *testing.T) {
	t.Parallel()
	var writes atomic.Int32
	s, _ := newTestServer(t, newTestEngine(t), &Config{AfterWrite: func(context.Context) error {
		writes.Add(1)
		return nil
	}})

	w := do(t, s.Handler(), http.MethodPost, "/api/index", indexBody)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp indexResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Submitted != 3 || resp.Indexed != 2 {
		t.Errorf("response = %+v, want 3 submitted / 2 indexed", resp)
	}
	if writes.Load() != 1 {
		t.Errorf("AfterWrite ran %d times, want 1", writes.Load())
	}
}

func TestHandleIndex_AfterWriteSurvivesDisconnect(t *testing.T) {
	t.Parallel()
	var hookErr atomic.Value
	s, _ := newTestServer(t, newTestEngine(t), &Config{AfterWrite: func(ctx context.Context) error {
		hookErr.Store(fmt.Sprint(ctx.Err()))
		return nil
	}})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	req := httptest.NewRequestWithContext(ctx, http.MethodPost, "/api/index", strings.NewReader(indexBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := hookErr.Load(); got != "<nil>" {
		t.Errorf("AfterWrite context error = %v, want <nil>", got)
	}
}

func TestHandleSearch(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, newTestEngine(t), nil)
	h := s.Handler()
	do(t, h, http.MethodPost, "/api/index", indexBody)

	w := do(t, h, http.MethodPost, "/api/search", `{"query": "vendor delay", "kinds": ["risk"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp searchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "risk_R1" {
		t.Errorf("results = %+v, want only risk_R1", resp.Results)
	}
}

func TestHandleSearch_MaxTokensTrims(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, newTestEngine(t), nil)
	h := s.Handler()
	do(t, h, http.MethodPost, "/api/index", indexBody)

	w := do(t, h, http.MethodPost, "/api/search", `{"query": "contract", "max_tokens": 1}`)
	var resp searchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 0 || resp.Trimmed != 2 {
		t.Errorf("results=%d trimmed=%d, want 0 and 2", len(resp.Results), resp.Trimmed)
	}
}

func TestHandleSearch_EmptyIndex(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, newTestEngine(t), nil)

	w := do(t, s.Handler(), http.MethodPost, "/api/search", `{"query": "anything"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"results":[]`) {
		t.Errorf("empty index should return an empty array: %s", w.Body.String())
	}
}

func TestHandleSearch_BadRequests(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, newTestEngine(t), nil)
	cases := map[string]string{
		"invalid json":  `{`,
		"missing query": `{"top_k": 3}`,
		"negative topk": `{"query": "q", "top_k": -1}`,
		"unknown field": `{"query": "q", "limit": 3}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			w := do(t, s.Handler(), http.MethodPost, "/api/search", body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
			var e errorResponse
			if err := json.NewDecoder(w.Body).Decode(&e); err != nil || e.Error == "" {
				t.Errorf("expected JSON error body, got %q", w.Body.String())
			}
		})
	}
}

func TestHandleSearch_BodyTooLarge(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, newTestEngine(t), &Config{MaxBodyBytes: 16})

	w := do(t, s.Handler(), http.MethodPost, "/api/search", `{"query": "`+strings.Repeat("x", 64)+`"}`)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}
}

func TestHandleValidateCitations_WithResults(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, newTestEngine(t), nil)

	body, _ := json.Marshal(map[string]any{
		"claimed": []int{1, 11, 999},
		"results": []rag.SearchResult{
			{Document: rag.Document{ID: "a", Kind: rag.KindReferenceSection, Locator: 11}},
			{Document: rag.Document{ID: "b", Kind: rag.KindReferenceSection, Locator: 1}},
		},
	})
	w := do(t, s.Handler(), http.MethodPost, "/api/citations/validate", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var report rag.CitationReport
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(report.Validated) != 2 || report.Validated[0] != 1 || report.Validated[1] != 11 {
		t.Errorf("validated = %v, want [1 11]", report.Validated)
	}
}

func TestHandleValidateCitations_NeedsResultsOrQuery(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, newTestEngine(t), nil)

	w := do(t, s.Handler(), http.MethodPost, "/api/citations/validate", `{"claimed": [1]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}

	w = do(t, s.Handler(), http.MethodPost, "/api/citations/validate", `{"claimed": [1], "query": "risk"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"validated":[]`) {
		t.Errorf("empty index should validate nothing: %s", w.Body.String())
	}
}

func TestHandleDocuments_GetAndDelete(t *testing.T) {
	t.Parallel()
	var writes atomic.Int32
	s, _ := newTestServer(t, newTestEngine(t), &Config{AfterWrite: func(context.Context) error {
		writes.Add(1)
		return errors.New("disk full")
	}})
	h := s.Handler()
	do(t, h, http.MethodPost, "/api/index", indexBody)

	w := do(t, h, http.MethodGet, "/api/documents/risk_R1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	var doc documentResponse
	if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Document.OwnerScope != "P1" || doc.Dimension != 64 || doc.Embedding != nil {
		t.Errorf("document = %+v", doc)
	}

	w = do(t, h, http.MethodGet, "/api/documents/risk_R1?embedding=true", "")
	doc = documentResponse{}
	_ = json.NewDecoder(w.Body).Decode(&doc)
	if len(doc.Embedding) != 64 {
		t.Errorf("embedding length = %d, want 64", len(doc.Embedding))
	}

	if w := do(t, h, http.MethodDelete, "/api/documents/risk_R1", ""); w.Code != http.StatusOK {
		t.Errorf("delete: expected 200, got %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/api/documents/risk_R1", ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/documents/risk_R1", ""); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: expected 404, got %d", w.Code)
	}
	// One index plus one delete; the hook error is logged, not returned.
	if writes.Load() != 2 {
		t.Errorf("AfterWrite ran %d times, want 2", writes.Load())
	}
}

func TestHandleStats(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, newTestEngine(t), nil)
	h := s.Handler()
	do(t, h, http.MethodPost, "/api/index", indexBody)

	w := do(t, h, http.MethodGet, "/api/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stats rag.Stats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalDocuments != 2 || stats.Kinds["risk"] != 1 || stats.OwnerScopes["P1"] != 2 || stats.Dimension != 64 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRoutes_AuthProtectsAPIButNotProbes(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, newTestEngine(t), &Config{APIKey: "secret"})
	h := s.Handler()

	if w := do(t, h, http.MethodGet, "/api/stats", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("stats without token: expected 401, got %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/search", `{"query":"q"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("search without token: expected 401, got %d", w.Code)
	}
	for _, path := range []string{"/api/health", "/api/ready", "/metrics"} {
		if w := do(t, h, http.MethodGet, path, ""); w.Code != http.StatusOK {
			t.Errorf("%s: expected 200 without token, got %d", path, w.Code)
		}
	}

	r := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	r.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("stats with token: expected 200, got %d", w.Code)
	}
}

func TestRoutes_RequestIDHeader(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, newTestEngine(t), nil)

	r := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	r.Header.Set(requestIDHeader, "abc123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	if got := w.Header().Get(requestIDHeader); got != "abc123" {
		t.Errorf("request ID = %q, want caller's", got)
	}

	w = do(t, s.Handler(), http.MethodGet, "/api/health", "")
	if got := w.Header().Get(requestIDHeader); len(got) != 16 {
		t.Errorf("generated request ID = %q, want 16 hex chars", got)
	}
}

func TestNew_RequiresEngine(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, nil); err == nil {
		t.Error("want error for nil engine")
	}
}

func TestServer_ServesOverTCP(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, newTestEngine(t), nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/search", "application/json", bytes.NewBufferString(`{"query":"x"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestServer_StartStopsOnCancel(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	s, err := New(newTestEngine(t), &Config{
		Port:            18931,
		Logger:          slog.New(slog.DiscardHandler),
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start returned %v after cancel", err)
	}
}

func TestAccessLevel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/api/search", 200, slog.LevelInfo},
		{"/api/search", 500, slog.LevelError},
		{"/api/health", 200, slog.LevelDebug},
		{"/api/ready", 503, slog.LevelError},
		{"/metrics", 401, slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := accessLevel(tc.path, tc.status); got != tc.want {
			t.Errorf("accessLevel(%s, %d) = %v, want %v", tc.path, tc.status, got, tc.want)
		}
	}
}

func TestRequestLogger_WritesAccessLine(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := requestLogger(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logging.FromContext(r.Context()) == slog.Default() {
			t.Error("handler should see the request-scoped logger")
		}
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode access line %q: %v", buf.String(), err)
	}
	if line["status"] != float64(http.StatusTeapot) || line["bytes"] != float64(5) || line["request_id"] == "" {
		t.Errorf("access line = %v", line)
	}
}
