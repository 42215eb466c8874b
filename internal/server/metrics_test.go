package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_EndpointServesRegistry(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, newTestEngine(t), nil)
	h := s.Handler()
	do(t, h, http.MethodGet, "/api/health", "")

	w := do(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "pmrag_http_requests_total") {
		t.Error("metrics output should include pmrag_http_requests_total")
	}
}

func TestMetrics_RequestsLabelledByPattern(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, newTestEngine(t), nil)
	h := s.Handler()

	do(t, h, http.MethodGet, "/api/documents/a", "")
	do(t, h, http.MethodGet, "/api/documents/b", "")
	do(t, h, http.MethodPost, "/api/search", `{"query":"risk"}`)
	do(t, h, http.MethodGet, "/nope", "")

	counter := s.metrics.requests
	if got := testutil.ToFloat64(counter.WithLabelValues("GET", "GET /api/documents/{id}", "404")); got != 2 {
		t.Errorf("document lookups: want 2, got %v", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("POST", "POST /api/search", "200")); got != 1 {
		t.Errorf("searches: want 1, got %v", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("unmatched: want 1, got %v", got)
	}
}

func TestMetrics_DurationObserved(t *testing.T) {
	t.Parallel()
	s, reg := newTestServer(t, newTestEngine(t), nil)
	do(t, s.Handler(), http.MethodGet, "/api/stats", "")

	n, err := testutil.GatherAndCount(reg, "pmrag_http_duration_seconds")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 1 {
		t.Errorf("want one duration series, got %d", n)
	}
}

func TestMetrics_InFlightSettles(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, newTestEngine(t), nil)
	h := s.Handler()
	for range 3 {
		do(t, h, http.MethodGet, "/api/health", "")
	}
	if got := testutil.ToFloat64(s.metrics.inFlight); got != 0 {
		t.Errorf("in-flight after completed requests = %v, want 0", got)
	}
}
