package embedder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeProvider is a scripted rag.Embedder that records the inputs it saw.
type fakeProvider struct {
	mu    sync.Mutex
	calls [][]string
	fn    func(ctx context.Context, texts []string) ([][]float32, error)
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.mu.Unlock()
	return f.fn(ctx, texts)
}

// constVectors returns a provider func producing dim-length vectors filled with v.
func constVectors(dim int, v float32) func(context.Context, []string) ([][]float32, error) {
	return func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			row := make([]float32, dim)
			for j := range row {
				row[j] = v
			}
			out[i] = row
		}
		return out, nil
	}
}

func newTestAdapter(t *testing.T, primary *fakeProvider, dims int) (*Adapter, *Metrics) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	cfg := &AdapterConfig{Provider: "fake", Dimensions: dims, MaxChars: 16, Timeout: 50 * time.Millisecond, Metrics: m}
	if primary != nil {
		cfg.Primary = primary
	}
	a, err := NewAdapter(cfg)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	return a, m
}

func Test_Adapter_PrimarySuccess(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{fn: constVectors(4, 0.5)}
	a, m := newTestAdapter(t, p, 4)

	vecs, err := a.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 3 || vecs[2][0] != 0.5 {
		t.Fatalf("unexpected vectors: %v", vecs)
	}
	if len(p.calls) != 1 {
		t.Errorf("want one batch call, got %d", len(p.calls))
	}
	if got := testutil.ToFloat64(m.fallbacks.WithLabelValues(reasonError)); got != 0 {
		t.Errorf("fallbacks = %v, want 0", got)
	}
}

func Test_Adapter_ErrorFallsBack(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{fn: func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("boom")
	}}
	a, m := newTestAdapter(t, p, 8)

	vecs, err := a.Embed(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("Embed must not fail, got %v", err)
	}
	want := newLocalEmbedder(8, 16)
	for i, text := range []string{"hello", "world"} {
		exp := want.Vector(text)
		for j := range exp {
			if vecs[i][j] != exp[j] {
				t.Fatalf("vector %d slot %d = %v, want local %v", i, j, vecs[i][j], exp[j])
			}
		}
	}
	if got := testutil.ToFloat64(m.fallbacks.WithLabelValues(reasonError)); got != 2 {
		t.Errorf("error fallbacks = %v, want 2", got)
	}
	if len(p.calls) != 1 {
		t.Errorf("provider called %d times, want 1 (no retries)", len(p.calls))
	}
}

func Test_Adapter_TimeoutFallsBack(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{fn: func(ctx context.Context, _ []string) ([][]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	a, m := newTestAdapter(t, p, 4)

	start := time.Now()
	vecs, err := a.Embed(context.Background(), []string{"slow"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout was not applied")
	}
	if len(vecs) != 1 || len(vecs[0]) != 4 {
		t.Fatalf("unexpected vectors: %v", vecs)
	}
	if got := testutil.ToFloat64(m.fallbacks.WithLabelValues(reasonTimeout)); got != 1 {
		t.Errorf("timeout fallbacks = %v, want 1", got)
	}
}

func Test_Adapter_WrongDimensionFallsBackPerItem(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{fn: func(_ context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 1, 1, 1}, {1, 1}}, nil
	}}
	a, m := newTestAdapter(t, p, 4)

	vecs, _ := a.Embed(context.Background(), []string{"good", "bad"})
	if vecs[0][0] != 1 {
		t.Errorf("valid provider vector replaced: %v", vecs[0])
	}
	if len(vecs[1]) != 4 {
		t.Errorf("invalid vector not replaced: %v", vecs[1])
	}
	if got := testutil.ToFloat64(m.fallbacks.WithLabelValues(reasonDimension)); got != 1 {
		t.Errorf("dimension fallbacks = %v, want 1", got)
	}
}

func Test_Adapter_TruncatesBeforeEmbedding(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{fn: constVectors(4, 1)}
	a, _ := newTestAdapter(t, p, 4)

	long := strings.Repeat("x", 40)
	if _, err := a.Embed(context.Background(), []string{long}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got := p.calls[0][0]; got != strings.Repeat("x", 16) {
		t.Errorf("provider saw %d chars, want 16", len(got))
	}
}

func Test_Adapter_TruncationIsDeterministicLocally(t *testing.T) {
	t.Parallel()
	a, _ := newTestAdapter(t, nil, 16)
	text := strings.Repeat("abc ", 100)

	first, _ := a.Embed(context.Background(), []string{text})
	second, _ := a.Embed(context.Background(), []string{text + " more differing tail"})
	for i := range first[0] {
		if first[0][i] != second[0][i] {
			t.Fatalf("texts sharing the first 16 chars embedded differently at slot %d", i)
		}
	}
}

func Test_Adapter_LocalOnly(t *testing.T) {
	t.Parallel()
	a, m := newTestAdapter(t, nil, 8)
	if a.Provider() != "fake" {
		t.Errorf("Provider = %q", a.Provider())
	}
	vecs, err := a.Embed(context.Background(), []string{"x"})
	if err != nil || len(vecs) != 1 || len(vecs[0]) != 8 {
		t.Fatalf("Embed = %v, %v", vecs, err)
	}
	if got := testutil.ToFloat64(m.fallbacks.WithLabelValues(reasonError)); got != 0 {
		t.Errorf("local-only mode counted fallbacks: %v", got)
	}
}

func Test_Adapter_EmptyBatch(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{fn: constVectors(4, 1)}
	a, _ := newTestAdapter(t, p, 4)
	vecs, err := a.Embed(context.Background(), nil)
	if err != nil || len(vecs) != 0 {
		t.Fatalf("Embed(nil) = %v, %v", vecs, err)
	}
	if len(p.calls) != 0 {
		t.Error("provider called for an empty batch")
	}
}

func Test_NewAdapter_Defaults(t *testing.T) {
	t.Parallel()
	a, err := NewAdapter(&AdapterConfig{})
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	if a.Dimensions() != DefaultDimensions || a.Provider() != "local" {
		t.Errorf("defaults = %d/%q", a.Dimensions(), a.Provider())
	}
	if _, err := NewAdapter(&AdapterConfig{Dimensions: -1}); err == nil {
		t.Error("want error for negative dimensions")
	}
}
