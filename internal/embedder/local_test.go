package embedder

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/54b3r/pmrag-go/internal/rag"
)

func Test_LocalEmbedder_Deterministic(t *testing.T) {
	t.Parallel()
	l := NewLocalEmbedder(64)
	a := l.Vector("Risk mitigation plan")
	b := l.Vector("  risk MITIGATION plan ")
	if len(a) != 64 {
		t.Fatalf("len = %d, want 64", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("slot %d differs after case/space normalization: %v vs %v", i, a[i], b[i])
		}
	}
}

func Test_LocalEmbedder_SummarySlots(t *testing.T) {
	t.Parallel()
	v := NewLocalEmbedder(16).Vector("ab cd")
	if got, want := v[slotLength], float32(5)/DefaultMaxChars; got != want {
		t.Errorf("length slot = %v, want %v", got, want)
	}
	if got, want := v[slotWords], float32(2)/5; got != want {
		t.Errorf("words slot = %v, want %v", got, want)
	}

	var sq float64
	for _, x := range v[localSlots:] {
		sq += float64(x) * float64(x)
	}
	if math.Abs(sq-1) > 1e-5 {
		t.Errorf("histogram squared norm = %v, want 1", sq)
	}
}

func Test_LocalEmbedder_DimensionStable(t *testing.T) {
	t.Parallel()
	l := NewLocalEmbedder(32)
	for _, text := range []string{"", "x", strings.Repeat("long text ", 2000), "多语言文本"} {
		if got := len(l.Vector(text)); got != 32 {
			t.Errorf("len(Vector(%.10q)) = %d, want 32", text, got)
		}
	}
}

func Test_LocalEmbedder_EmptyIsZero(t *testing.T) {
	t.Parallel()
	for i, x := range NewLocalEmbedder(8).Vector("   ") {
		if x != 0 {
			t.Errorf("slot %d = %v, want 0", i, x)
		}
	}
}

func Test_LocalEmbedder_TinyDimensions(t *testing.T) {
	t.Parallel()
	if v := NewLocalEmbedder(1).Vector("abc"); len(v) != 1 || v[0] != float32(3)/DefaultMaxChars {
		t.Errorf("dim 1 vector = %v", v)
	}
	if v := NewLocalEmbedder(0).Vector("abc"); len(v) != 0 {
		t.Errorf("dim 0 vector = %v", v)
	}
}

func Test_LocalEmbedder_Embed(t *testing.T) {
	t.Parallel()
	vecs, err := NewLocalEmbedder(8).Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("want 2 vectors, got %d", len(vecs))
	}
}

func Test_LocalEmbedder_SlotsBounded(t *testing.T) {
	t.Parallel()
	l := newLocalEmbedder(64, 100)
	for _, text := range []string{strings.Repeat("a", 100), strings.Repeat("a b ", 500), "x"} {
		for i, x := range l.Vector(text) {
			if x < 0 || x > 1 {
				t.Fatalf("Vector(%.10q)[%d] = %v, want within [0, 1]", text, i, x)
			}
		}
	}
	if got := l.Vector(strings.Repeat("a", 100))[slotLength]; got != 1 {
		t.Errorf("length slot at the input limit = %v, want 1", got)
	}
}

func Test_LocalEmbedder_LengthDoesNotDominate(t *testing.T) {
	t.Parallel()
	l := NewLocalEmbedder(64)
	// Same character mix, very different lengths: similarity should stay
	// high because the histogram, not the length slot, carries the signal.
	short := l.Vector(strings.Repeat("risk mitigation plan ", 10))
	long := l.Vector(strings.Repeat("risk mitigation plan ", 390))
	if got := rag.Cosine(short, long); got < 0.5 {
		t.Errorf("cosine(short, long) = %v, want >= 0.5", got)
	}
}
