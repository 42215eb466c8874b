package embedder

import (
	"context"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Reserved leading slots of a local vector.
const (
	slotLength = 0
	slotWords  = 1
	localSlots = 2
)

// LocalEmbedder builds vectors without any network call: a character
// frequency histogram, scaled to unit length and hashed into the slots after
// two summary features (text length as a fraction of the input limit, and
// words per character). Every slot lies in [0, 1] so neither summary
// feature can outweigh the histogram. It is deterministic for identical input,
// always returns vectors of its fixed dimension, and never fails.
type LocalEmbedder struct {
	// dim is the output vector length.
	dim int

	// maxChars scales the length slot; longer text saturates at 1.
	maxChars int
}

// NewLocalEmbedder constructs a LocalEmbedder producing dim-length vectors
// for inputs of up to DefaultMaxChars characters.
func NewLocalEmbedder(dim int) *LocalEmbedder {
	return newLocalEmbedder(dim, DefaultMaxChars)
}

func newLocalEmbedder(dim, maxChars int) *LocalEmbedder {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &LocalEmbedder{dim: dim, maxChars: maxChars}
}

// Dimensions returns the output vector length.
func (l *LocalEmbedder) Dimensions() int { return l.dim }

// Embed implements rag.Embedder. The error is always nil.
func (l *LocalEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = l.Vector(t)
	}
	return out, nil
}

// Vector returns the local embedding for text. Text is lower-cased and
// trimmed first; empty text yields the zero vector.
func (l *LocalEmbedder) Vector(text string) []float32 {
	v := make([]float32, l.dim)
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" || l.dim == 0 {
		return v
	}

	runes := []rune(text)
	n := float32(len(runes))

	if l.dim > localSlots {
		buckets := uint64(l.dim - localSlots)
		var buf [4]byte
		for _, r := range runes {
			k := encodeRune(buf[:], r)
			v[localSlots+int(xxhash.Sum64(k)%buckets)]++
		}
		var sq float64
		for _, x := range v[localSlots:] {
			sq += float64(x) * float64(x)
		}
		norm := float32(math.Sqrt(sq))
		for i := localSlots; i < l.dim; i++ {
			v[i] /= norm
		}
	}

	v[slotLength] = min(n/float32(l.maxChars), 1)
	if l.dim > slotWords {
		v[slotWords] = float32(len(strings.Fields(text))) / n
	}
	return v
}

// encodeRune writes r as four little-endian bytes into buf and returns it,
// avoiding a string allocation per rune.
func encodeRune(buf []byte, r rune) []byte {
	buf[0] = byte(r)
	buf[1] = byte(r >> 8)
	buf[2] = byte(r >> 16)
	buf[3] = byte(r >> 24)
	return buf[:4]
}
