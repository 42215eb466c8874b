package rag

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"
	"time"
)

// memoryEntry is a stored Entry plus its insertion sequence, which breaks
// score ties so rankings are deterministic for a fixed store state.
type memoryEntry struct {
	Entry
	seq uint64
}

// MemoryStore implements VectorStore with an id → entry map and a linear
// cosine scan. Searches take a read lock; writes take the write lock, so a
// search never observes a half-applied batch.
type MemoryStore struct {
	// mu guards entries, dim, and nextSeq.
	mu sync.RWMutex
	// entries maps document ID to its stored entry.
	entries map[string]*memoryEntry
	// dim is the fixed vector length. Zero until the first upsert when the
	// store was constructed without a dimension.
	dim int
	// nextSeq is the insertion counter.
	nextSeq uint64
	// now is the clock used for IndexedAt; replaced in tests.
	now func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore. dim fixes the vector length;
// pass 0 to adopt the length of the first vector written.
func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		dim:     dim,
		now:     time.Now,
	}
}

// Dimension returns the store's vector length, or 0 if not yet fixed.
func (s *MemoryStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Len returns the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Upsert inserts or replaces documents by ID. The whole batch is checked
// against the store dimension before anything is written.
func (s *MemoryStore) Upsert(_ context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("rag: upsert: %d documents but %d embeddings", len(docs), len(embeddings))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	for i, emb := range embeddings {
		if dim == 0 {
			dim = len(emb)
		}
		if len(emb) != dim || dim == 0 {
			return &DimensionMismatchError{ID: docs[i].ID, Want: dim, Got: len(emb)}
		}
	}
	s.dim = dim

	now := s.now()
	for i, doc := range docs {
		entry := Entry{
			Document:  cloneDocument(doc),
			Embedding: slices.Clone(embeddings[i]),
			IndexedAt: now,
		}
		if existing, ok := s.entries[doc.ID]; ok {
			existing.Entry = entry
			continue
		}
		s.entries[doc.ID] = &memoryEntry{Entry: entry, seq: s.nextSeq}
		s.nextSeq++
	}
	return nil
}

// Search scans every entry matching filter and returns the topK by cosine
// similarity. Equal scores keep insertion order. topK <= 0 returns nil.
func (s *MemoryStore) Search(_ context.Context, queryEmbedding []float32, topK int, filter Filter) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	if len(s.entries) == 0 {
		s.mu.RUnlock()
		return []SearchResult{}, nil
	}
	if len(queryEmbedding) != s.dim {
		s.mu.RUnlock()
		return nil, &DimensionMismatchError{ID: "<query>", Want: s.dim, Got: len(queryEmbedding)}
	}

	type scored struct {
		entry *memoryEntry
		score float64
	}
	hits := make([]scored, 0, len(s.entries))
	for _, e := range s.entries {
		if !filter.Matches(&e.Document) {
			continue
		}
		hits = append(hits, scored{entry: e, score: Cosine(queryEmbedding, e.Embedding)})
	}

	slices.SortFunc(hits, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.entry.seq, b.entry.seq)
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	results := make([]SearchResult, len(hits))
	for i, h := range hits {
		results[i] = SearchResult{Document: cloneDocument(h.entry.Document), Score: h.score}
	}
	s.mu.RUnlock()

	return results, nil
}

// Get returns a copy of the stored entry for id.
func (s *MemoryStore) Get(_ context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return Entry{
		Document:  cloneDocument(e.Document),
		Embedding: slices.Clone(e.Embedding),
		IndexedAt: e.IndexedAt,
	}, nil
}

// Delete removes documents by ID and returns how many were present.
func (s *MemoryStore) Delete(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if _, ok := s.entries[id]; ok {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Entries returns copies of all stored entries in insertion order.
func (s *MemoryStore) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := slices.SortedFunc(maps.Values(s.entries), func(a, b *memoryEntry) int {
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]Entry, len(ordered))
	for i, e := range ordered {
		out[i] = Entry{
			Document:  cloneDocument(e.Document),
			Embedding: slices.Clone(e.Embedding),
			IndexedAt: e.IndexedAt,
		}
	}
	return out
}

// Close is a no-op; the store holds no external resources.
func (s *MemoryStore) Close() error { return nil }

// Cosine returns the cosine similarity of a and b. A zero-norm vector, or
// vectors of different lengths, score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(sim) {
		return 0
	}
	return math.Max(-1, math.Min(1, sim))
}

// cloneDocument copies doc so callers never share the attribute map with the store.
func cloneDocument(doc Document) Document {
	doc.Attributes = maps.Clone(doc.Attributes)
	return doc
}
