package rag

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

// SnapshotEntry is the persisted form of one Entry.
type SnapshotEntry struct {
	Document
	Embedding []float32 `json:"embedding"`
	IndexedAt time.Time `json:"indexed_at"`
}

// Snapshot is the self-describing persisted form of a MemoryStore: document
// ID → document fields, embedding, and index time. It is JSON-compatible.
type Snapshot struct {
	// Dimension is the vector length shared by every entry.
	Dimension int `json:"dimension"`
	// Entries maps document ID to its persisted entry.
	Entries map[string]SnapshotEntry `json:"entries"`
	// Order lists the IDs in insertion order so tie-breaking survives a round trip.
	Order []string `json:"order,omitempty"`
}

// Snapshot captures the current store contents.
func (s *MemoryStore) Snapshot() Snapshot {
	entries := s.Entries()
	snap := Snapshot{
		Dimension: s.Dimension(),
		Entries:   make(map[string]SnapshotEntry, len(entries)),
		Order:     make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		snap.Entries[e.Document.ID] = SnapshotEntry{
			Document:  e.Document,
			Embedding: e.Embedding,
			IndexedAt: e.IndexedAt,
		}
		snap.Order = append(snap.Order, e.Document.ID)
	}
	return snap
}

// Restore replaces the store contents with snap. Every vector must match the
// store dimension (or the snapshot dimension when the store has none yet);
// on mismatch nothing is changed.
func (s *MemoryStore) Restore(snap Snapshot) error {
	order := snapshotOrder(snap)

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	if dim == 0 {
		dim = snap.Dimension
	}
	for _, id := range order {
		e := snap.Entries[id]
		if dim == 0 {
			dim = len(e.Embedding)
		}
		if len(e.Embedding) != dim {
			return &DimensionMismatchError{ID: id, Want: dim, Got: len(e.Embedding)}
		}
		if e.ID != "" && e.ID != id {
			return fmt.Errorf("rag: restore: entry key %q holds document %q", id, e.ID)
		}
	}

	entries := make(map[string]*memoryEntry, len(order))
	for i, id := range order {
		e := snap.Entries[id]
		doc := cloneDocument(e.Document)
		doc.ID = id
		entries[id] = &memoryEntry{
			Entry: Entry{
				Document:  doc,
				Embedding: slices.Clone(e.Embedding),
				IndexedAt: e.IndexedAt,
			},
			seq: uint64(i),
		}
	}
	s.entries = entries
	s.dim = dim
	s.nextSeq = uint64(len(order))
	return nil
}

// snapshotOrder returns the snapshot IDs in insertion order. IDs missing
// from Order follow in index-time order, then by ID.
func snapshotOrder(snap Snapshot) []string {
	seen := make(map[string]bool, len(snap.Entries))
	order := make([]string, 0, len(snap.Entries))
	for _, id := range snap.Order {
		if _, ok := snap.Entries[id]; ok && !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
	}

	var rest []string
	for id := range snap.Entries {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	slices.SortFunc(rest, func(a, b string) int {
		ta, tb := snap.Entries[a].IndexedAt, snap.Entries[b].IndexedAt
		if c := ta.Compare(tb); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return append(order, rest...)
}
