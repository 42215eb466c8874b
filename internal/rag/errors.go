package rag

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a document ID is not present in the store.
var ErrNotFound = errors.New("rag: document not found")

// ProviderError reports a failed call to an external embedding provider.
// The embedder adapter recovers from it locally; it only escapes when a raw
// provider is used directly.
type ProviderError struct {
	// Provider names the backend (e.g. "openai", "gemini").
	Provider string
	// Err is the underlying transport or API error.
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ChunkError reports a record that could not be turned into a Document.
// Engine.Index skips such records and excludes them from its count.
type ChunkError struct {
	// RecordID is the source record identifier, possibly empty.
	RecordID string
	// Kind is the record kind.
	Kind Kind
	// Reason describes what was wrong with the record.
	Reason string
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %s %q: %s", e.Kind, e.RecordID, e.Reason)
}

// DimensionMismatchError reports a vector whose length disagrees with the
// store's dimension. It is a configuration error and aborts indexing.
type DimensionMismatchError struct {
	// ID is the document whose vector was rejected.
	ID string
	// Want is the store's configured dimension.
	Want int
	// Got is the length of the rejected vector.
	Got int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("rag: dimension mismatch for %q: store has %d, vector has %d", e.ID, e.Want, e.Got)
}
