// Package rag defines the retrieval engine for project records and reference
// documents: the document model, the embedding and vector storage contracts,
// the in-memory and Qdrant vector stores, the Engine that orchestrates
// chunk → embed → store and query → embed → rank, and citation validation.
// Callers construct an Engine explicitly; there is no package-level state.
package rag

import (
	"context"
	"time"
)

// Kind tags the origin of a Document. The record kinds are the closed set
// produced by the project-management services; other values are allowed for
// future extensions and are matched verbatim by filters.
type Kind string

const (
	// KindProject is a project record.
	KindProject Kind = "project"
	// KindTask is a task record.
	KindTask Kind = "task"
	// KindRisk is a risk register entry.
	KindRisk Kind = "risk"
	// KindIssue is an issue log entry.
	KindIssue Kind = "issue"
	// KindReferenceSection is one section of a long-form reference document.
	KindReferenceSection Kind = "reference-section"
)

// IsRecord reports whether k is one of the structured record kinds.
func (k Kind) IsRecord() bool {
	switch k {
	case KindProject, KindTask, KindRisk, KindIssue:
		return true
	}
	return false
}

// Document represents a unit of indexed content.
type Document struct {
	// ID is unique and stable across re-indexing of the same logical record.
	ID string `json:"id"`

	// Title is a short human label.
	Title string `json:"title"`

	// Content is the text body that gets embedded.
	Content string `json:"content"`

	// Kind is the document category used by kind filters.
	Kind Kind `json:"kind"`

	// OwnerScope is the optional grouping key (usually a project id).
	OwnerScope string `json:"owner_scope,omitempty"`

	// Attributes is an open payload carried through search results untouched.
	Attributes map[string]string `json:"attributes,omitempty"`

	// Locator is the page number of a reference-section chunk. Zero means
	// the document has no locator and never grounds a citation.
	Locator int `json:"locator,omitempty"`
}

// SearchResult is one ranked hit for a query. Results are produced fresh per
// query and carry a copy of the document fields.
type SearchResult struct {
	Document

	// Score is the cosine similarity between the query and the document, in [-1, 1].
	Score float64 `json:"score"`
}

// Filter restricts a search to matching documents. Zero values match everything.
type Filter struct {
	// Kinds is an allow-list; empty means any kind.
	Kinds []Kind

	// OwnerScope must match exactly when non-empty.
	OwnerScope string
}

// Matches reports whether doc passes the filter.
func (f Filter) Matches(doc *Document) bool {
	if f.OwnerScope != "" && doc.OwnerScope != f.OwnerScope {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if doc.Kind == k {
			return true
		}
	}
	return false
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists documents with their embeddings and answers
// similarity queries. Implementations must be safe to call from multiple
// goroutines.
type VectorStore interface {
	// Upsert stores or replaces a batch of documents by ID.
	// embeddings[i] is the vector for docs[i].
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Search returns the topK documents matching filter, ordered by
	// descending cosine similarity to queryEmbedding.
	Search(ctx context.Context, queryEmbedding []float32, topK int, filter Filter) ([]SearchResult, error)

	// Delete removes documents by ID and returns how many were present.
	Delete(ctx context.Context, ids []string) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// Retriever is the high-level interface used by the chat and analysis
// collaborators to fetch relevant context for a query.
type Retriever interface {
	// Retrieve returns the top-k most relevant documents for the given query.
	Retrieve(ctx context.Context, query string, topK int) ([]SearchResult, error)
}

// Entry is a stored document with its embedding and the time it was written.
type Entry struct {
	Document  Document
	Embedding []float32
	IndexedAt time.Time
}

// Record is a source record handed to Engine.Index by the project-management
// services or the reference-document loader.
type Record struct {
	// ID is the record identifier within its kind.
	ID string `json:"id"`

	// Kind selects the formatting rules and becomes the Document kind.
	Kind Kind `json:"kind"`

	// OwnerScope is the owning project id, if any.
	OwnerScope string `json:"owner_scope,omitempty"`

	// Title overrides the label derived from Fields.
	Title string `json:"title,omitempty"`

	// Text is pre-formatted content. When empty the content is built from Fields.
	Text string `json:"text,omitempty"`

	// Fields holds the structured record columns (name, status, owner, ...).
	Fields map[string]string `json:"fields,omitempty"`

	// Locator is the page number for reference-section records.
	Locator int `json:"locator,omitempty"`

	// Attributes is copied onto the resulting Document verbatim.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// RecordChunker turns one Record into one Document.
type RecordChunker interface {
	ChunkRecord(rec Record) (Document, error)
}
