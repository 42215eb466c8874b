// Package tools exposes the retrieval engine to tool-calling chat agents as
// Eino tools: a grounded search over project records and reference
// documents, and a citation check for the pages a model claims to have used.
// Each tool satisfies Eino's tool.InvokableTool so it can be registered
// directly with a ChatModelAgent.
package tools

import (
	"context"

	"github.com/54b3r/pmrag-go/internal/rag"
)

// Tool is implemented by every tool in this package. The Name accessor lets
// callers log and route tool calls without type assertions.
type Tool interface {
	// Name returns the unique tool name registered with the agent.
	Name() string

	// Description returns the LLM-facing description sent with the tool schema.
	Description() string
}

// Searcher is the slice of the retrieval engine the tools need.
// *rag.Engine satisfies it.
type Searcher interface {
	// Search returns ranked results for query narrowed by opts.
	Search(ctx context.Context, query string, opts rag.SearchOptions) ([]rag.SearchResult, error)

	// ValidateCitations grounds claimed locators against results.
	ValidateCitations(ctx context.Context, claimed []int, results []rag.SearchResult) rag.CitationReport
}

// searchArgs are the arguments shared by both tools.
type searchArgs struct {
	// Query is the natural-language search text.
	Query string `json:"query"`

	// TopK caps the number of results; zero means the engine default.
	TopK int `json:"top_k,omitempty"`

	// Kinds restricts results to these document kinds.
	Kinds []string `json:"kinds,omitempty"`

	// OwnerScope restricts results to one project.
	OwnerScope string `json:"owner_scope,omitempty"`
}

// options converts the JSON arguments into engine search options.
func (a searchArgs) options() rag.SearchOptions {
	opts := rag.SearchOptions{TopK: a.TopK, OwnerScope: a.OwnerScope}
	for _, k := range a.Kinds {
		opts.Kinds = append(opts.Kinds, rag.Kind(k))
	}
	return opts
}
