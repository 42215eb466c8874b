package rag

import (
	"context"
	"strconv"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

// Metadata keys set on Eino documents returned by EinoRetriever.
const (
	MetaTitle      = "title"
	MetaKind       = "kind"
	MetaOwnerScope = "owner_scope"
	MetaLocator    = "locator"
)

// EinoRetriever exposes an Engine as an Eino retriever.Retriever so chat
// pipelines built on Eino can pull grounded context directly.
type EinoRetriever struct {
	// engine answers the queries.
	engine *Engine

	// filter is applied to every query.
	filter Filter
}

var _ retriever.Retriever = (*EinoRetriever)(nil)

// NewEinoRetriever wraps engine. filter restricts every query it serves.
func NewEinoRetriever(engine *Engine, filter Filter) *EinoRetriever {
	return &EinoRetriever{engine: engine, filter: filter}
}

// GetType names this component in Eino callbacks.
func (r *EinoRetriever) GetType() string { return "PMRAG" }

// Retrieve implements retriever.Retriever. retriever.WithTopK overrides the
// engine default and retriever.WithScoreThreshold drops weaker hits.
func (r *EinoRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	o := retriever.GetCommonOptions(&retriever.Options{}, opts...)

	searchOpts := SearchOptions{Kinds: r.filter.Kinds, OwnerScope: r.filter.OwnerScope}
	if o.TopK != nil {
		searchOpts.TopK = *o.TopK
	}

	results, err := r.engine.Search(ctx, query, searchOpts)
	if err != nil {
		return nil, err
	}

	docs := make([]*schema.Document, 0, len(results))
	for _, res := range results {
		if o.ScoreThreshold != nil && res.Score < *o.ScoreThreshold {
			continue
		}
		docs = append(docs, ToEinoDocument(res))
	}
	return docs, nil
}

// ToEinoDocument converts a search result into an Eino document. Attributes
// are copied into MetaData next to the reserved keys.
func ToEinoDocument(res SearchResult) *schema.Document {
	meta := make(map[string]any, len(res.Attributes)+4)
	for k, v := range res.Attributes {
		meta[k] = v
	}
	meta[MetaTitle] = res.Title
	meta[MetaKind] = string(res.Kind)
	if res.OwnerScope != "" {
		meta[MetaOwnerScope] = res.OwnerScope
	}
	if res.Locator > 0 {
		meta[MetaLocator] = res.Locator
	}

	doc := &schema.Document{ID: res.ID, Content: res.Content, MetaData: meta}
	return doc.WithScore(res.Score)
}

// FromEinoDocuments converts Eino documents back into search results so a
// caller holding only Eino output can still validate citations.
func FromEinoDocuments(docs []*schema.Document) []SearchResult {
	out := make([]SearchResult, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		res := SearchResult{
			Document: Document{ID: d.ID, Content: d.Content},
			Score:    d.Score(),
		}
		for k, v := range d.MetaData {
			switch k {
			case MetaTitle:
				res.Title, _ = v.(string)
			case MetaKind:
				s, _ := v.(string)
				res.Kind = Kind(s)
			case MetaOwnerScope:
				res.OwnerScope, _ = v.(string)
			case MetaLocator:
				res.Locator = metaInt(v)
			default:
				s, ok := v.(string)
				if !ok {
					continue
				}
				if res.Attributes == nil {
					res.Attributes = make(map[string]string)
				}
				res.Attributes[k] = s
			}
		}
		out = append(out, res)
	}
	return out
}

// metaInt reads an integer that may have passed through JSON.
func metaInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
