package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/pmrag-go/internal/budget"
	"github.com/54b3r/pmrag-go/internal/rag"
)

// SearchTool is an Eino tool that runs a retrieval search and returns the
// ranked hits as JSON for the agent to ground its answer on.
type SearchTool struct {
	// searcher answers the query.
	searcher Searcher

	// maxTokens bounds the serialized content handed back to the model.
	maxTokens int
}

var (
	_ tool.InvokableTool = (*SearchTool)(nil)
	_ Tool               = (*SearchTool)(nil)
)

// searchHit is the model-facing projection of a search result.
type searchHit struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Kind       string  `json:"kind"`
	Score      float64 `json:"score"`
	Page       int     `json:"page,omitempty"`
	OwnerScope string  `json:"owner_scope,omitempty"`
	Content    string  `json:"content"`
}

// NewSearchTool constructs a SearchTool. maxTokens <= 0 uses
// budget.DefaultMaxContextTokens.
func NewSearchTool(searcher Searcher, maxTokens int) *SearchTool {
	if maxTokens <= 0 {
		maxTokens = budget.DefaultMaxContextTokens
	}
	return &SearchTool{searcher: searcher, maxTokens: maxTokens}
}

// Name returns the tool name registered with the agent.
func (t *SearchTool) Name() string { return "pm_search" }

// Description returns the LLM-facing description of this tool.
func (t *SearchTool) Description() string {
	return "Searches project records (projects, tasks, risks, issues) and the project-management " +
		"reference handbook. Returns ranked passages; reference passages carry the page number to cite."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *SearchTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name:        t.Name(),
		Desc:        t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(searchParams()),
	}, nil
}

// InvokableRun executes the search given JSON-encoded arguments.
func (t *SearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args searchArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("pm_search: invalid input: %w", err)
	}
	if args.Query == "" {
		return "", fmt.Errorf("pm_search: query is required")
	}

	results, err := t.searcher.Search(ctx, args.Query, args.options())
	if err != nil {
		return "", fmt.Errorf("pm_search: %w", err)
	}
	results = budget.FitResults(results, t.maxTokens)

	hits := make([]searchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, searchHit{
			ID:         r.ID,
			Title:      r.Title,
			Kind:       string(r.Kind),
			Score:      r.Score,
			Page:       r.Locator,
			OwnerScope: r.OwnerScope,
			Content:    r.Content,
		})
	}

	out, err := json.Marshal(map[string]any{"results": hits})
	if err != nil {
		return "", fmt.Errorf("pm_search: encode results: %w", err)
	}
	return string(out), nil
}

// searchParams is the parameter schema shared by both tools.
func searchParams() map[string]*schema.ParameterInfo {
	kinds := []string{
		string(rag.KindProject), string(rag.KindTask), string(rag.KindRisk),
		string(rag.KindIssue), string(rag.KindReferenceSection),
	}
	return map[string]*schema.ParameterInfo{
		"query": {
			Type:     schema.String,
			Desc:     "Natural-language search text.",
			Required: true,
		},
		"top_k": {
			Type: schema.Integer,
			Desc: "Maximum number of passages to return.",
		},
		"kinds": {
			Type:     schema.Array,
			Desc:     "Restrict results to these document kinds.",
			ElemInfo: &schema.ParameterInfo{Type: schema.String, Enum: kinds},
		},
		"owner_scope": {
			Type: schema.String,
			Desc: "Restrict results to one project ID.",
		},
	}
}
