package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// CitationTool is an Eino tool that re-runs a search and grounds the pages
// the model claims to cite against what that search actually retrieved.
type CitationTool struct {
	searcher Searcher
}

var (
	_ tool.InvokableTool = (*CitationTool)(nil)
	_ Tool               = (*CitationTool)(nil)
)

// citationArgs extends the search arguments with the claimed pages.
type citationArgs struct {
	searchArgs
	Claimed []int `json:"claimed"`
}

// NewCitationTool constructs a CitationTool.
func NewCitationTool(searcher Searcher) *CitationTool {
	return &CitationTool{searcher: searcher}
}

// Name returns the tool name registered with the agent.
func (t *CitationTool) Name() string { return "pm_validate_citations" }

// Description returns the LLM-facing description of this tool.
func (t *CitationTool) Description() string {
	return "Checks the reference pages you intend to cite against the passages retrieved for the same query. " +
		"Cite only the pages in the returned validated list."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *CitationTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	params := searchParams()
	params["claimed"] = &schema.ParameterInfo{
		Type:     schema.Array,
		Desc:     "Page numbers you intend to cite.",
		ElemInfo: &schema.ParameterInfo{Type: schema.Integer},
		Required: true,
	}
	return &schema.ToolInfo{
		Name:        t.Name(),
		Desc:        t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

// InvokableRun executes the check given JSON-encoded arguments and returns
// the citation report as JSON.
func (t *CitationTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args citationArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("pm_validate_citations: invalid input: %w", err)
	}
	if args.Query == "" {
		return "", fmt.Errorf("pm_validate_citations: query is required")
	}

	results, err := t.searcher.Search(ctx, args.Query, args.options())
	if err != nil {
		return "", fmt.Errorf("pm_validate_citations: %w", err)
	}

	out, err := json.Marshal(t.searcher.ValidateCitations(ctx, args.Claimed, results))
	if err != nil {
		return "", fmt.Errorf("pm_validate_citations: encode report: %w", err)
	}
	return string(out), nil
}
