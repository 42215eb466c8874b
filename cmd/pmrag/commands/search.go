package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/pmrag-go/internal/budget"
	"github.com/54b3r/pmrag-go/internal/logging"
	"github.com/54b3r/pmrag-go/internal/rag"
)

// searchOutput is the JSON written by `pmrag search`.
type searchOutput struct {
	Results   []rag.SearchResult  `json:"results"`
	Citations *rag.CitationReport `json:"citations,omitempty"`
}

// NewSearchCmd constructs the `pmrag search` command.
func NewSearchCmd() *cobra.Command {
	var topK int
	var kinds []string
	var scope string
	var cite string
	var maxTokens int

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search the index and optionally validate citations",
		Long: `Run a semantic search and print the ranked results as JSON.

--cite takes a comma-separated list of page numbers a downstream answer
claims to cite; they are checked against the retrieved results and the
grounded set is printed alongside them.

Examples:
  pmrag search "vendor delivery risk" --kind risk --scope P1
  pmrag search "risk register" --kind reference-section --cite 1,11,999`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			claimed, err := parseLocators(cite)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			rt, err := buildRuntime(ctx, logging.FromContext(ctx), nil)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer rt.Close()

			results, err := rt.engine.Search(ctx, strings.Join(args, " "), rag.SearchOptions{
				TopK:       topK,
				Kinds:      parseKinds(kinds),
				OwnerScope: scope,
			})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			out := searchOutput{Results: budget.FitResults(results, maxTokens)}
			if cmd.Flags().Changed("cite") {
				report := rt.engine.ValidateCitations(ctx, claimed, out.Results)
				out.Citations = &report
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Maximum number of results (default: PMRAG_TOP_K or 5)")
	cmd.Flags().StringArrayVar(&kinds, "kind", nil, "Restrict results to a document kind (repeatable)")
	cmd.Flags().StringVar(&scope, "scope", "", "Restrict results to one owner scope (project id)")
	cmd.Flags().StringVar(&cite, "cite", "", "Comma-separated page numbers to validate against the results")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Trim results to an estimated token budget (0 disables)")

	return cmd
}

// parseLocators parses a comma-separated list of page numbers.
func parseLocators(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid citation %q: %w", p, err)
		}
		out = append(out, n)
	}
	return out, nil
}
