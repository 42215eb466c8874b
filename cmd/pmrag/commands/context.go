package commands

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/spf13/cobra"

	"github.com/54b3r/pmrag-go/internal/budget"
	"github.com/54b3r/pmrag-go/internal/logging"
	"github.com/54b3r/pmrag-go/internal/rag"
)

// NewContextCmd constructs the `pmrag context` command, which prints the
// grounded context block a chat service would prepend to a prompt.
func NewContextCmd() *cobra.Command {
	var topK int
	var kinds []string
	var scope string
	var maxTokens int
	var minScore float64

	cmd := &cobra.Command{
		Use:   "context QUERY",
		Short: "Render retrieved results as a prompt context block",
		Long: `Retrieve results for QUERY through the Eino retriever and render them as
the system message a language model receives, trimmed to a token budget.
Useful for checking exactly what a chat service will see.

Examples:
  pmrag context "how do we escalate a high risk?" --max-tokens 2000
  pmrag context "schedule slippage" --kind reference-section --min-score 0.2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := buildRuntime(ctx, logging.FromContext(ctx), nil)
			if err != nil {
				return fmt.Errorf("context: %w", err)
			}
			defer rt.Close()

			r := rag.NewEinoRetriever(rt.engine, rag.Filter{Kinds: parseKinds(kinds), OwnerScope: scope})
			var opts []retriever.Option
			if topK > 0 {
				opts = append(opts, retriever.WithTopK(topK))
			}
			if cmd.Flags().Changed("min-score") {
				opts = append(opts, retriever.WithScoreThreshold(minScore))
			}

			docs, err := r.Retrieve(ctx, strings.Join(args, " "), opts...)
			if err != nil {
				return fmt.Errorf("context: %w", err)
			}

			results := budget.FitResults(rag.FromEinoDocuments(docs), maxTokens)
			msg := budget.ContextMessage(results)
			fmt.Fprintln(cmd.OutOrStdout(), msg.Content)
			logging.FromContext(ctx).Debug("context rendered",
				slog.Int("results", len(results)),
				slog.Int("estimated_tokens", budget.Estimate(msg.Content)),
			)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Maximum number of results (default: PMRAG_TOP_K or 5)")
	cmd.Flags().StringArrayVar(&kinds, "kind", nil, "Restrict results to a document kind (repeatable)")
	cmd.Flags().StringVar(&scope, "scope", "", "Restrict results to one owner scope (project id)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", budget.DefaultMaxContextTokens, "Estimated token budget for the context block")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Drop results scoring below this cosine similarity")

	return cmd
}
