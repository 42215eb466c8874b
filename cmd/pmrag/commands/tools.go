package commands

import (
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/spf13/cobra"

	"github.com/54b3r/pmrag-go/internal/logging"
	"github.com/54b3r/pmrag-go/internal/rag"
	"github.com/54b3r/pmrag-go/internal/tools"
)

// toolSchema is the function-calling definition printed by `tools list`.
type toolSchema struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

// buildTools returns the Eino tools that expose searcher to a chat agent.
func buildTools(searcher tools.Searcher, maxTokens int) []tool.InvokableTool {
	return []tool.InvokableTool{
		tools.NewSearchTool(searcher, maxTokens),
		tools.NewCitationTool(searcher),
	}
}

// NewToolsCmd constructs the `pmrag tools` command group.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and invoke the agent tools",
		Long: `The agent tools expose search and citation validation to tool-calling
language models. 'list' prints their schemas; 'call' runs one with JSON
arguments exactly as an agent would.`,
	}
	cmd.AddCommand(newToolsListCmd(), newToolsCallCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the tool schemas as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			// Schemas do not touch the engine, so no backend is built.
			var infos []toolSchema
			for _, t := range buildTools(nil, 0) {
				info, err := t.Info(ctx)
				if err != nil {
					return fmt.Errorf("tools: %w", err)
				}
				params, err := info.ParamsOneOf.ToJSONSchema()
				if err != nil {
					return fmt.Errorf("tools: %s schema: %w", info.Name, err)
				}
				infos = append(infos, toolSchema{Name: info.Name, Description: info.Desc, Parameters: params})
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(infos)
		},
	}
}

func newToolsCallCmd() *cobra.Command {
	var maxTokens int

	cmd := &cobra.Command{
		Use:   "call NAME ARGS_JSON",
		Short: "Invoke a tool with JSON arguments",
		Long: `Invoke a tool by name with a JSON argument object.

Examples:
  pmrag tools call pm_search '{"query":"open risks","kinds":["risk"]}'
  pmrag tools call pm_validate_citations '{"query":"risk register","claimed":[1,11,999]}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := buildRuntime(ctx, logging.FromContext(ctx), nil)
			if err != nil {
				return fmt.Errorf("tools: %w", err)
			}
			defer rt.Close()

			for _, t := range buildTools(rt.engine, maxTokens) {
				info, err := t.Info(ctx)
				if err != nil {
					return fmt.Errorf("tools: %w", err)
				}
				if info.Name != args[0] {
					continue
				}
				out, err := t.InvokableRun(ctx, args[1])
				if err != nil {
					return fmt.Errorf("tools: %s: %w", args[0], err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			}
			return fmt.Errorf("tools: unknown tool %q", args[0])
		},
	}

	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Token budget for pm_search results (default: tool default)")
	return cmd
}

var _ tools.Searcher = (*rag.Engine)(nil)
