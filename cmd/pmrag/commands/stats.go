package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/pmrag-go/internal/logging"
)

// NewStatsCmd constructs the `pmrag stats` command.
func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the contents of the index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			rt, err := buildRuntime(ctx, logging.FromContext(ctx), nil)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			defer rt.Close()

			stats, err := rt.engine.Stats(ctx)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}
