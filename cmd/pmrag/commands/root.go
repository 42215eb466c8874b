// Package commands defines all Cobra CLI commands for the pmrag binary.
package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/pmrag-go/internal/audit"
	"github.com/54b3r/pmrag-go/internal/config"
	"github.com/54b3r/pmrag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// Execute runs the command tree with args and records how the selected
// command ended.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCmd()
	root.SetArgs(args)

	start := time.Now()
	cmd, err := root.ExecuteContextC(ctx)
	if cmd != nil && cmd.Context() != nil {
		audit.LogCommandEnd(cmd.Context(), logging.FromContext(cmd.Context()), cmd.Name(), start, err)
	}
	return err
}

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pmrag",
		Short: "Grounded retrieval over project records and reference documents",
		Long: `pmrag indexes project-management records (projects, tasks, risks, issues)
and long-form reference documents, and answers semantic searches over them
with page-level citations that can be checked against what was retrieved.

The embedding backend is selected via EMBEDDING_PROVIDER and the vector
store via VECTOR_BACKEND, or a YAML config file (~/.pmrag/config.yaml).
See 'pmrag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Env vars always override YAML values.
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			// config.Load may have set LOG_LEVEL / LOG_FORMAT, so rebuild.
			log = logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)

			audit.LogCommandStart(ctx, log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.pmrag/config.yaml)")

	root.AddCommand(
		NewIndexCmd(),
		NewSearchCmd(),
		NewContextCmd(),
		NewStatsCmd(),
		NewEmbedCmd(),
		NewToolsCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
