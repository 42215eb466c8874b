package commands

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/54b3r/pmrag-go/internal/embedder"
	"github.com/54b3r/pmrag-go/internal/logging"
)

type embedOutput struct {
	Provider   string        `json:"provider"`
	Dimensions int           `json:"dimensions"`
	Vectors    []embedVector `json:"vectors"`
}

type embedVector struct {
	Text string    `json:"text"`
	Norm float64   `json:"norm"`
	Head []float64 `json:"head"`
}

// NewEmbedCmd constructs the `pmrag embed` command. It embeds its arguments
// through the same Eino embedder the index uses and prints a summary of
// each vector, which is handy for checking provider wiring.
func NewEmbedCmd() *cobra.Command {
	var head int

	cmd := &cobra.Command{
		Use:   "embed TEXT...",
		Short: "Embed text with the configured provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if head < 0 {
				return fmt.Errorf("embed: --head must be >= 0, got %d", head)
			}
			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("embed: %w", err)
			}
			adapter, err := embedder.NewFromEnv(ctx, nil)
			if err != nil {
				return fmt.Errorf("embed: %w", err)
			}

			vecs, err := embedder.NewEinoEmbedder(adapter).EmbedStrings(ctx, args)
			if err != nil {
				return fmt.Errorf("embed: %w", err)
			}

			out := embedOutput{
				Provider:   adapter.Provider(),
				Dimensions: adapter.Dimensions(),
				Vectors:    make([]embedVector, len(vecs)),
			}
			for i, v := range vecs {
				var sq float64
				for _, x := range v {
					sq += x * x
				}
				out.Vectors[i] = embedVector{
					Text: args[i],
					Norm: math.Sqrt(sq),
					Head: v[:min(head, len(v))],
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().IntVar(&head, "head", 8, "number of leading vector components to print")
	return cmd
}
