package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/pmrag-go/internal/ingestion"
	"github.com/54b3r/pmrag-go/internal/logging"
)

// NewIndexCmd constructs the `pmrag index` command, which loads a records
// database and reference documents into the vector store.
func NewIndexCmd() *cobra.Command {
	var recordsPath string
	var docs []string
	var layouts []string
	var sources []string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index project records and reference documents",
		Long: `Index a JSON records database and any number of markdown reference
documents into the configured vector store.

--layout and --source pair positionally with --doc. A layout file supplies
page numbers so search results can be cited by page; without one, sections
carry no locator. --source defaults to a name derived from the document path.
Locations may be file paths or http(s) URLs.

With the memory backend the index is saved to the snapshot database
(PMRAG_SNAPSHOT_DB, default ~/.pmrag/index.db) and restored on the next run.

Examples:
  pmrag index --records ./projects.json
  pmrag index --doc ./pmbok/full.md --layout ./pmbok/layout.json
  pmrag index --records db.json --doc guide.md --source guide`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if recordsPath == "" && len(docs) == 0 {
				return fmt.Errorf("index: --records or at least one --doc is required")
			}
			if len(layouts) > len(docs) || len(sources) > len(docs) {
				return fmt.Errorf("index: --layout and --source must not outnumber --doc")
			}

			rt, err := buildRuntime(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer rt.Close()

			pipeline, err := ingestion.NewPipeline(rt.engine, rt.chunker, nil)
			if err != nil {
				return fmt.Errorf("index: failed to create pipeline: %w", err)
			}

			refs := make([]ingestion.ReferenceSource, len(docs))
			for i, d := range docs {
				refs[i].Location = d
				if i < len(layouts) {
					refs[i].Layout = layouts[i]
				}
				if i < len(sources) {
					refs[i].Name = sources[i]
				}
			}

			res, err := pipeline.Ingest(ctx, recordsPath, refs)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			if err := rt.Persist(ctx); err != nil {
				return fmt.Errorf("index: save snapshot: %w", err)
			}

			log.Info("indexing complete",
				slog.Int("records", res.Records),
				slog.Int("sections", res.Sections),
			)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVarP(&recordsPath, "records", "r", "", "JSON records database (projects, tasks, risks, issues)")
	cmd.Flags().StringArrayVarP(&docs, "doc", "d", nil, "Markdown reference document to index (repeatable)")
	cmd.Flags().StringArrayVarP(&layouts, "layout", "l", nil, "layout.json page index for the matching --doc (repeatable)")
	cmd.Flags().StringArrayVarP(&sources, "source", "s", nil, "Source name for the matching --doc (repeatable)")

	return cmd
}
