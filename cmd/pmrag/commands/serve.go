package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/pmrag-go/internal/logging"
	"github.com/54b3r/pmrag-go/internal/server"
)

// NewServeCmd constructs the `pmrag serve` command, which starts the HTTP
// server that chat and reporting services call.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pmrag HTTP server",
		Long: `Start the pmrag HTTP server.

The server exposes index, search, citation validation, document lookup and
stats endpoints as JSON, plus /api/health, /api/ready and /metrics.
With the memory backend every successful write is saved to the snapshot
database so a restart resumes from the same index.

Set PMRAG_API_KEY to require a Bearer token on /api routes.

Examples:
  pmrag serve
  pmrag serve --port 9090
  VECTOR_BACKEND=qdrant pmrag serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			rt, err := buildRuntime(ctx, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer rt.Close()

			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("PMRAG_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("PMRAG_PORT", port)
			}

			srv, err := server.New(rt.engine, &server.Config{
				Host:       host,
				Port:       port,
				Logger:     log,
				Pingers:    rt.Pingers(),
				APIKey:     os.Getenv("PMRAG_API_KEY"),
				AfterWrite: rt.Persist,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			if err := srv.Start(ctx); err != nil {
				return err
			}

			// Writes already persist individually; this catches a shutdown
			// that raced an in-flight index request.
			if err := rt.Persist(cmd.Context()); err != nil {
				log.Warn("serve: final snapshot failed", slog.Any("error", err))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env PMRAG_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (env PMRAG_PORT)")

	return cmd
}
