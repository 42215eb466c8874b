package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/pmrag-go/internal/chunker"
	"github.com/54b3r/pmrag-go/internal/embedder"
	"github.com/54b3r/pmrag-go/internal/rag"
	"github.com/54b3r/pmrag-go/internal/server"
	"github.com/54b3r/pmrag-go/internal/store"
)

// snapshotDisabled turns off snapshot persistence when set as PMRAG_SNAPSHOT_DB.
const snapshotDisabled = "disabled"

// runtime bundles the engine with the backends it was built on, so commands
// can persist and close them without knowing which backend is active.
type runtime struct {
	// engine answers every index and search call.
	engine *rag.Engine

	// chunker is shared with the ingestion pipeline.
	chunker *chunker.Chunker

	// memory is the in-process store; nil when the Qdrant backend is active.
	memory *rag.MemoryStore

	// snapshots persists memory between runs; nil when disabled.
	snapshots *store.SQLiteStore

	// qdrant is the ANN store; nil when the memory backend is active.
	qdrant *rag.QdrantStore

	// persistMu serializes Persist so an older snapshot never overwrites a newer one.
	persistMu sync.Mutex
}

// buildRuntime validates the embedding configuration, then wires embedder,
// vector store and engine from env vars. reg receives the embedder and
// engine metrics; nil leaves them unregistered.
func buildRuntime(ctx context.Context, log *slog.Logger, reg prometheus.Registerer) (*runtime, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}

	emb, err := embedder.NewFromEnv(ctx, embedder.NewMetrics(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	dims := embedder.Dimensions()
	log.Info("embedder initialised",
		slog.String("provider", embedder.Provider()),
		slog.Int("dimensions", dims),
	)

	rt := &runtime{
		chunker: chunker.New(getEnvInt("EMBEDDING_MAX_CHARS", chunker.DefaultMaxChars), log),
	}

	var vs rag.VectorStore
	switch backend := getEnvOrDefault("VECTOR_BACKEND", "memory"); backend {
	case "memory":
		rt.memory = rag.NewMemoryStore(dims)
		if err := rt.openSnapshots(ctx, log); err != nil {
			return nil, err
		}
		vs = rt.memory

	case "qdrant":
		host := getEnvOrDefault("QDRANT_HOST", "localhost")
		port := getEnvInt("QDRANT_PORT", 6334)
		collection := getEnvOrDefault("QDRANT_COLLECTION", "pmrag")
		qs, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       host,
			Port:       port,
			Collection: collection,
			VectorSize: uint64(dims), //nolint:gosec // dimensions are validated positive
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
		}
		log.Info("qdrant store ready",
			slog.String("host", host),
			slog.Int("port", port),
			slog.String("collection", collection),
		)
		rt.qdrant = qs
		vs = qs

	default:
		return nil, fmt.Errorf("unknown VECTOR_BACKEND %q (valid values: memory, qdrant)", backend)
	}

	engine, err := rag.NewEngine(&rag.EngineConfig{
		Embedder:     emb,
		Store:        vs,
		Chunker:      rt.chunker,
		DefaultTopK:  getEnvInt("PMRAG_TOP_K", rag.DefaultTopK),
		MinCitations: getEnvInt("PMRAG_MIN_CITATIONS", rag.DefaultMinCitations),
		Metrics:      rag.NewMetrics(reg),
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.engine = engine
	return rt, nil
}

// openSnapshots opens the SQLite snapshot database and restores the memory
// store from it. PMRAG_SNAPSHOT_DB=disabled keeps the index purely in memory.
func (rt *runtime) openSnapshots(ctx context.Context, log *slog.Logger) error {
	path := os.Getenv("PMRAG_SNAPSHOT_DB")
	if path == snapshotDisabled {
		log.Info("snapshot: disabled via PMRAG_SNAPSHOT_DB=disabled")
		return nil
	}
	if path == "" {
		var err error
		if path, err = store.DefaultDBPath(); err != nil {
			log.Warn("snapshot: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
	}

	db, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	snap, err := db.Load(ctx)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := rt.memory.Restore(snap); err != nil {
		_ = db.Close()
		var dimErr *rag.DimensionMismatchError
		if errors.As(err, &dimErr) {
			return fmt.Errorf("snapshot %s was built with a different EMBEDDING_DIMENSIONS: %w", path, err)
		}
		return fmt.Errorf("snapshot: restore: %w", err)
	}

	rt.snapshots = db
	log.Info("snapshot: restored", slog.String("path", path), slog.Int("documents", rt.memory.Len()))
	return nil
}

// Persist writes the memory store to the snapshot database. It is a no-op
// for the Qdrant backend and when snapshots are disabled.
func (rt *runtime) Persist(ctx context.Context) error {
	if rt.memory == nil || rt.snapshots == nil {
		return nil
	}
	rt.persistMu.Lock()
	defer rt.persistMu.Unlock()
	return rt.snapshots.Save(ctx, rt.memory.Snapshot())
}

// Pingers returns readiness probes for the active backends.
func (rt *runtime) Pingers() []server.Pinger {
	var pingers []server.Pinger
	if rt.qdrant != nil {
		pingers = append(pingers, server.NewPinger("qdrant", rt.qdrant))
	}
	if rt.snapshots != nil {
		pingers = append(pingers, server.NewPinger("snapshot", rt.snapshots))
	}
	return pingers
}

// Close releases the backend connections.
func (rt *runtime) Close() {
	if rt.snapshots != nil {
		_ = rt.snapshots.Close()
	}
	if rt.qdrant != nil {
		_ = rt.qdrant.Close()
	}
}

// parseKinds converts --kind flag values into document kinds.
func parseKinds(values []string) []rag.Kind {
	if len(values) == 0 {
		return nil
	}
	kinds := make([]rag.Kind, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			kinds = append(kinds, rag.Kind(v))
		}
	}
	return kinds
}

// getEnvOrDefault returns the env var value or fallback when unset.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as an int, or fallback when unset or
// malformed.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
