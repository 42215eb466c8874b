// Package config provides YAML-based configuration for pmrag.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so a deployment can override any file value.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. PMRAG_CONFIG environment variable
//  3. ~/.pmrag/config.yaml
//  4. ./pmrag.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Embedding configures the embedding provider adapter.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Retrieval configures the retrieval engine.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Qdrant configures the Qdrant vector store connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Store configures snapshot persistence for the in-memory index.
	Store StoreConfig `yaml:"store"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend: local, openai, azure, dashscope, ollama, gemini.
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// Timeout bounds a single provider call before the local fallback is used.
	Timeout time.Duration `yaml:"timeout"`
	// MaxInputChars is the truncation bound applied before embedding.
	MaxInputChars int `yaml:"max_input_chars"`
}

// RetrievalConfig holds retrieval engine settings.
type RetrievalConfig struct {
	// TopK is the default number of results per search.
	TopK int `yaml:"top_k"`
	// MinCitations is the citation backfill target.
	MinCitations int `yaml:"min_citations"`
	// Backend selects the vector store: memory or qdrant.
	Backend string `yaml:"backend"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// StoreConfig holds snapshot persistence settings.
type StoreConfig struct {
	// SnapshotDB is the SQLite database path. Set to "disabled" to disable.
	SnapshotDB string `yaml:"snapshot_db"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var PMRAG_API_KEY.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_TIMEOUT", func(c *Config) string { return durationStr(c.Embedding.Timeout) }},
	{"EMBEDDING_MAX_CHARS", func(c *Config) string { return intStr(c.Embedding.MaxInputChars) }},
	{"PMRAG_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"PMRAG_MIN_CITATIONS", func(c *Config) string { return intStr(c.Retrieval.MinCitations) }},
	{"VECTOR_BACKEND", func(c *Config) string { return c.Retrieval.Backend }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"PMRAG_SNAPSHOT_DB", func(c *Config) string { return c.Store.SnapshotDB }},
	{"PMRAG_HOST", func(c *Config) string { return c.Server.Host }},
	{"PMRAG_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"PMRAG_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
}

// Accepted values for the enumerated settings.
var (
	backends  = []string{"memory", "qdrant"}
	levels    = []string{"debug", "info", "warn", "warning", "error"}
	formats   = []string{"json", "text"}
	providers = []string{"local", "openai", "azure", "dashscope", "ollama", "gemini"}
)

// Load resolves the config file, validates it, and exports its non-empty
// values as environment variables that are not already set. It returns the
// path that was loaded, or "" when no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	cfg, err := Read(path)
	if err != nil {
		return "", err
	}
	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("config: %s: %w", path, err)
	}

	applied := cfg.Apply()
	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)
	return path, nil
}

// Read parses the YAML file at path. Unknown keys are rejected so a typo
// does not silently fall back to a default.
func Read(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the enumerated and numeric settings. Zero values mean
// "unset" and always pass.
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(field, v string, allowed []string) {
		if v != "" && !slices.Contains(allowed, strings.ToLower(v)) {
			errs = append(errs, fmt.Errorf("%s: %q is not one of %s", field, v, strings.Join(allowed, ", ")))
		}
	}
	nonNegative := func(field string, v int) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s: must not be negative, got %d", field, v))
		}
	}
	port := func(field string, v int) {
		if v < 0 || v > 65535 {
			errs = append(errs, fmt.Errorf("%s: %d is not a valid port", field, v))
		}
	}

	oneOf("embedding.provider", c.Embedding.Provider, providers)
	oneOf("retrieval.backend", c.Retrieval.Backend, backends)
	oneOf("logging.level", c.Logging.Level, levels)
	oneOf("logging.format", c.Logging.Format, formats)
	nonNegative("embedding.dimensions", c.Embedding.Dimensions)
	nonNegative("embedding.max_input_chars", c.Embedding.MaxInputChars)
	nonNegative("retrieval.top_k", c.Retrieval.TopK)
	nonNegative("retrieval.min_citations", c.Retrieval.MinCitations)
	port("qdrant.port", c.Qdrant.Port)
	port("server.port", c.Server.Port)
	if c.Embedding.Timeout < 0 {
		errs = append(errs, fmt.Errorf("embedding.timeout: must not be negative, got %s", c.Embedding.Timeout))
	}
	return errors.Join(errs...)
}

// Apply exports every non-empty value whose env var is unset and returns
// how many were exported. Env vars already present always win.
func (c *Config) Apply() int {
	applied := 0
	for _, m := range envMapping {
		v := m.value(c)
		if v == "" {
			continue
		}
		if _, set := os.LookupEnv(m.envKey); set {
			continue
		}
		if err := os.Setenv(m.envKey, v); err == nil {
			applied++
		}
	}
	return applied
}

// resolveConfigPath returns the first existing candidate. An explicit path
// that does not exist selects nothing rather than falling through.
func resolveConfigPath(explicit string) string {
	for _, p := range searchPaths(explicit) {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// searchPaths lists the candidate config files in precedence order.
func searchPaths(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	var paths []string
	if p := os.Getenv("PMRAG_CONFIG"); p != "" {
		paths = append(paths, p)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".pmrag", "config.yaml"))
	}
	return append(paths, "pmrag.yaml")
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// durationStr formats a duration for time.ParseDuration, returning "" for zero.
func durationStr(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
