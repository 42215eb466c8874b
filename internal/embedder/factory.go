package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/54b3r/pmrag-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOpenAIModel    = "text-embedding-3-small"
	defaultDashScopeModel = "text-embedding-v4"
	defaultOllamaModel    = "nomic-embed-text"
	defaultGeminiModel    = "gemini-embedding-001"

	defaultDashScopeURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

	// dashScopeBatchSize is the DashScope per-request input limit.
	dashScopeBatchSize = 10
)

// Backends lists the accepted EMBEDDING_PROVIDER values.
var Backends = []string{"local", "openai", "azure", "dashscope", "ollama", "gemini"}

// Provider returns the configured embedding backend (EMBEDDING_PROVIDER,
// default "local").
func Provider() string {
	return getEnvOrDefault("EMBEDDING_PROVIDER", "local")
}

// Dimensions returns the configured vector length (EMBEDDING_DIMENSIONS,
// default 1024). Vector stores must be created with this size.
func Dimensions() int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	return DefaultDimensions
}

// NewFromEnv constructs an Adapter from environment variables:
//
//	EMBEDDING_PROVIDER   local | openai | azure | dashscope | ollama | gemini (default local)
//	EMBEDDING_MODEL      overrides the backend's default model
//	EMBEDDING_API_KEY    overrides the backend-specific key variable
//	EMBEDDING_ENDPOINT   overrides the backend's base URL
//	EMBEDDING_DIMENSIONS output vector length (default 1024)
//	EMBEDDING_MAX_CHARS  input truncation bound (default 8192)
//	EMBEDDING_TIMEOUT    per-call timeout as a Go duration (default 10s)
//
// The "local" backend uses the deterministic fallback for every text.
func NewFromEnv(ctx context.Context, metrics *Metrics) (*Adapter, error) {
	backend := Provider()
	dims := Dimensions()

	primary, err := newPrimary(ctx, backend, dims)
	if err != nil {
		return nil, err
	}

	timeout := DefaultTimeout
	if v := getEnv("EMBEDDING_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("embedder: invalid EMBEDDING_TIMEOUT %q: %w", v, err)
		}
		timeout = d
	}

	return NewAdapter(&AdapterConfig{
		Primary:    primary,
		Provider:   backend,
		Dimensions: dims,
		MaxChars:   getEnvInt("EMBEDDING_MAX_CHARS", DefaultMaxChars),
		Timeout:    timeout,
		Metrics:    metrics,
	})
}

// newPrimary builds the external provider for backend. "local" returns nil.
func newPrimary(ctx context.Context, backend string, dims int) (rag.Embedder, error) {
	switch backend {
	case "local":
		return nil, nil

	case "openai":
		apiKey := firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			Provider:   "openai",
			BaseURL:    getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: dims,
		}), nil

	case "azure":
		apiKey := firstEnv("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			Provider:   "azure",
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: dims,
			Azure:      true,
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		}), nil

	case "dashscope":
		apiKey := firstEnv("EMBEDDING_API_KEY", "DASHSCOPE_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: dashscope requires DASHSCOPE_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			Provider:   "dashscope",
			BaseURL:    getEnvOrDefault("EMBEDDING_ENDPOINT", defaultDashScopeURL),
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultDashScopeModel),
			Dimensions: dims,
			BatchSize:  dashScopeBatchSize,
		}), nil

	case "ollama":
		return NewOllamaEmbedder(&OllamaConfig{
			Host:       getEnvOrDefault("EMBEDDING_ENDPOINT", getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")),
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
			Dimensions: dims,
		}), nil

	case "gemini":
		apiKey := firstEnv("EMBEDDING_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: gemini requires GEMINI_API_KEY or EMBEDDING_API_KEY")
		}
		gemini, err := NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultGeminiModel),
			Dimensions: dims,
			BaseURL:    getEnv("EMBEDDING_ENDPOINT"),
		})
		if err != nil {
			return nil, err
		}
		return gemini, nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid values: %v)", backend, Backends)
	}
}

// firstEnv returns the first non-empty value among the named environment variables.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
