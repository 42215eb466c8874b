package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/54b3r/pmrag-go/internal/rag"
)

// OllamaConfig configures an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the server base URL, e.g. http://localhost:11434.
	Host string
	// Model is the embedding model, e.g. nomic-embed-text.
	Model string
	// Dimensions shortens the output on models that support it. Zero keeps
	// the model's native size.
	Dimensions int
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// OllamaEmbedder calls a local Ollama server's /api/embed. It needs no
// credentials and is safe for concurrent use.
type OllamaEmbedder struct {
	cfg    OllamaConfig
	poster jsonPoster
}

// NewOllamaEmbedder returns an embedder for cfg.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	return &OllamaEmbedder{cfg: *cfg, poster: newJSONPoster(cfg.HTTPClient, "error")}
}

// Embed returns one vector per text. Errors are *rag.ProviderError.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	raw, err := e.poster.post(ctx, e.cfg.Host+"/api/embed", nil, struct {
		Model      string   `json:"model"`
		Input      []string `json:"input"`
		Dimensions int      `json:"dimensions,omitempty"`
		Truncate   bool     `json:"truncate"`
	}{e.cfg.Model, texts, e.cfg.Dimensions, true})
	if err != nil {
		return nil, &rag.ProviderError{Provider: "ollama", Err: err}
	}

	var reply struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, &rag.ProviderError{Provider: "ollama", Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(reply.Embeddings) != len(texts) {
		return nil, &rag.ProviderError{
			Provider: "ollama",
			Err:      fmt.Errorf("expected %d embeddings, got %d", len(texts), len(reply.Embeddings)),
		}
	}
	return reply.Embeddings, nil
}
