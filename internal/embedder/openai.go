// Package embedder provides the rag.Embedder implementations: the fallback
// Adapter that every external provider is wrapped in, the deterministic
// LocalEmbedder it falls back to, and the provider clients (OpenAI-compatible
// REST for OpenAI, Azure OpenAI and DashScope; Ollama; Gemini via genai).
package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/54b3r/pmrag-go/internal/rag"
)

// OpenAIConfig configures an OpenAIEmbedder. One client type serves every
// backend that speaks the OpenAI /embeddings wire format.
type OpenAIConfig struct {
	// Provider labels errors. Defaults to "openai".
	Provider string
	// BaseURL is the API root:
	//   OpenAI     https://api.openai.com/v1
	//   Azure      https://<resource>.openai.azure.com/openai
	//   DashScope  https://dashscope.aliyuncs.com/compatible-mode/v1
	BaseURL string
	// APIKey authenticates every request.
	APIKey string
	// Model is the model name, or the deployment name on Azure.
	Model string
	// Dimensions requests a shortened vector. Zero keeps the model default.
	Dimensions int
	// BatchSize splits large inputs across requests. DashScope accepts at
	// most 10 inputs per call; zero sends everything at once.
	BatchSize int
	// Azure switches to the api-key header and deployment-scoped URLs.
	Azure bool
	// APIVersion is sent as api-version on Azure and ignored otherwise.
	APIVersion string
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint. It is safe
// for concurrent use.
type OpenAIEmbedder struct {
	cfg      OpenAIConfig
	endpoint string
	header   http.Header
	poster   jsonPoster
}

// NewOpenAIEmbedder returns an embedder for cfg.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	c := *cfg
	if c.Provider == "" {
		c.Provider = "openai"
	}

	header := http.Header{}
	endpoint := c.BaseURL + "/embeddings"
	if c.Azure {
		header.Set("api-key", c.APIKey)
		endpoint = c.BaseURL + "/deployments/" + url.PathEscape(c.Model) +
			"/embeddings?api-version=" + url.QueryEscape(c.APIVersion)
	} else {
		header.Set("Authorization", "Bearer "+c.APIKey)
	}

	return &OpenAIEmbedder{
		cfg:      c,
		endpoint: endpoint,
		header:   header,
		poster:   newJSONPoster(c.HTTPClient, "error.message"),
	}
}

// Embed returns one vector per text, issuing one request per BatchSize
// inputs. Errors are *rag.ProviderError.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	size := e.cfg.BatchSize
	if size <= 0 || size > len(texts) {
		size = len(texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		vecs, err := e.request(ctx, texts[start:min(start+size, len(texts))])
		if err != nil {
			return nil, &rag.ProviderError{Provider: e.cfg.Provider, Err: err}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// request embeds one batch. Replies may list vectors in any order, so each
// one is placed by its index field.
func (e *OpenAIEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	raw, err := e.poster.post(ctx, e.endpoint, e.header, struct {
		Input          []string `json:"input"`
		Model          string   `json:"model"`
		Dimensions     int      `json:"dimensions,omitempty"`
		EncodingFormat string   `json:"encoding_format"`
	}{texts, e.cfg.Model, e.cfg.Dimensions, "float"})
	if err != nil {
		return nil, err
	}

	var reply struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(reply.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(reply.Data))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range reply.Data {
		if d.Index < 0 || d.Index >= len(texts) || vecs[d.Index] != nil {
			return nil, fmt.Errorf("reply index %d is out of range or repeated", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}
