package embedder

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
)

// credentialEnv lists, per backend, the env vars any one of which supplies
// the API key. EMBEDDING_API_KEY is always tried first.
var credentialEnv = map[string][]string{
	"openai":    {"EMBEDDING_API_KEY", "OPENAI_API_KEY"},
	"azure":     {"EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY"},
	"dashscope": {"EMBEDDING_API_KEY", "DASHSCOPE_API_KEY"},
	"gemini":    {"EMBEDDING_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// chatModelMarkers are substrings of generation model names. Embedding
// models that share a family name (qwen3-embedding) carry "embed" and are
// never flagged.
var chatModelMarkers = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3",
	"llama3", "llama-3", "mistral", "mixtral", "gemma", "phi3",
	"claude", "deepseek", "qwen-", "qwen2", "glm-",
}

func looksLikeChatModel(model string) bool {
	m := strings.ToLower(model)
	if strings.Contains(m, "embed") {
		return false
	}
	return slices.ContainsFunc(chatModelMarkers, func(marker string) bool {
		return strings.Contains(m, marker)
	})
}

// Validate checks the embedding env vars before anything is built, so a
// misconfiguration fails at startup rather than degrading silently into
// fallback vectors. Every hard problem is reported in one joined error;
// questionable but workable settings are logged as warnings.
func Validate(log *slog.Logger) error {
	backend := Provider()
	if !slices.Contains(Backends, backend) {
		return fmt.Errorf("embedder: unknown EMBEDDING_PROVIDER %q (valid values: %v)", backend, Backends)
	}

	var problems []error
	if v := os.Getenv("EMBEDDING_DIMENSIONS"); v != "" && getEnvInt("EMBEDDING_DIMENSIONS", 0) <= 0 {
		problems = append(problems, fmt.Errorf("EMBEDDING_DIMENSIONS must be a positive integer, got %q", v))
	}
	if keys := credentialEnv[backend]; len(keys) > 0 && firstEnv(keys...) == "" {
		problems = append(problems, fmt.Errorf("%s requires one of %s", backend, strings.Join(keys, ", ")))
	}
	if backend == "azure" && firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT") == "" {
		problems = append(problems, errors.New("azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT"))
	}
	if err := errors.Join(problems...); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}

	if backend == "local" && os.Getenv("VECTOR_BACKEND") == "qdrant" {
		log.Warn("embedder: local vectors are being written to qdrant; changing provider later means re-indexing",
			slog.String("hint", "set EMBEDDING_PROVIDER to a real embedding backend"),
		)
	}
	if model := os.Getenv("EMBEDDING_MODEL"); model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model; its vectors will rank poorly",
			slog.String("model", model),
			slog.String("hint", "use an embedding model such as text-embedding-v4 or text-embedding-3-small"),
		)
	}
	return nil
}
