package embedder

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/54b3r/pmrag-go/internal/rag"
)

func Test_GeminiEmbedder_ErrorIsProviderError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad request","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	e, err := NewGeminiEmbedder(context.Background(), &GeminiConfig{
		APIKey:     "test",
		Model:      "gemini-embedding-001",
		Dimensions: 8,
		BaseURL:    srv.URL,
	})
	if err != nil {
		t.Fatalf("NewGeminiEmbedder: %v", err)
	}

	_, err = e.Embed(context.Background(), []string{"hello"})
	var pe *rag.ProviderError
	if !errors.As(err, &pe) || pe.Provider != "gemini" {
		t.Fatalf("want gemini ProviderError, got %v", err)
	}
}
