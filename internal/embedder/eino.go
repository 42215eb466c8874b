package embedder

import (
	"context"

	"github.com/cloudwego/eino/components/embedding"
)

// EinoEmbedder exposes an Adapter as an Eino embedding.Embedder so Eino
// pipelines embed text exactly as the index does.
type EinoEmbedder struct {
	adapter *Adapter
}

var _ embedding.Embedder = (*EinoEmbedder)(nil)

// NewEinoEmbedder wraps adapter.
func NewEinoEmbedder(adapter *Adapter) *EinoEmbedder {
	return &EinoEmbedder{adapter: adapter}
}

// GetType names this component in Eino callbacks.
func (e *EinoEmbedder) GetType() string { return "PMRAG" }

// EmbedStrings implements embedding.Embedder.
func (e *EinoEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	vecs, err := e.adapter.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(vecs))
	for i, v := range vecs {
		row := make([]float64, len(v))
		for j, x := range v {
			row[j] = float64(x)
		}
		out[i] = row
	}
	return out, nil
}
