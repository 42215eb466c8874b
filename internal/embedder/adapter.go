package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/54b3r/pmrag-go/internal/logging"
	"github.com/54b3r/pmrag-go/internal/rag"
)

const (
	// DefaultDimensions is the vector length requested from providers.
	DefaultDimensions = 1024

	// DefaultMaxChars is the provider input limit in characters.
	DefaultMaxChars = 8192

	// DefaultTimeout bounds one primary provider call.
	DefaultTimeout = 10 * time.Second
)

// AdapterConfig holds the settings for constructing an Adapter.
type AdapterConfig struct {
	// Primary is the external provider. Nil means local vectors only.
	Primary rag.Embedder

	// Provider names the primary backend in logs and metrics.
	Provider string

	// Dimensions is the fixed output length. Defaults to 1024.
	Dimensions int

	// MaxChars bounds each input before embedding. Defaults to 8192.
	MaxChars int

	// Timeout bounds each primary call. Defaults to 10s.
	Timeout time.Duration

	// Metrics is optional.
	Metrics *Metrics
}

// Adapter implements rag.Embedder over an external provider and hides its
// failures: inputs are truncated first, the provider is called once per batch
// under a timeout, and any failure, timeout, or wrong-length vector falls
// back to the deterministic LocalEmbedder for the affected texts. Embed never
// returns an error. No retries are performed.
type Adapter struct {
	primary  rag.Embedder
	provider string
	local    *LocalEmbedder
	maxChars int
	timeout  time.Duration
	metrics  *Metrics
}

var _ rag.Embedder = (*Adapter)(nil)

// NewAdapter constructs an Adapter from cfg.
func NewAdapter(cfg *AdapterConfig) (*Adapter, error) {
	dims := cfg.Dimensions
	if dims == 0 {
		dims = DefaultDimensions
	}
	if dims < 0 {
		return nil, fmt.Errorf("embedder: dimensions must be positive, got %d", dims)
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "local"
	}

	return &Adapter{
		primary:  cfg.Primary,
		provider: provider,
		local:    newLocalEmbedder(dims, maxChars),
		maxChars: maxChars,
		timeout:  timeout,
		metrics:  cfg.Metrics,
	}, nil
}

// Dimensions returns the fixed output vector length.
func (a *Adapter) Dimensions() int { return a.local.Dimensions() }

// Provider returns the primary backend name, or "local".
func (a *Adapter) Provider() string { return a.provider }

// Embed returns one vector per text, each exactly Dimensions long.
func (a *Adapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	log := logging.FromContext(ctx)
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = truncate(t, a.maxChars)
		if len(inputs[i]) != len(t) {
			log.Warn("embedder: input truncated",
				slog.Int("index", i),
				slog.Int("chars", utf8.RuneCountInString(t)),
				slog.Int("max_chars", a.maxChars),
			)
		}
	}

	if a.primary == nil {
		return a.localAll(inputs), nil
	}

	vecs, err := a.callPrimary(ctx, inputs)
	if err != nil {
		reason := reasonError
		if errors.Is(err, context.DeadlineExceeded) {
			reason = reasonTimeout
		}
		attrs := []slog.Attr{
			slog.String("provider", a.provider),
			slog.String("reason", reason),
			slog.Int("texts", len(inputs)),
			slog.String("error", err.Error()),
		}
		var se *StatusError
		if errors.As(err, &se) {
			attrs = append(attrs, slog.Int("status", se.Code))
		}
		log.LogAttrs(ctx, slog.LevelWarn, "embedder: provider failed, using local fallback", attrs...)
		a.countFallback(reason, len(inputs))
		return a.localAll(inputs), nil
	}

	out := make([][]float32, len(inputs))
	for i := range inputs {
		if i < len(vecs) && len(vecs[i]) == a.Dimensions() {
			out[i] = vecs[i]
			continue
		}
		got := 0
		if i < len(vecs) {
			got = len(vecs[i])
		}
		log.Warn("embedder: provider returned wrong dimension, using local fallback",
			slog.String("provider", a.provider),
			slog.Int("index", i),
			slog.Int("want", a.Dimensions()),
			slog.Int("got", got),
		)
		a.countFallback(reasonDimension, 1)
		out[i] = a.local.Vector(inputs[i])
	}
	return out, nil
}

// callPrimary invokes the provider once under the configured timeout.
func (a *Adapter) callPrimary(ctx context.Context, inputs []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	vecs, err := a.primary.Embed(ctx, inputs)
	if a.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		a.metrics.providerDuration.WithLabelValues(a.provider, status).Observe(time.Since(start).Seconds())
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return vecs, err
}

// localAll embeds every input with the fallback.
func (a *Adapter) localAll(inputs []string) [][]float32 {
	out := make([][]float32, len(inputs))
	for i, t := range inputs {
		out[i] = a.local.Vector(t)
	}
	return out
}

// countFallback records n fallback embeddings for reason.
func (a *Adapter) countFallback(reason string, n int) {
	if a.metrics != nil {
		a.metrics.fallbacks.WithLabelValues(reason).Add(float64(n))
	}
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
