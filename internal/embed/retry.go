package embed

import (
	"context"

	engerrors "github.com/scholargraph/scholarsearch/internal/errors"
)

// RetryingEmbedder wraps an Embedder with exponential backoff retries and a
// circuit breaker. Repeated failures open the circuit so queries fall back
// to lexical-only search instead of waiting out timeouts.
type RetryingEmbedder struct {
	inner   Embedder
	retry   engerrors.RetryConfig
	breaker *engerrors.CircuitBreaker
}

// Verify interface implementation at compile time
var _ Embedder = (*RetryingEmbedder)(nil)

// NewRetryingEmbedder creates a retrying embedder wrapping the given embedder.
func NewRetryingEmbedder(inner Embedder, retry engerrors.RetryConfig) *RetryingEmbedder {
	return &RetryingEmbedder{
		inner:   inner,
		retry:   retry,
		breaker: engerrors.NewCircuitBreaker("embedder"),
	}
}

// Embed generates an embedding with retries.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return engerrors.RetryWithResult(ctx, r.retry, func() ([]float32, error) {
		var result []float32
		err := r.breaker.Execute(func() error {
			var embErr error
			result, embErr = r.inner.Embed(ctx, text)
			return embErr
		})
		return result, err
	})
}

// EmbedBatch generates embeddings with retries.
func (r *RetryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return engerrors.RetryWithResult(ctx, r.retry, func() ([][]float32, error) {
		var result [][]float32
		err := r.breaker.Execute(func() error {
			var embErr error
			result, embErr = r.inner.EmbedBatch(ctx, texts)
			return embErr
		})
		return result, err
	})
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (r *RetryingEmbedder) Dimensions() int {
	return r.inner.Dimensions()
}

// ModelName returns the model identifier (passthrough to inner).
func (r *RetryingEmbedder) ModelName() string {
	return r.inner.ModelName()
}

// Available checks readiness, honoring the circuit breaker state.
func (r *RetryingEmbedder) Available(ctx context.Context) bool {
	if !r.breaker.Allow() {
		return false
	}
	return r.inner.Available(ctx)
}

// Close releases resources and closes the inner embedder.
func (r *RetryingEmbedder) Close() error {
	return r.inner.Close()
}
