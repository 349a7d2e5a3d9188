package search

import (
	"context"
)

// RerankResult represents a single reranked result.
type RerankResult struct {
	// Index is the original position in the input documents slice
	Index int
	// Score is the relevance score (0.0 to 1.0)
	Score float64
}

// Reranker rescores the candidate window using a cross-encoder model.
// Cross-encoders jointly encode query-document pairs for more accurate
// relevance scoring than bi-encoders, at higher computational cost.
//
// A disabled or unavailable reranker is the same interface: the engine
// wires in NoOpReranker and the pipeline shape does not change.
type Reranker interface {
	// Rerank scores documents against the query and returns results
	// sorted by score descending, ties broken by original index ascending
	// (the prior fused rank).
	Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error)

	// Available checks if the reranker service is available
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// NoOpReranker returns candidates in their original order.
// Used when reranking is disabled or unavailable.
type NoOpReranker struct{}

// Verify interface implementation at compile time
var _ Reranker = (*NoOpReranker)(nil)

// Rerank returns documents in original order. No scores are fabricated;
// a pass-through never labels results as reranked.
func (n *NoOpReranker) Rerank(_ context.Context, _ string, documents []string) ([]RerankResult, error) {
	results := make([]RerankResult, len(documents))
	for i := range documents {
		results[i] = RerankResult{Index: i}
	}
	return results, nil
}

// Available always returns true for NoOpReranker.
func (n *NoOpReranker) Available(_ context.Context) bool {
	return true
}

// Close is a no-op for NoOpReranker.
func (n *NoOpReranker) Close() error {
	return nil
}
