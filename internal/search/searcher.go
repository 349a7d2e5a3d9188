package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/scholargraph/scholarsearch/internal/embed"
	engerrors "github.com/scholargraph/scholarsearch/internal/errors"
	"github.com/scholargraph/scholarsearch/internal/store"
)

// LexicalSearcher is the term-based retrieval strategy.
type LexicalSearcher interface {
	Search(ctx context.Context, query string, chunkTypes []store.ChunkType, limit int) ([]*store.LexicalResult, error)
}

// VectorSearcher is the embedding-similarity retrieval strategy.
type VectorSearcher interface {
	Search(ctx context.Context, query string, chunkTypes []store.ChunkType, limit int) ([]*store.VectorResult, error)
}

// StoreLexicalSearcher wraps the lexical index.
type StoreLexicalSearcher struct {
	index store.LexicalIndex
}

var _ LexicalSearcher = (*StoreLexicalSearcher)(nil)

// NewStoreLexicalSearcher creates a lexical searcher over the given index.
func NewStoreLexicalSearcher(index store.LexicalIndex) *StoreLexicalSearcher {
	return &StoreLexicalSearcher{index: index}
}

// Search runs the lexical query. Store failures are reported upward; the
// orchestrator decides whether to degrade.
func (s *StoreLexicalSearcher) Search(ctx context.Context, query string, chunkTypes []store.ChunkType, limit int) ([]*store.LexicalResult, error) {
	results, err := s.index.Search(ctx, query, chunkTypes, limit)
	if err != nil {
		return nil, engerrors.UpstreamError(engerrors.ErrCodeLexicalUnavailable,
			"lexical search failed", err)
	}
	return results, nil
}

// EmbeddingVectorSearcher embeds the query and searches the vector index.
// The optional fragment-type filter is applied by resolving candidate
// types through the metadata store, oversampling to keep the requested
// candidate count after filtering.
type EmbeddingVectorSearcher struct {
	index    store.VectorIndex
	embedder embed.Embedder
	meta     store.MetadataStore
}

var _ VectorSearcher = (*EmbeddingVectorSearcher)(nil)

// NewEmbeddingVectorSearcher creates a vector searcher.
// The embedder's dimension must match the index; a mismatch is a fatal
// configuration error, detected here rather than per query.
func NewEmbeddingVectorSearcher(index store.VectorIndex, embedder embed.Embedder, meta store.MetadataStore) (*EmbeddingVectorSearcher, error) {
	if embedder.Dimensions() != index.Dimensions() {
		return nil, engerrors.ConfigError(engerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedder produces %d-dimension vectors but index was built with %d",
				embedder.Dimensions(), index.Dimensions()), nil)
	}
	return &EmbeddingVectorSearcher{
		index:    index,
		embedder: embedder,
		meta:     meta,
	}, nil
}

// Search embeds the query and returns the nearest fragments.
func (s *EmbeddingVectorSearcher) Search(ctx context.Context, query string, chunkTypes []store.ChunkType, limit int) ([]*store.VectorResult, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		// Preserve the fatal dimension-mismatch classification; anything
		// else is an upstream embedding failure.
		if engerrors.IsConfig(err) {
			return nil, err
		}
		return nil, engerrors.UpstreamError(engerrors.ErrCodeEmbeddingUnavailable,
			"query embedding failed", err)
	}

	k := limit
	if len(chunkTypes) > 0 {
		// Oversample so type filtering can still fill the limit.
		k = limit * 4
	}

	results, err := s.index.Search(ctx, vector, k)
	if err != nil {
		var dimErr store.ErrDimensionMismatch
		if errors.As(err, &dimErr) {
			return nil, engerrors.ConfigError(engerrors.ErrCodeDimensionMismatch,
				dimErr.Error(), err)
		}
		return nil, engerrors.UpstreamError(engerrors.ErrCodeVectorUnavailable,
			"vector search failed", err)
	}

	if len(chunkTypes) > 0 {
		results, err = s.filterByType(ctx, results, chunkTypes, limit)
		if err != nil {
			return nil, err
		}
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// filterByType keeps only results whose fragment type is in the filter set.
func (s *EmbeddingVectorSearcher) filterByType(ctx context.Context, results []*store.VectorResult, chunkTypes []store.ChunkType, limit int) ([]*store.VectorResult, error) {
	if len(results) == 0 {
		return results, nil
	}

	wanted := make(map[store.ChunkType]struct{}, len(chunkTypes))
	for _, ct := range chunkTypes {
		wanted[ct] = struct{}{}
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}

	fragments, err := s.meta.GetFragments(ctx, ids)
	if err != nil {
		return nil, engerrors.UpstreamError(engerrors.ErrCodeVectorUnavailable,
			"fragment type lookup failed", err)
	}

	typeByID := make(map[string]store.ChunkType, len(fragments))
	for _, f := range fragments {
		typeByID[f.ID] = f.Type
	}

	filtered := make([]*store.VectorResult, 0, limit)
	for _, r := range results {
		if t, ok := typeByID[r.ID]; ok {
			if _, want := wanted[t]; want {
				filtered = append(filtered, r)
				if len(filtered) == limit {
					break
				}
			}
		}
	}

	return filtered, nil
}
