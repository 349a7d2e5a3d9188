package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engerrors "github.com/scholargraph/scholarsearch/internal/errors"
	"github.com/scholargraph/scholarsearch/internal/store"
)

// fakeEmbedder produces a fixed vector.
type fakeEmbedder struct {
	dims int
	err  error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, f.dims), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int                   { return f.dims }
func (f *fakeEmbedder) ModelName() string                 { return "fake" }
func (f *fakeEmbedder) Available(_ context.Context) bool  { return true }
func (f *fakeEmbedder) Close() error                      { return nil }

// fakeVectorIndex returns canned results and records the requested k.
type fakeVectorIndex struct {
	dims    int
	results []*store.VectorResult
	err     error
	lastK   int
}

func (f *fakeVectorIndex) Add(_ context.Context, _ []string, _ [][]float32) error { return nil }

func (f *fakeVectorIndex) Search(_ context.Context, _ []float32, k int) ([]*store.VectorResult, error) {
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > k {
		return f.results[:k], nil
	}
	return f.results, nil
}

func (f *fakeVectorIndex) Delete(_ context.Context, _ []string) error { return nil }
func (f *fakeVectorIndex) Contains(_ string) bool                     { return false }
func (f *fakeVectorIndex) Count() int                                 { return len(f.results) }
func (f *fakeVectorIndex) Dimensions() int                            { return f.dims }
func (f *fakeVectorIndex) Save(_ string) error                        { return nil }
func (f *fakeVectorIndex) Load(_ string) error                        { return nil }
func (f *fakeVectorIndex) Close() error                               { return nil }

type failingLexicalIndex struct {
	store.LexicalIndex
}

func (f *failingLexicalIndex) Search(_ context.Context, _ string, _ []store.ChunkType, _ int) ([]*store.LexicalResult, error) {
	return nil, errors.New("fts table corrupt")
}

func TestStoreLexicalSearcherWrapsFailures(t *testing.T) {
	s := NewStoreLexicalSearcher(&failingLexicalIndex{})

	_, err := s.Search(context.Background(), "q", nil, 10)
	require.Error(t, err)
	assert.Equal(t, engerrors.ErrCodeLexicalUnavailable, engerrors.GetCode(err))
	assert.True(t, engerrors.IsRetryable(err))
}

func TestVectorSearcherRejectsDimensionMismatchAtConstruction(t *testing.T) {
	index := &fakeVectorIndex{dims: 768}
	embedder := &fakeEmbedder{dims: 384}

	_, err := NewEmbeddingVectorSearcher(index, embedder, newMemMeta())
	require.Error(t, err)
	assert.Equal(t, engerrors.ErrCodeDimensionMismatch, engerrors.GetCode(err))
	assert.True(t, engerrors.IsFatal(err))
}

func TestVectorSearcherSearches(t *testing.T) {
	index := &fakeVectorIndex{dims: 4, results: []*store.VectorResult{
		{ID: "F1", Score: 0.9},
		{ID: "F2", Score: 0.8},
	}}
	s, err := NewEmbeddingVectorSearcher(index, &fakeEmbedder{dims: 4}, newMemMeta())
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "q", nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "F1", results[0].ID)
	assert.Equal(t, 10, index.lastK)
}

func TestVectorSearcherEmbeddingFailure(t *testing.T) {
	index := &fakeVectorIndex{dims: 4}
	embedder := &fakeEmbedder{dims: 4, err: errors.New("connection refused")}
	s, err := NewEmbeddingVectorSearcher(index, embedder, newMemMeta())
	require.NoError(t, err)

	_, err = s.Search(context.Background(), "q", nil, 10)
	require.Error(t, err)
	assert.Equal(t, engerrors.ErrCodeEmbeddingUnavailable, engerrors.GetCode(err))
	assert.True(t, engerrors.IsUpstream(err))
}

func TestVectorSearcherTypeFilterOversamples(t *testing.T) {
	meta := seededMeta(t)
	index := &fakeVectorIndex{dims: 4, results: []*store.VectorResult{
		{ID: "F3", Score: 0.95}, // profile-summary
		{ID: "F1", Score: 0.90}, // work-abstract
		{ID: "F2", Score: 0.85}, // work-title
	}}
	s, err := NewEmbeddingVectorSearcher(index, &fakeEmbedder{dims: 4}, meta)
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "q",
		[]store.ChunkType{store.ChunkTypeWorkAbstract, store.ChunkTypeWorkTitle}, 2)
	require.NoError(t, err)

	// The index is asked for more than the limit so filtering can refill.
	assert.Equal(t, 8, index.lastK)
	require.Len(t, results, 2)
	assert.Equal(t, "F1", results[0].ID)
	assert.Equal(t, "F2", results[1].ID)
}

func TestVectorSearcherIndexDimensionMismatchAtQuery(t *testing.T) {
	index := &fakeVectorIndex{dims: 4, err: store.ErrDimensionMismatch{Expected: 4, Got: 8}}
	s, err := NewEmbeddingVectorSearcher(index, &fakeEmbedder{dims: 4}, newMemMeta())
	require.NoError(t, err)

	_, err = s.Search(context.Background(), "q", nil, 10)
	require.Error(t, err)
	assert.Equal(t, engerrors.ErrCodeDimensionMismatch, engerrors.GetCode(err))
	assert.True(t, engerrors.IsConfig(err))
}
