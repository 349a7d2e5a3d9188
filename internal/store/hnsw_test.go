package store

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVectorIndex(t *testing.T, dims int) *HNSWIndex {
	t.Helper()
	idx, err := NewHNSWIndex(DefaultVectorIndexConfig(dims))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestHNSWAddAndSearch(t *testing.T) {
	idx := newTestVectorIndex(t, 3)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]string{"frag-a", "frag-b", "frag-c"},
		[][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0.9, 0.1, 0},
		}))

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "frag-a", results[0].ID)
	assert.Equal(t, "frag-c", results[1].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestHNSWCosineScoreIsRawSimilarity(t *testing.T) {
	idx := newTestVectorIndex(t, 2)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]string{"frag-a", "frag-b"},
		[][]float32{
			{1, 1},
			{-1, 0},
		}))

	results, err := idx.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Scores are the cosine similarity of the unit vectors, not a
	// rescaled value: cos({1,1},{1,0}) = sqrt(2)/2, cos({-1,0},{1,0}) = -1.
	assert.Equal(t, "frag-a", results[0].ID)
	assert.InDelta(t, math.Sqrt2/2, float64(results[0].Score), 0.001)
	assert.Equal(t, "frag-b", results[1].ID)
	assert.InDelta(t, -1.0, float64(results[1].Score), 0.001)
}

func TestHNSWDimensionMismatch(t *testing.T) {
	idx := newTestVectorIndex(t, 3)
	ctx := context.Background()

	err := idx.Add(ctx, []string{"frag-a"}, [][]float32{{1, 0}})
	var dimErr ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)

	_, err = idx.Search(ctx, []float32{1, 0}, 5)
	require.ErrorAs(t, err, &dimErr)
}

func TestHNSWEmptyIndex(t *testing.T) {
	idx := newTestVectorIndex(t, 3)

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, idx.Count())
}

func TestHNSWReplaceExisting(t *testing.T) {
	idx := newTestVectorIndex(t, 3)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []string{"frag-a"}, [][]float32{{1, 0, 0}}))
	require.NoError(t, idx.Add(ctx, []string{"frag-a"}, [][]float32{{0, 1, 0}}))

	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "frag-a", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.001)
}

func TestHNSWDelete(t *testing.T) {
	idx := newTestVectorIndex(t, 3)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]string{"frag-a", "frag-b"},
		[][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, idx.Delete(ctx, []string{"frag-a", "frag-missing"}))

	assert.Equal(t, 1, idx.Count())
	assert.False(t, idx.Contains("frag-a"))
	assert.True(t, idx.Contains("frag-b"))

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "frag-b", results[0].ID)
}

func TestHNSWSnapshotIsolation(t *testing.T) {
	idx := newTestVectorIndex(t, 3)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []string{"frag-a"}, [][]float32{{1, 0, 0}}))

	// Concurrent readers while a writer swaps generations.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				results, err := idx.Search(ctx, []float32{1, 0, 0}, 5)
				assert.NoError(t, err)
				assert.NotEmpty(t, results)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 20; j++ {
			_ = idx.Add(ctx, []string{"frag-b"}, [][]float32{{0, 1, 0}})
		}
	}()

	wg.Wait()
}

func TestHNSWSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.idx")
	ctx := context.Background()

	idx := newTestVectorIndex(t, 3)
	require.NoError(t, idx.Add(ctx,
		[]string{"frag-a", "frag-b"},
		[][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, idx.Save(path))

	dims, err := ReadVectorIndexDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 3, dims)

	loaded := newTestVectorIndex(t, 3)
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 2, loaded.Count())

	results, err := loaded.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "frag-a", results[0].ID)
}

func TestReadVectorIndexDimensionsMissing(t *testing.T) {
	dims, err := ReadVectorIndexDimensions(filepath.Join(t.TempDir(), "nope.idx"))
	require.NoError(t, err)
	assert.Equal(t, 0, dims)
}

func TestHNSWRejectsInvalidDimensions(t *testing.T) {
	_, err := NewHNSWIndex(DefaultVectorIndexConfig(0))
	require.Error(t, err)
}
