package search

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engerrors "github.com/scholargraph/scholarsearch/internal/errors"
	"github.com/scholargraph/scholarsearch/internal/store"
)

// recordingLexicalIndex captures indexed and deleted documents.
type recordingLexicalIndex struct {
	docs    map[string]*store.Document
	deleted []string
}

var _ store.LexicalIndex = (*recordingLexicalIndex)(nil)

func newRecordingLexicalIndex() *recordingLexicalIndex {
	return &recordingLexicalIndex{docs: map[string]*store.Document{}}
}

func (r *recordingLexicalIndex) Index(_ context.Context, docs []*store.Document) error {
	for _, d := range docs {
		r.docs[d.ID] = d
	}
	return nil
}

func (r *recordingLexicalIndex) Search(_ context.Context, _ string, _ []store.ChunkType, _ int) ([]*store.LexicalResult, error) {
	return nil, nil
}

func (r *recordingLexicalIndex) Delete(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(r.docs, id)
	}
	r.deleted = append(r.deleted, ids...)
	return nil
}

func (r *recordingLexicalIndex) AllIDs() ([]string, error) {
	ids := make([]string, 0, len(r.docs))
	for id := range r.docs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *recordingLexicalIndex) Stats() *store.IndexStats {
	return &store.IndexStats{DocumentCount: len(r.docs)}
}

func (r *recordingLexicalIndex) Save(_ string) error { return nil }
func (r *recordingLexicalIndex) Close() error        { return nil }

// recordingVectorIndex captures added vectors.
type recordingVectorIndex struct {
	fakeVectorIndex
	added map[string][]float32
}

func newRecordingVectorIndex(dims int) *recordingVectorIndex {
	return &recordingVectorIndex{
		fakeVectorIndex: fakeVectorIndex{dims: dims},
		added:           map[string][]float32{},
	}
}

func (r *recordingVectorIndex) Add(_ context.Context, ids []string, vectors [][]float32) error {
	for i, id := range ids {
		r.added[id] = vectors[i]
	}
	return nil
}

func (r *recordingVectorIndex) Delete(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(r.added, id)
	}
	return nil
}

func newTestIndexer(t *testing.T, lexical store.LexicalIndex, vector store.VectorIndex, meta store.MetadataStore) *Indexer {
	t.Helper()
	return NewIndexer(lexical, vector, meta, t.TempDir(), IndexerConfig{
		Model: "nomic-embed-text",
	})
}

func TestIndexFragmentsStoresEverywhere(t *testing.T) {
	lexical := newRecordingLexicalIndex()
	vector := newRecordingVectorIndex(4)
	meta := newMemMeta()
	ix := newTestIndexer(t, lexical, vector, meta)

	fragments := []*store.Fragment{
		{ID: "F1", Type: store.ChunkTypeWorkAbstract, Content: "abstract text"},
		{ID: "F2", Type: store.ChunkTypeProfileSummary, Content: "summary text"},
	}
	embeddings := map[string][]float32{
		"F1": {0.1, 0.2, 0.3, 0.4},
	}

	ctx := context.Background()
	require.NoError(t, ix.IndexFragments(ctx, fragments, embeddings))

	// Metadata, lexical, and vector stores all see the fragments.
	frag, err := meta.GetFragment(ctx, "F1")
	require.NoError(t, err)
	require.NotNil(t, frag)

	assert.Contains(t, lexical.docs, "F1")
	assert.Contains(t, lexical.docs, "F2")
	assert.Equal(t, "abstract text", lexical.docs["F1"].Content)

	// F2 has no embedding and stays lexical-only.
	assert.Contains(t, vector.added, "F1")
	assert.NotContains(t, vector.added, "F2")

	// Index state records dimension and model for startup checks.
	dim, err := meta.GetState(ctx, store.StateKeyIndexDimension)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(4), dim)
	model, err := meta.GetState(ctx, store.StateKeyIndexModel)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", model)
}

func TestIndexFragmentsRejectsInvalidInput(t *testing.T) {
	ix := newTestIndexer(t, newRecordingLexicalIndex(), newRecordingVectorIndex(4), newMemMeta())
	ctx := context.Background()

	err := ix.IndexFragments(ctx, []*store.Fragment{
		{ID: "", Type: store.ChunkTypeWorkTitle, Content: "x"},
	}, nil)
	require.Error(t, err)
	assert.Equal(t, engerrors.ErrCodeFragmentInvalid, engerrors.GetCode(err))

	err = ix.IndexFragments(ctx, []*store.Fragment{
		{ID: "F1", Type: "tweet", Content: "x"},
	}, nil)
	require.Error(t, err)
	assert.Equal(t, engerrors.ErrCodeChunkTypeInvalid, engerrors.GetCode(err))
}

func TestIndexFragmentsRejectsWrongDimension(t *testing.T) {
	ix := newTestIndexer(t, newRecordingLexicalIndex(), newRecordingVectorIndex(4), newMemMeta())

	err := ix.IndexFragments(context.Background(), []*store.Fragment{
		{ID: "F1", Type: store.ChunkTypeWorkAbstract, Content: "x"},
	}, map[string][]float32{
		"F1": {0.1, 0.2}, // index expects 4
	})
	require.Error(t, err)
	assert.Equal(t, engerrors.ErrCodeDimensionMismatch, engerrors.GetCode(err))
	assert.True(t, engerrors.IsFatal(err))
}

func TestDeleteFragmentsRemovesEverywhere(t *testing.T) {
	lexical := newRecordingLexicalIndex()
	vector := newRecordingVectorIndex(4)
	meta := newMemMeta()
	ix := newTestIndexer(t, lexical, vector, meta)

	ctx := context.Background()
	require.NoError(t, ix.IndexFragments(ctx, []*store.Fragment{
		{ID: "F1", Type: store.ChunkTypeWorkAbstract, Content: "x"},
	}, map[string][]float32{"F1": {1, 2, 3, 4}}))

	require.NoError(t, ix.DeleteFragments(ctx, []string{"F1"}))

	frag, err := meta.GetFragment(ctx, "F1")
	require.NoError(t, err)
	assert.Nil(t, frag)
	assert.NotContains(t, lexical.docs, "F1")
	assert.NotContains(t, vector.added, "F1")
}

func TestIndexFragmentsEmptyBatchIsNoOp(t *testing.T) {
	ix := newTestIndexer(t, newRecordingLexicalIndex(), newRecordingVectorIndex(4), newMemMeta())
	require.NoError(t, ix.IndexFragments(context.Background(), nil, nil))
	require.NoError(t, ix.DeleteFragments(context.Background(), nil))
}
