package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	engerrors "github.com/scholargraph/scholarsearch/internal/errors"
	"github.com/scholargraph/scholarsearch/internal/store"
)

// Indexer loads fragments and their pre-computed embeddings into the
// three stores under the cross-process write lock. The corpus arrives
// already embedded; the engine only embeds queries.
type Indexer struct {
	lexical store.LexicalIndex
	vector  store.VectorIndex
	meta    store.MetadataStore
	lock    *store.IndexLock
	logger  *slog.Logger

	vectorPath  string
	lexicalPath string
	model       string
}

// IndexerConfig configures an Indexer.
type IndexerConfig struct {
	// LexicalPath is where the lexical index persists.
	LexicalPath string

	// VectorPath is where the vector index persists.
	VectorPath string

	// Model is the embedding model the corpus vectors were produced with,
	// recorded in index state for startup dimension checks.
	Model string

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// NewIndexer creates an indexer over the given stores. lockDir is the
// index directory guarded against concurrent writers.
func NewIndexer(lexical store.LexicalIndex, vector store.VectorIndex, meta store.MetadataStore, lockDir string, cfg IndexerConfig) *Indexer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		lexical:     lexical,
		vector:      vector,
		meta:        meta,
		lock:        store.NewIndexLock(lockDir),
		logger:      logger,
		vectorPath:  cfg.VectorPath,
		lexicalPath: cfg.LexicalPath,
		model:       cfg.Model,
	}
}

// IndexFragments stores fragments in the metadata store, the lexical
// index, and (where an embedding is provided) the vector index.
// Fragments without an embedding remain lexically searchable.
// Existing fragment IDs are replaced in all three stores.
func (ix *Indexer) IndexFragments(ctx context.Context, fragments []*store.Fragment, embeddings map[string][]float32) error {
	if len(fragments) == 0 {
		return nil
	}

	for _, f := range fragments {
		if f.ID == "" {
			return engerrors.InputError(engerrors.ErrCodeFragmentInvalid,
				"fragment ID must not be empty")
		}
		if !store.ValidChunkType(f.Type) {
			return engerrors.InputError(engerrors.ErrCodeChunkTypeInvalid,
				fmt.Sprintf("fragment %s has unsupported type %q", f.ID, f.Type))
		}
	}

	dims := ix.vector.Dimensions()
	for id, vec := range embeddings {
		if len(vec) != dims {
			return engerrors.ConfigError(engerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("embedding for fragment %s has %d dimensions, index expects %d",
					id, len(vec), dims), nil)
		}
	}

	if err := ix.lock.Lock(); err != nil {
		return engerrors.InternalError("failed to acquire index write lock", err)
	}
	defer func() { _ = ix.lock.Unlock() }()

	if err := ix.meta.SaveFragments(ctx, fragments); err != nil {
		return engerrors.New(engerrors.ErrCodeStoreFailed, "failed to save fragment metadata", err)
	}

	docs := make([]*store.Document, len(fragments))
	for i, f := range fragments {
		docs[i] = &store.Document{
			ID:        f.ID,
			ChunkType: f.Type,
			Content:   f.Content,
		}
	}
	if err := ix.lexical.Index(ctx, docs); err != nil {
		return engerrors.New(engerrors.ErrCodeStoreFailed, "failed to index fragments lexically", err)
	}

	var ids []string
	var vectors [][]float32
	for _, f := range fragments {
		if vec, ok := embeddings[f.ID]; ok {
			ids = append(ids, f.ID)
			vectors = append(vectors, vec)
		}
	}
	if len(ids) > 0 {
		if err := ix.vector.Add(ctx, ids, vectors); err != nil {
			return engerrors.New(engerrors.ErrCodeStoreFailed, "failed to add fragment vectors", err)
		}
	}

	if err := ix.recordIndexState(ctx, dims); err != nil {
		return err
	}

	ix.logger.Info("indexed fragments",
		"fragments", len(fragments),
		"with_vectors", len(ids))
	return nil
}

// SavePersons stores researcher display records.
func (ix *Indexer) SavePersons(ctx context.Context, persons []*store.Person) error {
	if err := ix.meta.SavePersons(ctx, persons); err != nil {
		return engerrors.New(engerrors.ErrCodeStoreFailed, "failed to save persons", err)
	}
	return nil
}

// SavePublications stores publication display records.
func (ix *Indexer) SavePublications(ctx context.Context, publications []*store.Publication) error {
	if err := ix.meta.SavePublications(ctx, publications); err != nil {
		return engerrors.New(engerrors.ErrCodeStoreFailed, "failed to save publications", err)
	}
	return nil
}

// DeleteFragments removes fragments from all three stores.
func (ix *Indexer) DeleteFragments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	if err := ix.lock.Lock(); err != nil {
		return engerrors.InternalError("failed to acquire index write lock", err)
	}
	defer func() { _ = ix.lock.Unlock() }()

	if err := ix.lexical.Delete(ctx, ids); err != nil {
		return engerrors.New(engerrors.ErrCodeStoreFailed, "failed to delete from lexical index", err)
	}
	if err := ix.vector.Delete(ctx, ids); err != nil {
		return engerrors.New(engerrors.ErrCodeStoreFailed, "failed to delete from vector index", err)
	}
	if err := ix.meta.DeleteFragments(ctx, ids); err != nil {
		return engerrors.New(engerrors.ErrCodeStoreFailed, "failed to delete fragment metadata", err)
	}

	ix.logger.Info("deleted fragments", "count", len(ids))
	return nil
}

// Save persists both indexes to their configured paths.
func (ix *Indexer) Save() error {
	if ix.lexicalPath != "" {
		if err := ix.lexical.Save(ix.lexicalPath); err != nil {
			return engerrors.New(engerrors.ErrCodeStoreFailed, "failed to save lexical index", err)
		}
	}
	if ix.vectorPath != "" {
		if err := ix.vector.Save(ix.vectorPath); err != nil {
			return engerrors.New(engerrors.ErrCodeStoreFailed, "failed to save vector index", err)
		}
	}
	return nil
}

// recordIndexState persists the embedding dimension and model so startup
// can reject a mismatched embedder before serving queries.
func (ix *Indexer) recordIndexState(ctx context.Context, dims int) error {
	if err := ix.meta.SetState(ctx, store.StateKeyIndexDimension, strconv.Itoa(dims)); err != nil {
		return engerrors.New(engerrors.ErrCodeStoreFailed, "failed to record index dimension", err)
	}
	if ix.model != "" {
		if err := ix.meta.SetState(ctx, store.StateKeyIndexModel, ix.model); err != nil {
			return engerrors.New(engerrors.ErrCodeStoreFailed, "failed to record index model", err)
		}
	}
	return nil
}
