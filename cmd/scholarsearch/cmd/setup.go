package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/scholargraph/scholarsearch/internal/config"
	"github.com/scholargraph/scholarsearch/internal/embed"
	engerrors "github.com/scholargraph/scholarsearch/internal/errors"
	"github.com/scholargraph/scholarsearch/internal/search"
	"github.com/scholargraph/scholarsearch/internal/store"
)

// engineDeps holds the wired pipeline and its resources.
type engineDeps struct {
	lexical  *store.SQLiteFTSIndex
	vector   *store.HNSWIndex
	meta     *store.SQLiteMetadataStore
	embedder embed.Embedder
	engine   *search.Engine

	closers []func() error
}

// Close releases all resources in reverse acquisition order.
func (d *engineDeps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			slog.Debug("cleanup failed", "error", err)
		}
	}
	d.closers = nil
}

// openStores opens the lexical index, vector index, and metadata store
// under the configured data directory.
func openStores(cfg *config.Config) (*engineDeps, error) {
	deps := &engineDeps{}

	meta, err := store.NewSQLiteMetadataStore(cfg.MetadataPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	deps.meta = meta
	deps.closers = append(deps.closers, meta.Close)

	lexical, err := store.NewSQLiteFTSIndex(cfg.LexicalIndexPath(), store.DefaultLexicalConfig())
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to open lexical index: %w", err)
	}
	deps.lexical = lexical
	deps.closers = append(deps.closers, lexical.Close)

	dims := resolveDimensions(cfg)
	vector, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(dims))
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}
	if fileExists(cfg.VectorIndexPath()) {
		if err := vector.Load(cfg.VectorIndexPath()); err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to load vector index: %w", err)
		}
	}
	deps.vector = vector
	deps.closers = append(deps.closers, vector.Close)

	return deps, nil
}

// resolveDimensions determines the embedding dimension: explicit config
// wins, then the persisted vector index, then the model default.
func resolveDimensions(cfg *config.Config) int {
	if cfg.Embeddings.Dimensions > 0 {
		return cfg.Embeddings.Dimensions
	}
	if dims, err := store.ReadVectorIndexDimensions(cfg.VectorIndexPath()); err == nil && dims > 0 {
		return dims
	}
	return embed.DefaultDimensions
}

// newQueryEmbedder builds the embedding stack: Ollama client with an LRU
// cache in front and retry plus circuit breaker behind it. Construction
// never contacts the server; availability failures surface per query so
// search can degrade to lexical-only.
func newQueryEmbedder(ctx context.Context, cfg *config.Config, dims int) (embed.Embedder, error) {
	ollama, err := embed.NewOllamaEmbedder(ctx, embed.OllamaConfig{
		Host:            cfg.Embeddings.OllamaHost,
		Model:           cfg.Embeddings.Model,
		Dimensions:      dims,
		Timeout:         cfg.Embeddings.Timeout,
		SkipHealthCheck: true,
	})
	if err != nil {
		return nil, err
	}

	retrying := embed.NewRetryingEmbedder(ollama, engerrors.DefaultRetryConfig())
	return embed.NewCachedEmbedder(retrying, cfg.Embeddings.CacheSize), nil
}

// buildEngine wires the full pipeline from configuration.
func buildEngine(ctx context.Context, cfg *config.Config) (*engineDeps, error) {
	deps, err := openStores(cfg)
	if err != nil {
		return nil, err
	}

	embedder, err := newQueryEmbedder(ctx, cfg, deps.vector.Dimensions())
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.embedder = embedder
	deps.closers = append(deps.closers, embedder.Close)

	vecSearcher, err := search.NewEmbeddingVectorSearcher(deps.vector, embedder, deps.meta)
	if err != nil {
		deps.Close()
		return nil, err
	}

	opts := []search.EngineOption{search.WithLogger(slog.Default())}
	if cfg.Reranker.Enabled && cfg.Reranker.Endpoint != "" {
		reranker, rerr := search.NewCrossEncoderReranker(search.CrossEncoderConfig{
			Endpoint:       cfg.Reranker.Endpoint,
			Model:          cfg.Reranker.Model,
			Timeout:        cfg.Reranker.Timeout,
			MaxConcurrency: cfg.Search.MaxRerankConcurrency,
		})
		if rerr != nil {
			deps.Close()
			return nil, rerr
		}
		opts = append(opts, search.WithReranker(reranker))
	}

	engine, err := search.NewEngine(
		search.NewStoreLexicalSearcher(deps.lexical),
		vecSearcher,
		deps.meta,
		cfg.Search,
		opts...,
	)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.engine = engine
	deps.closers = append(deps.closers, engine.Close)

	return deps, nil
}

// requireIndex fails early with a hint when no index exists yet.
func requireIndex(cfg *config.Config) error {
	if !fileExists(cfg.MetadataPath()) {
		return fmt.Errorf("no index found at %s. Run 'scholarsearch index <corpus.jsonl>' first", cfg.Paths.DataDir)
	}
	return nil
}

// ensureDataDir creates the data directory if missing.
func ensureDataDir(cfg *config.Config) error {
	return os.MkdirAll(cfg.Paths.DataDir, 0o755)
}
