package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/scholargraph/scholarsearch/internal/output"
	"github.com/scholargraph/scholarsearch/internal/store"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index and service status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd)
		},
	}
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out.Statusf("📂", "Data directory: %s", cfg.Paths.DataDir)

	if !fileExists(cfg.MetadataPath()) {
		out.Warning("No index found. Run 'scholarsearch index <corpus.jsonl>' first.")
		return nil
	}

	deps, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	stats := deps.lexical.Stats()
	out.Statusf("", "Lexical index: %d documents", stats.DocumentCount)
	out.Statusf("", "Vector index: %d vectors, %d dimensions", deps.vector.Count(), deps.vector.Dimensions())

	if model, err := deps.meta.GetState(ctx, store.StateKeyIndexModel); err == nil && model != "" {
		out.Statusf("", "Embedding model: %s", model)
		if model != cfg.Embeddings.Model {
			out.Warningf("Configured model %q differs from index model %q", cfg.Embeddings.Model, model)
		}
	}

	embedder, err := newQueryEmbedder(ctx, cfg, deps.vector.Dimensions())
	if err == nil {
		defer func() { _ = embedder.Close() }()
		if embedder.Available(ctx) {
			out.Successf("Embedding service reachable at %s", cfg.Embeddings.OllamaHost)
		} else {
			out.Warningf("Embedding service unreachable at %s (queries degrade to lexical-only)", cfg.Embeddings.OllamaHost)
		}
	}

	if cfg.Reranker.Enabled {
		out.Statusf("", "Reranker: enabled (%s at %s)", cfg.Reranker.Model, cfg.Reranker.Endpoint)
	} else {
		out.Status("", "Reranker: disabled")
	}

	return nil
}
