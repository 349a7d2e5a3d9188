package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	engerrors "github.com/scholargraph/scholarsearch/internal/errors"
	"github.com/scholargraph/scholarsearch/internal/output"
	"github.com/scholargraph/scholarsearch/internal/search"
	"github.com/scholargraph/scholarsearch/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit    int
	types    []string // fragment type filters
	format   string   // "text", "json"
	noRerank bool
	explain  bool // show per-stage scores and diagnostics
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed corpus",
		Long: `Search the indexed corpus with hybrid retrieval.

Lexical (BM25) and vector search run concurrently and their rankings are
combined with Reciprocal Rank Fusion. When a cross-encoder reranker is
configured, the top candidates are rescored before citations are returned.

Examples:
  scholarsearch search "graph neural networks for molecules"
  scholarsearch search "attention" --type work-abstract --limit 5
  scholarsearch search "reinforcement learning" --format json
  scholarsearch search "causal inference" --explain`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of citations (default from config)")
	cmd.Flags().StringSliceVarP(&opts.types, "type", "t", nil,
		fmt.Sprintf("Filter by fragment type (repeatable): publications, people, %s", strings.Join(chunkTypeNames(), ", ")))
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.noRerank, "no-rerank", false, "Skip cross-encoder reranking for this query")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show per-stage scores and degradation diagnostics")

	return cmd
}

// expandTypeFilters maps CLI filter names to fragment types. The
// aliases "publications" and "people" expand to their type groups;
// anything else passes through for engine validation.
func expandTypeFilters(names []string) []store.ChunkType {
	var types []store.ChunkType
	for _, name := range names {
		switch name {
		case "publications":
			types = append(types, store.PublicationChunkTypes()...)
		case "people":
			types = append(types, store.ProfileChunkTypes()...)
		default:
			types = append(types, store.ChunkType(name))
		}
	}
	return types
}

func chunkTypeNames() []string {
	all := store.AllChunkTypes()
	names := make([]string, len(all))
	for i, ct := range all {
		names[i] = string(ct)
	}
	return names
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireIndex(cfg); err != nil {
		return err
	}

	deps, err := buildEngine(ctx, cfg)
	if err != nil {
		out.Error(engerrors.FormatForCLI(err))
		return err
	}
	defer deps.Close()

	chunkTypes := expandTypeFilters(opts.types)

	result, err := deps.engine.Search(ctx, query, search.SearchOptions{
		TopK:            opts.limit,
		ChunkTypes:      chunkTypes,
		DisableReranker: opts.noRerank,
	})
	if err != nil {
		out.Error(engerrors.FormatForCLI(err))
		return err
	}

	slog.Info("search_complete",
		slog.String("query", query),
		slog.Int("results", len(result.Citations)))

	switch opts.format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	default:
		formatTextResult(out, result, opts.explain)
		return nil
	}
}

// formatTextResult renders citations for the terminal.
func formatTextResult(out *output.Writer, result *search.SearchResult, explain bool) {
	if len(result.Citations) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", result.Query))
		return
	}

	if explain {
		formatExplainHeader(out, result)
	}

	out.Statusf("🔍", "Found %d results for %q:", len(result.Citations), result.Query)
	if result.Diagnostics.Summary != "" {
		out.Status("", "Sources: "+result.Diagnostics.Summary)
	}
	if result.Diagnostics.Degraded() {
		out.Warning(degradationNotice(result.Diagnostics))
	}
	out.Newline()

	for _, c := range result.Citations {
		score := c.Scores.Fused
		label := "fused"
		if c.Scores.Reranked {
			score = c.Scores.Rerank
			label = "rerank"
		}
		out.Statusf("", "%d. [%s] %s (%s: %.4f)", c.Rank, c.Type, c.FragmentID, label, score)

		if c.Formatted != "" {
			out.Status("", "   "+c.Formatted)
		}
		if c.Preview != "" {
			out.Status("", "   "+firstLine(c.Preview))
		}
		if explain {
			out.Status("", fmt.Sprintf("      lexical: rank %d (%.3f) | vector: rank %d (%.3f) | fused: %.5f",
				c.Scores.LexicalRank, c.Scores.Lexical, c.Scores.VectorRank, c.Scores.Vector, c.Scores.Fused))
		}
		out.Newline()
	}
}

// formatExplainHeader shows the per-stage pipeline breakdown.
func formatExplainHeader(out *output.Writer, result *search.SearchResult) {
	d := result.Diagnostics
	out.Rule()
	out.Status("", "SEARCH DIAGNOSTICS")
	out.Rule()
	out.Status("", fmt.Sprintf("Lexical results: %d (degraded: %v)", d.LexicalCount, d.LexicalDegraded))
	out.Status("", fmt.Sprintf("Vector results: %d (degraded: %v)", d.VectorCount, d.VectorDegraded))
	out.Status("", fmt.Sprintf("Distinct candidates: %d", d.CandidateCount))
	out.Status("", fmt.Sprintf("Rerank applied: %v (degraded: %v)", d.RerankApplied, d.RerankDegraded))
	out.Status("", fmt.Sprintf("Elapsed: %s", d.Elapsed))
	out.Rule()
	out.Newline()
}

func degradationNotice(d search.Diagnostics) string {
	var parts []string
	if d.LexicalDegraded {
		parts = append(parts, "lexical search unavailable")
	}
	if d.VectorDegraded {
		parts = append(parts, "vector search unavailable")
	}
	if d.RerankDegraded {
		parts = append(parts, "reranker unavailable, using fused order")
	}
	return "Degraded: " + strings.Join(parts, "; ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
