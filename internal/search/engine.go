package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scholargraph/scholarsearch/internal/config"
	engerrors "github.com/scholargraph/scholarsearch/internal/errors"
	"github.com/scholargraph/scholarsearch/internal/store"
)

// Engine orchestrates the hybrid retrieval pipeline for one corpus:
// concurrent lexical and vector sub-searches, RRF fusion, optional
// cross-encoder reranking over a bounded candidate window, and citation
// assembly.
//
// Each sub-search is bounded by its own timeout and degrades
// independently. The engine aborts only when both retrievers fail or on a
// configuration or input error; it never returns silently wrong results.
type Engine struct {
	lexical   LexicalSearcher
	vector    VectorSearcher
	fusion    *RRFFusion
	reranker  Reranker
	assembler *CitationAssembler
	meta      store.MetadataStore
	cfg       config.SearchConfig
	logger    *slog.Logger

	hasReranker bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithReranker wires a cross-encoder reranker into the pipeline. Wiring
// the no-op implementation keeps the rerank stage off: pass-through
// results must not carry rerank scores.
func WithReranker(r Reranker) EngineOption {
	return func(e *Engine) {
		if r == nil {
			return
		}
		e.reranker = r
		_, noop := r.(*NoOpReranker)
		e.hasReranker = !noop
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a search engine. The fusion constant comes from cfg
// and is validated here; without a WithReranker option the rerank stage
// is a passthrough.
func NewEngine(lexical LexicalSearcher, vector VectorSearcher, meta store.MetadataStore, cfg config.SearchConfig, opts ...EngineOption) (*Engine, error) {
	fusion, err := NewRRFFusion(cfg.RRFConstant)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		lexical:   lexical,
		vector:    vector,
		fusion:    fusion,
		reranker:  &NoOpReranker{},
		assembler: NewCitationAssembler(meta),
		meta:      meta,
		cfg:       cfg,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Search runs the full pipeline for one query.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if err := e.validate(query, &opts); err != nil {
		return nil, err
	}

	topK := opts.TopK
	if topK == 0 {
		topK = e.cfg.TopK
	}
	lexLimit := opts.LexicalLimit
	if lexLimit == 0 {
		lexLimit = e.cfg.LexicalLimit
	}
	vecLimit := opts.VectorLimit
	if vecLimit == 0 {
		vecLimit = e.cfg.VectorLimit
	}

	lexResults, vecResults, diag, err := e.retrieve(ctx, query, opts.ChunkTypes, lexLimit, vecLimit)
	if err != nil {
		return nil, err
	}

	fused := e.fusion.Fuse(lexResults, vecResults)
	diag.CandidateCount = len(fused)

	window := fused
	if len(window) > e.cfg.RerankWindow {
		window = window[:e.cfg.RerankWindow]
	}

	rerankScores := map[string]float64{}
	if e.hasReranker && !opts.DisableReranker && len(window) > 0 {
		reordered, scores, rerankErr := e.rerank(ctx, query, window)
		if rerankErr != nil {
			// Partial scores are discarded; the window keeps its fused
			// order so the ranking is never a mix of the two stages.
			diag.RerankDegraded = true
			e.logger.Warn("reranking degraded, keeping fused order",
				"query", query,
				"error", rerankErr)
		} else {
			window = reordered
			rerankScores = scores
			diag.RerankApplied = true
		}
	}

	ranked := window
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	citations, err := e.assembler.Assemble(ctx, ranked)
	if err != nil {
		return nil, err
	}
	for _, c := range citations {
		if score, ok := rerankScores[c.FragmentID]; ok {
			c.Scores.Rerank = score
			c.Scores.Reranked = true
		}
	}

	diag.Summary = e.assembler.Summarize(citations)
	diag.Elapsed = time.Since(start)

	e.logger.Info("search completed",
		"query", query,
		"lexical_count", diag.LexicalCount,
		"vector_count", diag.VectorCount,
		"candidates", diag.CandidateCount,
		"returned", len(citations),
		"rerank_applied", diag.RerankApplied,
		"degraded", diag.Degraded(),
		"elapsed_ms", diag.Elapsed.Milliseconds())

	return &SearchResult{
		Query:       query,
		Citations:   citations,
		Diagnostics: diag,
	}, nil
}

// validate rejects malformed input before any retrieval work.
func (e *Engine) validate(query string, opts *SearchOptions) error {
	if query == "" {
		return engerrors.InputError(engerrors.ErrCodeQueryEmpty,
			"query must not be empty")
	}
	if opts.TopK < 0 {
		return engerrors.InputError(engerrors.ErrCodeLimitInvalid,
			fmt.Sprintf("top_k must not be negative, got %d", opts.TopK))
	}
	if opts.LexicalLimit < 0 || opts.VectorLimit < 0 {
		return engerrors.InputError(engerrors.ErrCodeLimitInvalid,
			"candidate limits must not be negative")
	}
	for _, ct := range opts.ChunkTypes {
		if !store.ValidChunkType(ct) {
			return engerrors.InputError(engerrors.ErrCodeChunkTypeInvalid,
				fmt.Sprintf("unsupported fragment type %q", ct))
		}
	}
	return nil
}

// retrieve runs both sub-searches concurrently, each under its own
// timeout. A failed or timed-out sub-search yields an empty list and a
// degradation flag; only both failing aborts the query.
func (e *Engine) retrieve(ctx context.Context, query string, chunkTypes []store.ChunkType, lexLimit, vecLimit int) ([]*store.LexicalResult, []*store.VectorResult, Diagnostics, error) {
	var (
		diag       Diagnostics
		lexResults []*store.LexicalResult
		vecResults []*store.VectorResult
		lexErr     error
		vecErr     error
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		subCtx, cancel := context.WithTimeout(gctx, e.cfg.SubSearchTimeout)
		defer cancel()
		lexResults, lexErr = e.lexical.Search(subCtx, query, chunkTypes, lexLimit)
		return nil
	})

	g.Go(func() error {
		subCtx, cancel := context.WithTimeout(gctx, e.cfg.SubSearchTimeout)
		defer cancel()
		vecResults, vecErr = e.vector.Search(subCtx, query, chunkTypes, vecLimit)
		return nil
	})

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, diag, err
	}

	// Configuration errors are fatal, not degradable. Nothing reasonable
	// can be returned when the embedder and index disagree on dimensions.
	if engerrors.IsConfig(lexErr) {
		return nil, nil, diag, lexErr
	}
	if engerrors.IsConfig(vecErr) {
		return nil, nil, diag, vecErr
	}

	if lexErr != nil {
		diag.LexicalDegraded = true
		lexResults = nil
		e.logger.Warn("lexical search degraded", "query", query, "error", lexErr)
	}
	if vecErr != nil {
		diag.VectorDegraded = true
		vecResults = nil
		e.logger.Warn("vector search degraded", "query", query, "error", vecErr)
	}

	if diag.LexicalDegraded && diag.VectorDegraded {
		return nil, nil, diag, engerrors.UpstreamError(engerrors.ErrCodeSearchUnavailable,
			"search unavailable: both retrieval strategies failed", lexErr)
	}

	diag.LexicalCount = len(lexResults)
	diag.VectorCount = len(vecResults)
	return lexResults, vecResults, diag, nil
}

// rerank rescores the candidate window and returns it reordered, along
// with the per-fragment scores. Any failure returns an error and the
// caller keeps the fused order untouched.
func (e *Engine) rerank(ctx context.Context, query string, window []*FusedResult) ([]*FusedResult, map[string]float64, error) {
	rctx, cancel := context.WithTimeout(ctx, e.cfg.RerankTimeout)
	defer cancel()

	if !e.reranker.Available(rctx) {
		return nil, nil, engerrors.UpstreamError(engerrors.ErrCodeRerankerUnavailable,
			"reranker unavailable", nil)
	}

	ids := make([]string, len(window))
	for i, r := range window {
		ids[i] = r.FragmentID
	}
	fragments, err := e.meta.GetFragments(rctx, ids)
	if err != nil {
		return nil, nil, engerrors.UpstreamError(engerrors.ErrCodeRerankerUnavailable,
			"candidate content lookup failed", err)
	}
	contentByID := make(map[string]string, len(fragments))
	for _, f := range fragments {
		contentByID[f.ID] = f.Content
	}

	documents := make([]string, len(window))
	for i, r := range window {
		documents[i] = contentByID[r.FragmentID]
	}

	results, err := e.reranker.Rerank(rctx, query, documents)
	if err != nil {
		return nil, nil, err
	}
	if len(results) != len(window) {
		return nil, nil, engerrors.UpstreamError(engerrors.ErrCodeRerankerUnavailable,
			fmt.Sprintf("reranker returned %d scores for %d candidates", len(results), len(window)), nil)
	}

	reordered := make([]*FusedResult, len(results))
	scores := make(map[string]float64, len(results))
	for pos, r := range results {
		candidate := window[r.Index]
		reordered[pos] = candidate
		scores[candidate.FragmentID] = r.Score
	}

	return reordered, scores, nil
}

// Close releases the reranker.
func (e *Engine) Close() error {
	return e.reranker.Close()
}
