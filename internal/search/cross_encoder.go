package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	engerrors "github.com/scholargraph/scholarsearch/internal/errors"
)

// CrossEncoderConfig configures the HTTP cross-encoder reranker.
type CrossEncoderConfig struct {
	// Endpoint is the scoring server URL.
	Endpoint string

	// Model is the cross-encoder model name.
	Model string

	// Timeout is the per-pair scoring timeout.
	Timeout time.Duration

	// MaxConcurrency bounds concurrent scoring calls. This is an explicit
	// configuration value so relevance-model load stays predictable.
	MaxConcurrency int
}

// CrossEncoderReranker scores (query, document) pairs against an HTTP
// cross-encoder server. Pairs are dispatched through a bounded worker
// pool; a circuit breaker fails the stage fast when the server is down so
// queries fall back to fused order without waiting out timeouts.
type CrossEncoderReranker struct {
	client  *http.Client
	config  CrossEncoderConfig
	pool    *ants.Pool
	breaker *engerrors.CircuitBreaker

	mu     sync.Mutex
	closed bool
}

// Verify interface implementation at compile time
var _ Reranker = (*CrossEncoderReranker)(nil)

// rerankRequest is the request body for the scoring endpoint.
type rerankRequest struct {
	Model    string `json:"model"`
	Query    string `json:"query"`
	Document string `json:"document"`
}

// rerankResponse is the response body from the scoring endpoint.
type rerankResponse struct {
	Score float64 `json:"score"`
}

// NewCrossEncoderReranker creates a reranker talking to the given endpoint.
func NewCrossEncoderReranker(cfg CrossEncoderConfig) (*CrossEncoderReranker, error) {
	if cfg.Endpoint == "" {
		return nil, engerrors.ConfigError(engerrors.ErrCodeConfigInvalid,
			"cross-encoder endpoint must not be empty", nil)
	}
	if cfg.MaxConcurrency <= 0 {
		return nil, engerrors.ConfigError(engerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("cross-encoder concurrency must be positive, got %d", cfg.MaxConcurrency), nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	pool, err := ants.NewPool(cfg.MaxConcurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create reranker pool: %w", err)
	}

	return &CrossEncoderReranker{
		client:  &http.Client{},
		config:  cfg,
		pool:    pool,
		breaker: engerrors.NewCircuitBreaker("reranker"),
	}, nil
}

// Rerank scores each document against the query under bounded concurrency.
// Any pair failure fails the whole stage; the engine then discards all
// partial scores and keeps the fused order.
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error) {
	if len(documents) == 0 {
		return []RerankResult{}, nil
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("reranker is closed")
	}
	r.mu.Unlock()

	scores := make([]float64, len(documents))
	errs := make([]error, len(documents))

	var wg sync.WaitGroup
	for i, doc := range documents {
		i, doc := i, doc
		wg.Add(1)
		submitErr := r.pool.Submit(func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			default:
			}
			err := r.breaker.Execute(func() error {
				score, scoreErr := r.scorePair(ctx, query, doc)
				if scoreErr != nil {
					return scoreErr
				}
				scores[i] = score
				return nil
			})
			errs[i] = err
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = submitErr
		}
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, engerrors.UpstreamError(engerrors.ErrCodeRerankerUnavailable,
				"rerank scoring failed", err)
		}
	}

	results := make([]RerankResult, len(documents))
	for i := range documents {
		results[i] = RerankResult{Index: i, Score: scores[i]}
	}

	// Score descending, ties broken by prior fused rank (original index).
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Index < results[j].Index
	})

	return results, nil
}

// scorePair performs one scoring call.
func (r *CrossEncoderReranker) scorePair(ctx context.Context, query, document string) (float64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	body, err := json.Marshal(rerankRequest{
		Model:    r.config.Model,
		Query:    query,
		Document: document,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := r.config.Endpoint + "/rerank"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("scoring failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Score, nil
}

// Available checks if the scoring server is reachable, honoring the
// circuit breaker state.
func (r *CrossEncoderReranker) Available(ctx context.Context) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.mu.Unlock()

	if !r.breaker.Allow() {
		return false
	}

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, r.config.Endpoint+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// Close releases the worker pool. Idempotent.
func (r *CrossEncoderReranker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.pool.Release()
	return nil
}
