package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engerrors "github.com/scholargraph/scholarsearch/internal/errors"
)

// stubEmbedder is a deterministic in-memory embedder for wrapper tests.
type stubEmbedder struct {
	dims      int
	calls     int
	failUntil int // fail the first N calls
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.calls <= s.failUntil {
		return nil, engerrors.UpstreamError(engerrors.ErrCodeEmbeddingUnavailable, "stub failure", nil)
	}
	vec := make([]float32, s.dims)
	for i := range vec {
		vec[i] = float32(len(text) + i)
	}
	return vec, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		result[i] = vec
	}
	return result, nil
}

func (s *stubEmbedder) Dimensions() int                    { return s.dims }
func (s *stubEmbedder) ModelName() string                  { return "stub-model" }
func (s *stubEmbedder) Available(ctx context.Context) bool { return true }
func (s *stubEmbedder) Close() error                       { return nil }

func TestCachedEmbedderHitsCache(t *testing.T) {
	stub := &stubEmbedder{dims: 4}
	cached := NewCachedEmbedder(stub, 10)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "protein folding")
	require.NoError(t, err)

	second, err := cached.Embed(ctx, "protein folding")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, stub.calls, "second call should be served from cache")
}

func TestCachedEmbedderBatchPartialCache(t *testing.T) {
	stub := &stubEmbedder{dims: 4}
	cached := NewCachedEmbedder(stub, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, 1, stub.calls)

	results, err := cached.EmbedBatch(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, stub.calls, "only the uncached text should hit the stub")
}

func TestRetryingEmbedderRecovers(t *testing.T) {
	stub := &stubEmbedder{dims: 4, failUntil: 2}
	retrying := NewRetryingEmbedder(stub, engerrors.RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	})

	vec, err := retrying.Embed(context.Background(), "query")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, 3, stub.calls)
}

func newOllamaTestServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = fmt.Fprint(w, `{"models":[{"name":"nomic-embed-text"}]}`)
		case "/api/embed":
			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			count := 1
			if inputs, ok := req.Input.([]any); ok {
				count = len(inputs)
			}

			embeddings := make([][]float32, count)
			for i := range embeddings {
				embeddings[i] = make([]float32, dims)
				embeddings[i][0] = 1
			}
			_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: embeddings})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestOllamaEmbedderEmbed(t *testing.T) {
	srv := newOllamaTestServer(t, 8)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// Dimensions auto-detected from the test embedding.
	assert.Equal(t, 8, e.Dimensions())
	assert.True(t, e.Available(context.Background()))

	vec, err := e.Embed(context.Background(), "protein folding")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
}

func TestOllamaEmbedderEmptyTextZeroVector(t *testing.T) {
	srv := newOllamaTestServer(t, 8)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:       srv.URL,
		Dimensions: 8,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), vec)
}

func TestOllamaEmbedderDimensionMismatch(t *testing.T) {
	srv := newOllamaTestServer(t, 8)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:       srv.URL,
		Dimensions: 16, // server returns 8
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, err = e.Embed(context.Background(), "query")
	require.Error(t, err)
	assert.Equal(t, engerrors.ErrCodeDimensionMismatch, engerrors.GetCode(err))
	assert.True(t, engerrors.IsFatal(err))
}

func TestOllamaEmbedderUnreachable(t *testing.T) {
	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:    "http://127.0.0.1:1",
		Timeout: 500 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Equal(t, engerrors.ErrCodeEmbeddingUnavailable, engerrors.GetCode(err))
}
