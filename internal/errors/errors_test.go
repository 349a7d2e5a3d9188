package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesTaxonomy(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{"config invalid", ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{"rrf constant", ErrCodeRRFConstant, CategoryConfig, SeverityFatal, false},
		{"dimension mismatch", ErrCodeDimensionMismatch, CategoryConfig, SeverityFatal, false},
		{"empty query", ErrCodeQueryEmpty, CategoryInput, SeverityError, false},
		{"lexical down", ErrCodeLexicalUnavailable, CategoryUpstream, SeverityWarning, true},
		{"embedding down", ErrCodeEmbeddingUnavailable, CategoryUpstream, SeverityWarning, true},
		{"search unavailable", ErrCodeSearchUnavailable, CategoryUpstream, SeverityFatal, false},
		{"internal", ErrCodeInternal, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestErrorChaining(t *testing.T) {
	cause := errors.New("connection refused")
	err := New(ErrCodeVectorUnavailable, "vector search failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), ErrCodeVectorUnavailable)

	wrapped := fmt.Errorf("query failed: %w", err)
	var ee *EngineError
	require.True(t, errors.As(wrapped, &ee))
	assert.Equal(t, ErrCodeVectorUnavailable, ee.Code)
	assert.Equal(t, ErrCodeVectorUnavailable, GetCode(wrapped))
}

func TestIsMatchesByCode(t *testing.T) {
	a := New(ErrCodeQueryEmpty, "query must not be empty", nil)
	b := New(ErrCodeQueryEmpty, "different message", nil)
	c := New(ErrCodeLimitInvalid, "limit must be positive", nil)

	assert.ErrorIs(t, a, b)
	assert.NotErrorIs(t, a, c)
}

func TestWithDetail(t *testing.T) {
	err := New(ErrCodeDimensionMismatch, "embedding dimension mismatch", nil).
		WithDetail("expected", "768").
		WithDetail("got", "384")

	assert.Equal(t, "768", err.Details["expected"])
	assert.Equal(t, "384", err.Details["got"])
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsInput(InputError(ErrCodeQueryEmpty, "empty")))
	assert.True(t, IsConfig(ConfigError(ErrCodeRRFConstant, "bad constant", nil)))
	assert.True(t, IsUpstream(UpstreamError(ErrCodeRerankerUnavailable, "down", nil)))
	assert.True(t, IsRetryable(UpstreamError(ErrCodeRerankerUnavailable, "down", nil)))
	assert.True(t, IsFatal(ConfigError(ErrCodeDimensionMismatch, "dims", nil)))

	assert.False(t, IsInput(errors.New("plain")))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsFatal(InputError(ErrCodeQueryEmpty, "empty")))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", WithMaxFailures(3), WithResetTimeout(time.Hour))
	failing := func() error { return errors.New("fail") }

	for i := 0; i < 3; i++ {
		require.Error(t, cb.Execute(failing))
	}

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(failing), ErrCircuitOpen)
}

func TestCircuitBreakerRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test", WithMaxFailures(1), WithResetTimeout(10*time.Millisecond))
	require.Error(t, cb.Execute(func() error { return errors.New("fail") }))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker("test", WithMaxFailures(1))
	_ = cb.Execute(func() error { return errors.New("fail") })
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return New(ErrCodeEmbeddingUnavailable, "not yet", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	cfg := DefaultRetryConfig()

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return InputError(ErrCodeQueryEmpty, "empty query")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsInput(err))
}

func TestRetryExhausted(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2.0}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return New(ErrCodeRerankerUnavailable, "still down", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "failed after 2 retries")
}

func TestRetryWithResultRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RetryWithResult(ctx, DefaultRetryConfig(), func() (int, error) {
		return 42, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatForLog(t *testing.T) {
	err := New(ErrCodeLexicalUnavailable, "index locked", errors.New("busy")).
		WithDetail("path", "/tmp/idx")

	attrs := FormatForLog(err)
	assert.Equal(t, ErrCodeLexicalUnavailable, attrs["error_code"])
	assert.Equal(t, "busy", attrs["cause"])
	assert.Equal(t, "/tmp/idx", attrs["detail_path"])
	assert.Equal(t, true, attrs["retryable"])

	assert.Equal(t, map[string]any{"error": "plain"}, FormatForLog(errors.New("plain")))
	assert.Nil(t, FormatForLog(nil))
}

func TestFormatForCLI(t *testing.T) {
	out := FormatForCLI(New(ErrCodeQueryEmpty, "query must not be empty", nil))
	assert.Contains(t, out, "Error: query must not be empty")
	assert.Contains(t, out, ErrCodeQueryEmpty)

	assert.Empty(t, FormatForCLI(nil))
}
