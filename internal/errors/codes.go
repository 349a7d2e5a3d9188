// Package errors provides structured error handling for ScholarSearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (fatal for the query, never auto-corrected)
//   - 2XX: Input validation errors (rejected immediately, not retried)
//   - 3XX: Upstream availability errors (degrade the stage, retryable)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates a misconfiguration: dimension mismatch,
	// invalid fusion constant, malformed config file.
	CategoryConfig Category = "CONFIG"
	// CategoryInput indicates invalid caller input: empty query,
	// unsupported fragment-type filter.
	CategoryInput Category = "INPUT"
	// CategoryUpstream indicates an unreachable or timed-out collaborator:
	// corpus index, embedding service, reranker.
	CategoryUpstream Category = "UPSTREAM"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates the query cannot produce results and must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the caller can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Configuration errors (100-199)
	ErrCodeConfigInvalid     = "ERR_101_CONFIG_INVALID"
	ErrCodeRRFConstant       = "ERR_102_RRF_CONSTANT_INVALID"
	ErrCodeDimensionMismatch = "ERR_103_DIMENSION_MISMATCH"

	// Input errors (200-299)
	ErrCodeQueryEmpty       = "ERR_201_QUERY_EMPTY"
	ErrCodeChunkTypeInvalid = "ERR_202_CHUNK_TYPE_INVALID"
	ErrCodeLimitInvalid     = "ERR_203_LIMIT_INVALID"
	ErrCodeFragmentInvalid  = "ERR_204_FRAGMENT_INVALID"

	// Upstream errors (300-399)
	ErrCodeLexicalUnavailable   = "ERR_301_LEXICAL_UNAVAILABLE"
	ErrCodeVectorUnavailable    = "ERR_302_VECTOR_UNAVAILABLE"
	ErrCodeEmbeddingUnavailable = "ERR_303_EMBEDDING_UNAVAILABLE"
	ErrCodeRerankerUnavailable  = "ERR_304_RERANKER_UNAVAILABLE"
	ErrCodeSearchUnavailable    = "ERR_305_SEARCH_UNAVAILABLE"

	// Internal errors (500-599)
	ErrCodeInternal    = "ERR_501_INTERNAL"
	ErrCodeStoreFailed = "ERR_502_STORE_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "201" from "ERR_201_QUERY_EMPTY".
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryInput
	case '3':
		return CategoryUpstream
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeDimensionMismatch, ErrCodeRRFConstant, ErrCodeSearchUnavailable:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Input and configuration errors are never retryable.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeLexicalUnavailable, ErrCodeVectorUnavailable,
		ErrCodeEmbeddingUnavailable, ErrCodeRerankerUnavailable:
		return true
	default:
		return false
	}
}
