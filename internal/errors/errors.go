package errors

import (
	"errors"
	"fmt"
)

// EngineError is the structured error type for the retrieval engine.
// It carries the taxonomy used to decide whether a query degrades a stage,
// aborts entirely, or rejects the input.
type EngineError struct {
	// Code is the unique error code (e.g. "ERR_201_QUERY_EMPTY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Input, Upstream, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *EngineError) Is(target error) bool {
	if t, ok := target.(*EngineError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *EngineError) WithDetail(key, value string) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new EngineError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an EngineError from an existing error.
// Returns nil when err is nil.
func Wrap(code string, err error) *EngineError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// InputError creates an input validation error, rejected immediately and
// never retried.
func InputError(code, message string) *EngineError {
	return New(code, message, nil)
}

// ConfigError creates a configuration error (fatal for the query).
func ConfigError(code, message string, cause error) *EngineError {
	return New(code, message, cause)
}

// UpstreamError creates an upstream availability error. The orchestrator
// recovers locally by degrading the stage; only escalated when no retrieval
// strategy produced results at all.
func UpstreamError(code, message string, cause error) *EngineError {
	return New(code, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *EngineError {
	return New(ErrCodeInternal, message, cause)
}

// IsInput reports whether err is an input validation error.
func IsInput(err error) bool {
	return categoryOf(err) == CategoryInput
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	return categoryOf(err) == CategoryConfig
}

// IsUpstream reports whether err is an upstream availability error.
func IsUpstream(err error) bool {
	return categoryOf(err) == CategoryUpstream
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the query instead of degrading a stage.
func IsFatal(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code. Returns empty string for plain errors.
func GetCode(err error) string {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

func categoryOf(err error) Category {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ""
}
