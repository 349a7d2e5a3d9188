package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FormatForCLI formats an error for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var ee *EngineError
	if !errors.As(err, &ee) {
		ee = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", ee.Message))

	for k, v := range ee.Details {
		sb.WriteString(fmt.Sprintf("  %s: %s\n", k, v))
	}

	sb.WriteString(fmt.Sprintf("  Code: %s\n", ee.Code))

	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Category  string            `json:"category"`
	Severity  string            `json:"severity"`
	Details   map[string]string `json:"details,omitempty"`
	Cause     string            `json:"cause,omitempty"`
	Retryable bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
// Suitable for machine consumption and structured logging.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	var ee *EngineError
	if !errors.As(err, &ee) {
		ee = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:      ee.Code,
		Message:   ee.Message,
		Category:  string(ee.Category),
		Severity:  string(ee.Severity),
		Details:   ee.Details,
		Retryable: ee.Retryable,
	}

	if ee.Cause != nil {
		je.Cause = ee.Cause.Error()
	}

	return json.Marshal(je)
}

// FormatForLog formats an error as key-value pairs for slog attributes.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	var ee *EngineError
	if !errors.As(err, &ee) {
		return map[string]any{
			"error": err.Error(),
		}
	}

	result := map[string]any{
		"error_code": ee.Code,
		"message":    ee.Message,
		"category":   string(ee.Category),
		"severity":   string(ee.Severity),
		"retryable":  ee.Retryable,
	}

	if ee.Cause != nil {
		result["cause"] = ee.Cause.Error()
	}

	for k, v := range ee.Details {
		result["detail_"+k] = v
	}

	return result
}
