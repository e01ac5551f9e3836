package domain

import (
	"errors"
	"fmt"
	"time"
)

// Parse error codes. These are the only failure codes the engine
// surfaces to callers.
const (
	ErrAdapterNotFound  = "E-PARSE-001" // no compatible adapter / required page params missing
	ErrParseFailed      = "E-PARSE-002" // page structure changed / all adapters exhausted
	ErrInvalidShareLink = "E-PARSE-003"
	ErrFetchFailed      = "E-PARSE-004"
	ErrNoMessages       = "E-PARSE-005"
	ErrInvalidInput     = "E-PARSE-006"
	ErrRateLimited      = "E-PARSE-007"
)

// AppError is the structured error surfaced at the engine boundary.
// Inside adapters plain wrapped errors are fine; anything that reaches
// the caller is either an AppError or gets wrapped into one by the
// registry.
type AppError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	cause     error
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.cause }

// NewAppError creates a structured error with the current timestamp.
func NewAppError(code, message string) *AppError {
	return &AppError{Code: code, Message: message, Timestamp: time.Now()}
}

// WrapAppError creates a structured error preserving the original cause
// as both Detail and the unwrap chain.
func WrapAppError(code, message string, cause error) *AppError {
	e := NewAppError(code, message)
	if cause != nil {
		e.Detail = cause.Error()
		e.cause = cause
	}
	return e
}

// AsAppError extracts an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
