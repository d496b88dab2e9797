package models

import (
	"errors"
	"fmt"
)

// ErrorCode identifies an engine error class. Codes are stable across the
// HTTP surface and event payloads.
type ErrorCode string

const (
	// CodeProviderFailure is a generic provider failure.
	CodeProviderFailure ErrorCode = "E300"
	// CodeTimeout is a timeout or cancellation at a provider.
	CodeTimeout ErrorCode = "E301"
	// CodeEmptyOutput indicates a provider returned empty or invalid output.
	CodeEmptyOutput ErrorCode = "E302"
	// CodeInvalidInput is an input validation failure (enum or range).
	CodeInvalidInput ErrorCode = "E303"
	// CodeEncoderFailure is an encoder runtime failure.
	CodeEncoderFailure ErrorCode = "E304"
	// CodeNoProvider means no provider is available for a stage under policy.
	CodeNoProvider ErrorCode = "E305"
	// CodeAuthFailure is an authentication or credential failure.
	CodeAuthFailure ErrorCode = "E306"
	// CodeOfflineViolation is an offline-mode policy violation.
	CodeOfflineViolation ErrorCode = "E307"
	// CodeRateLimit indicates the provider rate limited the request.
	CodeRateLimit ErrorCode = "E308"
	// CodeInvalidOutput indicates structurally invalid output.
	CodeInvalidOutput ErrorCode = "E309"
	// CodeContentPolicy is a content policy violation.
	CodeContentPolicy ErrorCode = "E310"
	// CodeInsufficientResources indicates insufficient system resources.
	CodeInsufficientResources ErrorCode = "E311"
)

// Retryable returns true if errors of this code are worth retrying
// against the same provider.
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeProviderFailure, CodeTimeout, CodeEmptyOutput, CodeInvalidOutput, CodeRateLimit:
		return true
	default:
		return false
	}
}

// EngineError is a coded error surfaced to callers and events.
type EngineError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a coded error.
func NewEngineError(code ErrorCode, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

// WrapEngineError creates a coded error wrapping an underlying cause.
func WrapEngineError(code ErrorCode, message string, err error) *EngineError {
	return &EngineError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the error code from an error chain.
// Returns CodeProviderFailure when no coded error is present.
func CodeOf(err error) ErrorCode {
	var engErr *EngineError
	if errors.As(err, &engErr) {
		return engErr.Code
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Code
	}
	return CodeProviderFailure
}

// ProviderError wraps a failure from a specific provider with its
// retryability classification. Encoder failures attach the stderr tail and
// log path so the terminal failure payload can carry them.
type ProviderError struct {
	Provider   string
	Code       ErrorCode
	Retryable  bool
	StderrTail string
	LogPath    string
	Err        error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Code, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError classifies a provider failure. Retryability follows the
// code's default classification.
func NewProviderError(provider string, code ErrorCode, err error) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Retryable: code.Retryable(),
		Err:       err,
	}
}
