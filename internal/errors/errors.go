// Package errors provides structured error handling for CodeSmriti.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: configuration errors
//   - 2XX: IO and parse errors
//   - 3XX: transient upstream errors (LLM, embedder, storage)
//   - 4XX: validation and invariant violations
//   - 5XX: internal errors
//   - 6XX: search errors
//   - 7XX: auth and cancellation
package errors

import (
	stderrors "errors"
	"fmt"
)

// As is the standard errors.As, re-exported so callers inside this
// package's import graph need only one errors package.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Error is the structured error type used across the ingestion and
// retrieval engine.
type Error struct {
	// Code is the unique error code (e.g. "ERR_402_DIMENSION_MISMATCH").
	Code string

	// Message is the human-readable message.
	Message string

	// Kind is the error kind from the error-handling design.
	Kind Kind

	// Details carries additional context as key-value pairs.
	Details map[string]string

	// Cause is the wrapped underlying error.
	Cause error

	// Retryable reports whether the operation may be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so errors.Is works with sentinel values.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail attaches a key-value detail and returns the error.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates an Error with kind and retryability derived from the code.
func New(code, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Kind:      kindFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error, keeping its message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// TransientUpstream marks an upstream 5xx/timeout failure; retryable.
func TransientUpstream(message string, cause error) *Error {
	return New(ErrCodeUpstreamTimeout, message, cause)
}

// InvariantViolation marks a data-model invariant breach; never retried,
// nothing is written.
func InvariantViolation(message string, cause error) *Error {
	return New(ErrCodeInvariantViolation, message, cause)
}

// ParseFailure marks an incomplete or unavailable syntax tree.
func ParseFailure(message string, cause error) *Error {
	return New(ErrCodeParseFailure, message, cause)
}

// IsRetryable reports whether err carries a retryable code.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// KindOf extracts the kind, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindInternal
}

// CodeOf extracts the code, empty for foreign errors.
func CodeOf(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
