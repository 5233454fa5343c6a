// Package apperrors provides sentinel and custom error types shared by services and handlers.
package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound represents a "not found" error.
// Use when a requested resource doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrValidation represents a validation error.
// Use when client input fails validation.
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrUpstream is the sentinel for failures reported by a third-party vendor
// (speech-to-text, embeddings, chat, image generation, object store).
var ErrUpstream = &UpstreamError{}

// UpstreamError wraps a vendor failure with the vendor name and the operation that failed.
type UpstreamError struct {
	Vendor string
	Op     string
	Err    error
}

// NewUpstreamError creates an UpstreamError.
func NewUpstreamError(vendor, op string, err error) *UpstreamError {
	return &UpstreamError{Vendor: vendor, Op: op, Err: err}
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	switch {
	case e.Vendor == "" && e.Err == nil:
		return "upstream error"
	case e.Err == nil:
		return fmt.Sprintf("%s %s failed", e.Vendor, e.Op)
	default:
		return fmt.Sprintf("%s %s: %v", e.Vendor, e.Op, e.Err)
	}
}

// Unwrap returns the vendor error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is implements the error interface for error comparison.
func (e *UpstreamError) Is(target error) bool {
	_, ok := target.(*UpstreamError)

	return ok
}

// ErrTimeout is the sentinel for bounded waits that ran out (e.g. transcription polling).
var ErrTimeout = &TimeoutError{}

// TimeoutError reports an operation that exceeded its attempt or wall-clock budget.
type TimeoutError struct {
	Op      string
	Message string
}

// NewTimeoutError creates a TimeoutError.
func NewTimeoutError(op, message string) *TimeoutError {
	return &TimeoutError{Op: op, Message: message}
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Op != "" {
		return e.Op + " timed out"
	}

	return "timeout"
}

// Is implements the error interface for error comparison.
func (e *TimeoutError) Is(target error) bool {
	_, ok := target.(*TimeoutError)

	return ok
}

// ErrMalformedOutput is the sentinel for model output that does not follow the requested format.
var ErrMalformedOutput = &MalformedOutputError{}

// MalformedOutputError carries the offending output for logging.
type MalformedOutputError struct {
	Message string
	Output  string
}

// NewMalformedOutputError creates a MalformedOutputError.
func NewMalformedOutputError(message, output string) *MalformedOutputError {
	return &MalformedOutputError{Message: message, Output: output}
}

// Error implements the error interface.
func (e *MalformedOutputError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "malformed model output"
}

// Is implements the error interface for error comparison.
func (e *MalformedOutputError) Is(target error) bool {
	_, ok := target.(*MalformedOutputError)

	return ok
}

// ErrStructuredOutputUnsupported is returned when a chat model rejects a JSON schema response format.
// Callers fall back to a plain completion.
var ErrStructuredOutputUnsupported = errors.New("model does not support structured output")
