// Package errors provides standardized error types and helpers for the csvgate codebase.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrInvalidQuery indicates a request parameter failed validation
	ErrInvalidQuery = errors.New("invalid query")
	// ErrBadSchema indicates the source's schema is unusable
	ErrBadSchema = errors.New("unusable schema")
	// ErrExecution indicates a scan aborted on an unrecoverable failure
	ErrExecution = errors.New("execution failed")
	// ErrRefresh indicates a dataset reload failed
	ErrRefresh = errors.New("refresh failed")
	// ErrRefreshInProgress indicates another refresh already holds the coordinator
	ErrRefreshInProgress = errors.New("refresh already in progress")
	// ErrClosed indicates the gateway was closed before the call
	ErrClosed = errors.New("dataset gateway is closed")
)

// ValidationError represents a request validation error with context.
// The caller can fix the request and retry; the live dataset is untouched.
type ValidationError struct {
	Param   string // Request parameter that failed validation (e.g., "sort_by")
	Value   string // Value that failed validation
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Param, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidQuery
}

// SchemaError represents an unusable source schema: unreadable input,
// zero columns, or duplicate column names after normalization.
// The operator fixes the data file.
type SchemaError struct {
	Source  string // Source path or display name
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *SchemaError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("unusable schema in %s: %s", e.Source, e.Message)
	}
	return fmt.Sprintf("unusable schema: %s", e.Message)
}

func (e *SchemaError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrBadSchema
}

// ExecutionError represents an unrecoverable failure mid-scan.
// Transient; the same request is safe to retry.
type ExecutionError struct {
	Stage string // Stage of the scan (e.g., "count", "page")
	Err   error  // Underlying error
}

func (e *ExecutionError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("scan failed during %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("scan failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrExecution
}

// RefreshError represents a failed dataset reload. The previously active
// snapshot remains current and fully serviceable.
type RefreshError struct {
	Source string // New source that could not be loaded
	Err    error  // Underlying error
}

func (e *RefreshError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("refresh from %s failed: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrRefresh
}

// Helper functions for creating common errors

// NewValidation creates a ValidationError
func NewValidation(param, message string) *ValidationError {
	return &ValidationError{
		Param:   param,
		Message: message,
	}
}

// NewSchema creates a SchemaError
func NewSchema(source, message string) *SchemaError {
	return &SchemaError{
		Source:  source,
		Message: message,
	}
}

// NewExecution creates an ExecutionError
func NewExecution(stage string, err error) *ExecutionError {
	return &ExecutionError{
		Stage: stage,
		Err:   err,
	}
}

// NewRefresh creates a RefreshError
func NewRefresh(source string, err error) *RefreshError {
	return &RefreshError{
		Source: source,
		Err:    err,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
