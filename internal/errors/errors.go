package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// WeaveError is the structured error type for DocWeave.
// It provides rich context for error handling, logging, and user presentation.
type WeaveError struct {
	// Code is the unique error code (e.g., "ERR_201_INDEX_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Validation, NotFound, Transient, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *WeaveError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *WeaveError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with WeaveError.
func (e *WeaveError) Is(target error) bool {
	if t, ok := target.(*WeaveError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *WeaveError) WithDetail(key, value string) *WeaveError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *WeaveError) WithSuggestion(suggestion string) *WeaveError {
	e.Suggestion = suggestion
	return e
}

// New creates a new WeaveError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *WeaveError {
	return &WeaveError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a WeaveError from an existing error.
// The error's message becomes the WeaveError message.
func Wrap(code string, err error) *WeaveError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *WeaveError {
	return New(ErrCodeEmptyCorpus, message, cause)
}

// NotFoundError creates a missing-resource error.
func NotFoundError(message string, cause error) *WeaveError {
	return New(ErrCodeIndexNotFound, message, cause)
}

// TransientError creates a retryable network error.
func TransientError(message string, cause error) *WeaveError {
	return New(ErrCodeConnectionFailed, message, cause)
}

// TimeoutError creates a retryable timeout error.
func TimeoutError(message string, cause error) *WeaveError {
	return New(ErrCodeTimeout, message, cause)
}

// UpstreamError creates an endpoint-unusable error.
func UpstreamError(message string, cause error) *WeaveError {
	return New(ErrCodeModelNotLoaded, message, cause)
}

// InternalError creates an internal invariant-violation error.
func InternalError(message string, cause error) *WeaveError {
	return New(ErrCodeInternal, message, cause)
}

// NoContentError creates a typed no-content error.
func NoContentError(message string) *WeaveError {
	return New(ErrCodeNoContent, message, nil)
}

// IsRetryable checks if an error is retryable.
// Unwraps the chain to find a WeaveError and returns its Retryable flag.
func IsRetryable(err error) bool {
	var we *WeaveError
	if stderrors.As(err, &we) {
		return we.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current job.
func IsFatal(err error) bool {
	var we *WeaveError
	if stderrors.As(err, &we) {
		return we.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a WeaveError anywhere in the chain.
// Returns empty string if no WeaveError is found.
func GetCode(err error) string {
	var we *WeaveError
	if stderrors.As(err, &we) {
		return we.Code
	}
	return ""
}

// GetCategory extracts the category from a WeaveError anywhere in the chain.
// Returns empty string if no WeaveError is found.
func GetCategory(err error) Category {
	var we *WeaveError
	if stderrors.As(err, &we) {
		return we.Category
	}
	return ""
}

// HTTPStatus maps an error to the HTTP status code the API surfaces.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var we *WeaveError
	if !stderrors.As(err, &we) {
		return http.StatusInternalServerError
	}
	switch we.Category {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryTransient:
		return http.StatusServiceUnavailable
	case CategoryUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
