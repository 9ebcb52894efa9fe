package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError carrying the same code and message, so
// sentinel errors survive being re-created with a cause.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeUpstream      = "UPSTREAM_ERROR"
	ErrCodeConflict      = "CONFLICT"
)

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidPriority      = NewDomainError(ErrCodeValidation, "invalid priority")
	ErrBatchTooLarge        = NewDomainError(ErrCodeValidation, "batch exceeds maximum size")
)

// Not found errors
var (
	ErrPolicyNotFound = NewDomainError(ErrCodeNotFound, "policy not found")
)

// Upstream errors
var (
	ErrMailGatewayDisabled = NewDomainError(ErrCodeUpstream, "mail gateway not configured")
	ErrEmptyCompletion     = NewDomainError(ErrCodeUpstream, "language model returned an empty response")
)

// Operation errors
var (
	ErrJobAlreadyRunning = NewDomainError(ErrCodeConflict, "job already running")
)

// ValidationError builds a VALIDATION_ERROR for the named field.
func ValidationError(field string) *DomainError {
	return NewDomainError(ErrCodeValidation, field+" is required")
}
