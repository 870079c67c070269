// Package shared contains common domain types, errors, events and the
// key-value store contract used across all domain packages.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// Storage errors
	ErrStorage = errors.New("storage error")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "progress", "content", "store"
	Op      string // Operation that failed, e.g. "Load", "Fetch"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Store errors
var (
	ErrRecordNotFound = NewDomainError("store", "Get", ErrNotFound, "record not found")
	ErrInvalidProfile = NewDomainError("store", "Validate", ErrInvalidID, "invalid profile ID")
	ErrCorruptRecord  = NewDomainError("store", "Decode", ErrInvalidFormat, "persisted record is not valid JSON")
)

// Content errors
var (
	ErrContentUnavailable = NewDomainError("content", "Fetch", ErrServiceUnavailable, "lesson content unavailable from every source")
	ErrContentStatus      = NewDomainError("content", "Fetch", ErrExternalService, "content origin returned a non-success status")
	ErrUnknownLessonPath  = NewDomainError("content", "Resolve", ErrNotFound, "no lesson with this content path")
)

// Progress errors
var (
	ErrInvalidQuizScore = NewDomainError("progress", "RecordQuizScore", ErrValueOutOfRange, "quiz score must be between 0 and total")
	ErrNegativeXP       = NewDomainError("progress", "AddExperience", ErrNegativeValue, "experience cannot decrease")
)

// Preferences errors
var (
	ErrUnsupportedLanguage = NewDomainError("preferences", "SetLanguage", ErrInvalidInput, "language must be zh or en")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
