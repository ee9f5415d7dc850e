package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeState        ErrorType = "state"
	ErrorTypeTimelock     ErrorType = "timelock"
	ErrorTypeMigration    ErrorType = "migration"
	ErrorTypeInternal     ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is: two domain errors match when their types match.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Derive returns a copy of the error with an empty details map. Sentinel
// errors are shared package values; call sites derive a copy before attaching
// per-call details.
func (e *DomainError) Derive() *DomainError {
	return &DomainError{
		Type:    e.Type,
		Message: e.Message,
		Details: make(map[string]interface{}),
	}
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables. Each governance/transfer failure is terminal for the
// current call: no retries, no partial mutation.
var (
	// Not Found Errors
	ErrPolicyNotFound     = NewDomainError(ErrorTypeNotFound, "policy record not found for token", nil)
	ErrAuditEventNotFound = NewDomainError(ErrorTypeNotFound, "audit event not found", nil)

	// Validation Errors
	ErrInvalidIdentity = NewDomainError(ErrorTypeValidation, "invalid identity", nil)
	ErrInvalidCap      = NewDomainError(ErrorTypeValidation, "proposed cap is zero or exceeds the hard ceiling", nil)

	// Authorization Errors
	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "caller is not the governance authority", nil)

	// Conflict Errors
	ErrPolicyExists = NewDomainError(ErrorTypeConflict, "policy record already exists for token", nil)

	// Timelock state machine errors. State and timing failures are distinct
	// categories so operators can tell misuse from premature execution.
	ErrNoPendingUpdate    = NewDomainError(ErrorTypeState, "no pending cap update", nil)
	ErrTimelockNotExpired = NewDomainError(ErrorTypeTimelock, "timelock period has not expired", nil)

	// Migration Errors
	ErrInvalidMigrationVersion = NewDomainError(ErrorTypeMigration, "target version must be greater than current version", nil)
	ErrUnsupportedVersion      = NewDomainError(ErrorTypeMigration, "target version exceeds supported ceiling", nil)
	ErrUnsupportedMigration    = NewDomainError(ErrorTypeMigration, "no migration registered for version pair", nil)
)

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsStateError checks if an error is a state machine error
func IsStateError(err error) bool {
	return GetErrorType(err) == ErrorTypeState
}

// IsTimelockError checks if an error is a timelock timing error
func IsTimelockError(err error) bool {
	return GetErrorType(err) == ErrorTypeTimelock
}

// IsMigrationError checks if an error is a migration error
func IsMigrationError(err error) bool {
	return GetErrorType(err) == ErrorTypeMigration
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
