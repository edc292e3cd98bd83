package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeConfiguration      ErrorType = "configuration"
	ErrorTypeProviderTimeout    ErrorType = "provider_timeout"
	ErrorTypeProviderFailure    ErrorType = "provider_failure"
	ErrorTypeProvidersExhausted ErrorType = "providers_exhausted"
	ErrorTypeCanceled           ErrorType = "canceled"
	ErrorTypeInternal           ErrorType = "internal"
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

// Is implements errors.Is
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

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Not Found Errors
	ErrSessionNotFound = NewDomainError(ErrorTypeNotFound, "session not found", nil)

	// Validation Errors
	ErrEmptyPrompt = NewDomainError(ErrorTypeValidation, "prompt cannot be empty", nil)

	// Configuration Errors
	ErrUnknownPersona     = NewDomainError(ErrorTypeConfiguration, "unknown persona", nil)
	ErrUnknownVendor      = NewDomainError(ErrorTypeConfiguration, "no adapter registered for vendor", nil)
	ErrMissingCredential  = NewDomainError(ErrorTypeConfiguration, "vendor credential not configured", nil)
	ErrInvalidPersonaFile = NewDomainError(ErrorTypeConfiguration, "invalid persona configuration", nil)

	// Provider Errors
	ErrProviderTimeout       = NewDomainError(ErrorTypeProviderTimeout, "AI provider timeout", nil)
	ErrProviderFailure       = NewDomainError(ErrorTypeProviderFailure, "AI provider failure", nil)
	ErrAllProvidersExhausted = NewDomainError(ErrorTypeProvidersExhausted, "all AI providers exhausted", nil)

	// Internal Errors
	ErrAuditQueueFull = NewDomainError(ErrorTypeInternal, "audit event buffer full", nil)
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

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	return GetErrorType(err) == ErrorTypeConfiguration
}

// IsProviderTimeoutError checks if an error is a provider timeout
func IsProviderTimeoutError(err error) bool {
	return GetErrorType(err) == ErrorTypeProviderTimeout
}

// IsProviderFailureError checks if an error is a provider failure
func IsProviderFailureError(err error) bool {
	return GetErrorType(err) == ErrorTypeProviderFailure
}

// IsProvidersExhaustedError checks if every provider binding failed
func IsProvidersExhaustedError(err error) bool {
	return GetErrorType(err) == ErrorTypeProvidersExhausted
}

// IsCanceledError checks if the caller abandoned the request
func IsCanceledError(err error) bool {
	return GetErrorType(err) == ErrorTypeCanceled
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// GetErrorType returns the ErrorType of the outermost domain error, or empty string if not a domain error
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

// WrapConfiguration wraps an error as a configuration error
func WrapConfiguration(message string, err error) error {
	return NewDomainError(ErrorTypeConfiguration, message, err)
}
