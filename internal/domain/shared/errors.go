// Package shared contains common domain errors used across all domain packages
// and by the message dispatch core. This package has zero external dependencies.
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
	ErrValidation   = errors.New("validation error")
	ErrInvalidID    = errors.New("invalid ID")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyValue   = errors.New("value cannot be empty")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")

	// Dispatch errors
	ErrConfiguration = errors.New("configuration error")
	ErrSoftRouting   = errors.New("soft routing error")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "user", "link"
	Op      string // Operation that failed, e.g., "Create", "Update"
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

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCH ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// ConfigurationError reports a missing or invalid dependency declaration.
// It is fatal: surfaced at registration or at first resolution and never retried.
type ConfigurationError struct {
	Op      string // e.g., "Resolve", "Register"
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration: %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("configuration: %s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Is makes every ConfigurationError match ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewConfigurationError creates a configuration error.
func NewConfigurationError(op, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Op: op, Message: fmt.Sprintf(format, args...)}
}

// SoftRoutingError is returned by a handler that declines a message.
// The router logs it and moves on to the next candidate.
type SoftRoutingError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *SoftRoutingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("soft routing: %s: %v", e.Message, e.Err)
	}
	return "soft routing: " + e.Message
}

// Unwrap returns the underlying error.
func (e *SoftRoutingError) Unwrap() error {
	return e.Err
}

// Is makes every SoftRoutingError match ErrSoftRouting.
func (e *SoftRoutingError) Is(target error) bool {
	return target == ErrSoftRouting
}

// NewSoftRoutingError creates a soft routing error.
func NewSoftRoutingError(format string, args ...any) *SoftRoutingError {
	return &SoftRoutingError{Message: fmt.Sprintf(format, args...)}
}

// Decline wraps err so that the router treats it as "try the next route".
func Decline(message string, err error) *SoftRoutingError {
	return &SoftRoutingError{Message: message, Err: err}
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// User domain errors
var (
	ErrUserNotFound        = NewDomainError("user", "Find", ErrNotFound, "user not found")
	ErrUserAlreadyExists   = NewDomainError("user", "Create", ErrAlreadyExists, "user already exists")
	ErrUserDuplicated      = NewDomainError("user", "Update", ErrAlreadyExists, "username has a duplicate")
	ErrInvalidCredentials  = NewDomainError("user", "VerifyPassword", ErrNotFound, "wrong password or username")
	ErrPermissionDenied    = NewDomainError("user", "CheckLevel", ErrForbidden, "permission denied")
	ErrEmptyUsername       = NewDomainError("user", "Validate", ErrEmptyValue, "username cannot be empty")
	ErrInvalidTelegramID   = NewDomainError("user", "Validate", ErrInvalidID, "invalid Telegram ID")
	ErrUnknownTelegramUser = NewDomainError("user", "Authenticate", ErrUnauthorized, "telegram user is not registered")
)

// Link domain errors
var (
	ErrLinkNotFound      = NewDomainError("link", "Find", ErrNotFound, "link not found")
	ErrLinkAlreadyExists = NewDomainError("link", "Append", ErrAlreadyExists, "link already exists")
	ErrNoLinksFound      = NewDomainError("link", "Find", ErrNotFound, "no links found for the request")
	ErrInvalidURL        = NewDomainError("link", "Validate", ErrInvalidInput, "invalid URL")
	ErrEmptyQuery        = NewDomainError("link", "Find", ErrEmptyValue, "search query cannot be empty")
)

// External service errors
var (
	ErrEmbeddingFailed      = NewDomainError("openai", "Embed", ErrExternalService, "embedding request failed")
	ErrAssistantUnavailable = NewDomainError("openai", "Complete", ErrServiceUnavailable, "assistant is not configured")
	ErrTelegramAPIFailed    = NewDomainError("telegram", "Send", ErrExternalService, "Telegram API request failed")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsForbidden checks if the error is a permission error.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsConfiguration checks if the error is a dependency configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsSoftRouting checks if the error asks the router to try the next candidate.
func IsSoftRouting(err error) bool {
	return errors.Is(err, ErrSoftRouting)
}
