package shared

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	ErrorCategoryNetwork    ErrorCategory = "network"
	ErrorCategoryDatabase   ErrorCategory = "database"
	ErrorCategoryValidation ErrorCategory = "validation"
	ErrorCategoryResource   ErrorCategory = "resource"
	ErrorCategorySettlement ErrorCategory = "settlement"
	ErrorCategoryProvider   ErrorCategory = "provider"
)

// Error codes used across the auction core. Handlers map these to HTTP
// statuses; background tasks log them with the identifying key.
const (
	CodeNotFound              = "NOT_FOUND"
	CodeNoChannelAvailable    = "NO_CHANNEL_AVAILABLE"
	CodeTooEarly              = "TOO_EARLY"
	CodeInsufficientFunds     = "INSUFFICIENT_FUNDS"
	CodeRemoteProviderFailure = "REMOTE_PROVIDER_FAILURE"
	CodeAlreadySettled        = "ALREADY_SETTLED"
)

// ServiceError represents a standardized error with additional context
type ServiceError struct {
	Category    ErrorCategory `json:"category"`
	Code        string        `json:"code"`
	Message     string        `json:"message"`
	Details     interface{}   `json:"details,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	ServiceName string        `json:"service_name"`
	Operation   string        `json:"operation"`
	Retryable   bool          `json:"retryable"`
	Cause       error         `json:"-"` // Original error, not serialized
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// NewServiceError creates a new service error
func NewServiceError(category ErrorCategory, code, message, serviceName, operation string, retryable bool, cause error) *ServiceError {
	return &ServiceError{
		Category:    category,
		Code:        code,
		Message:     message,
		Timestamp:   time.Now(),
		ServiceName: serviceName,
		Operation:   operation,
		Retryable:   retryable,
		Cause:       cause,
	}
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(details interface{}) *ServiceError {
	e.Details = details
	return e
}

// IsRetryable returns whether the error is retryable
func (e *ServiceError) IsRetryable() bool {
	return e.Retryable
}

// LogError logs the error with structured fields
func (e *ServiceError) LogError() {
	logrus.WithFields(logrus.Fields{
		"error_category":   e.Category,
		"error_code":       e.Code,
		"error_message":    e.Message,
		"service_name":     e.ServiceName,
		"operation":        e.Operation,
		"retryable":        e.Retryable,
		"details":          e.Details,
		"underlying_error": e.Cause,
	}).Error("Service error occurred")
}

// WrapError wraps an existing error with service error context
func WrapError(err error, category ErrorCategory, code, serviceName, operation string, retryable bool) *ServiceError {
	if err == nil {
		return nil
	}

	// If it's already a ServiceError, just update the context
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		serviceErr.ServiceName = serviceName
		serviceErr.Operation = operation
		return serviceErr
	}

	return NewServiceError(category, code, err.Error(), serviceName, operation, retryable, err)
}

// CodeOf extracts the error code from a ServiceError, or "" for other errors.
func CodeOf(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code
	}
	return ""
}

// IsNotFound reports whether err carries the NOT_FOUND code.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// IsNoChannelAvailable reports whether err carries the NO_CHANNEL_AVAILABLE code.
func IsNoChannelAvailable(err error) bool {
	return CodeOf(err) == CodeNoChannelAvailable
}

// IsTooEarly reports whether err carries the TOO_EARLY code.
func IsTooEarly(err error) bool {
	return CodeOf(err) == CodeTooEarly
}

// IsInsufficientFunds reports whether err carries the INSUFFICIENT_FUNDS code.
func IsInsufficientFunds(err error) bool {
	return CodeOf(err) == CodeInsufficientFunds
}

// IsAlreadySettled reports whether err carries the ALREADY_SETTLED code.
func IsAlreadySettled(err error) bool {
	return CodeOf(err) == CodeAlreadySettled
}

// IsRemoteProviderFailure reports whether err carries the REMOTE_PROVIDER_FAILURE code.
func IsRemoteProviderFailure(err error) bool {
	return CodeOf(err) == CodeRemoteProviderFailure
}
