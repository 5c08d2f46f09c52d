package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors. Retryable distinguishes
// transient failures (store or collaborator unreachable) from permanent
// ones, so callers decide rollback vs. park as a function of the error
// kind rather than type introspection.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Retryable  bool
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewStoreError wraps a backing-store failure. Retryable.
func NewStoreError(message string, err error) error {
	return &DomainError{
		Code:       "STORE_ERROR",
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
		Retryable:  true,
		Err:        err,
	}
}

// NewConnectivityError wraps an unreachable external collaborator. Retryable.
func NewConnectivityError(service string, err error) error {
	return &DomainError{
		Code:       "CONNECTIVITY_ERROR",
		Message:    fmt.Sprintf("%s unreachable", service),
		HTTPStatus: http.StatusServiceUnavailable,
		Retryable:  true,
		Err:        err,
	}
}

// NewParseError marks malformed or out-of-range structured output. Not retryable.
func NewParseError(message string, details map[string]any) error {
	return &DomainError{
		Code:       "PARSE_ERROR",
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewDuplicate reports a ticket-id collision at intake.
func NewDuplicate(ticketID string) error {
	return &DomainError{
		Code:       "DUPLICATE_TICKET",
		Message:    fmt.Sprintf("ticket %s already exists", ticketID),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"ticket_id": ticketID},
	}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsRetryable reports whether the error is a transient failure worth
// rolling back and retrying later.
func IsRetryable(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Retryable
	}
	return false
}

// IsNotFound reports whether the error is a missing-record failure.
func IsNotFound(err error) bool {
	return HasCode(err, "NOT_FOUND")
}

// HasCode reports whether the error carries the given domain code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
