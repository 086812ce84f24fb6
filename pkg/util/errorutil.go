package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to API callers.
const (
	CodeValidation          = "INVALID_ARGUMENT"
	CodeNotFound            = "NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeCaseClosed          = "CASE_CLOSED"
	CodeMessageLimitReached = "MESSAGE_LIMIT_REACHED"
	CodeConflict            = "CONFLICT"
	CodeTooManyAttempts     = "TOO_MANY_ATTEMPTS"
	CodeInternal            = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
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

// Is matches any DomainError carrying the same code, so callers can compare
// against the sentinel values below with errors.Is.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidArgument     = &DomainError{Code: CodeValidation}
	ErrNotFound            = &DomainError{Code: CodeNotFound}
	ErrUnauthorized        = &DomainError{Code: CodeUnauthorized}
	ErrCaseClosed          = &DomainError{Code: CodeCaseClosed}
	ErrMessageLimitReached = &DomainError{Code: CodeMessageLimitReached}
	ErrConflict            = &DomainError{Code: CodeConflict}
	ErrTooManyAttempts     = &DomainError{Code: CodeTooManyAttempts}
)

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewCaseClosed() error {
	return NewDomainError(CodeCaseClosed, "cannot reply to closed case", http.StatusUnprocessableEntity, nil)
}

func NewMessageLimitReached(limit int) error {
	return NewDomainError(CodeMessageLimitReached,
		fmt.Sprintf("maximum %d messages reached for this case", limit),
		http.StatusUnprocessableEntity,
		map[string]any{"limit": limit})
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewTooManyAttempts() error {
	return NewDomainError(CodeTooManyAttempts, "too many attempts, try again later", http.StatusTooManyRequests, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
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
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
