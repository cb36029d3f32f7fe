package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

// ErrorType classifies billing failures for the transport layer.
type ErrorType string

const (
	ErrorTypeAuthentication      ErrorType = "authentication_failed"
	ErrorTypeNotFound            ErrorType = "not_found"
	ErrorTypeBadRequest          ErrorType = "bad_request"
	ErrorTypeConfiguration       ErrorType = "configuration_error"
	ErrorTypeStateConflict       ErrorType = "state_conflict"
	ErrorTypeProviderUnavailable ErrorType = "provider_unavailable"
	ErrorTypeInternal            ErrorType = "internal_error"
)

// Error is the typed error returned by the billing package.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the provider should redeliver after this failure.
func (e *Error) Retryable() bool {
	return e.Type != ErrorTypeAuthentication && e.Type != ErrorTypeBadRequest
}

func newError(t ErrorType, code int, err error, format string, args ...any) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...), Code: code, Err: err}
}

func NewAuthenticationError(err error, format string, args ...any) *Error {
	return newError(ErrorTypeAuthentication, http.StatusBadRequest, err, format, args...)
}

func NewNotFoundError(format string, args ...any) *Error {
	return newError(ErrorTypeNotFound, http.StatusNotFound, nil, format, args...)
}

func NewBadRequestError(format string, args ...any) *Error {
	return newError(ErrorTypeBadRequest, http.StatusBadRequest, nil, format, args...)
}

func NewConfigurationError(format string, args ...any) *Error {
	return newError(ErrorTypeConfiguration, http.StatusInternalServerError, nil, format, args...)
}

func NewStateConflictError(format string, args ...any) *Error {
	return newError(ErrorTypeStateConflict, http.StatusConflict, nil, format, args...)
}

func NewProviderError(err error, format string, args ...any) *Error {
	return newError(ErrorTypeProviderUnavailable, http.StatusBadGateway, err, format, args...)
}

func NewInternalError(err error, format string, args ...any) *Error {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, err, format, args...)
}

// IsType reports whether err carries a billing error of the given type.
func IsType(err error, t ErrorType) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Type == t
	}
	return false
}

// AsError returns the typed billing error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsNotFound reports billing NotFound errors and raw gorm record-not-found errors.
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

// StatusCode maps an error to the HTTP status the transport layer should answer with.
func StatusCode(err error) int {
	var be *Error
	if errors.As(err, &be) && be.Code != 0 {
		return be.Code
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// wrapProviderErr turns timeouts into retryable provider failures.
func wrapProviderErr(err error, op string) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(err, "%s timed out", op)
	}
	return NewProviderError(err, "%s failed", op)
}
