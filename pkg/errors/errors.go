package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Status  int       `json:"status"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode reports the HTTP status associated with the error.
func (e *AppError) StatusCode() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrUpstream
	ErrUnavailable
)

func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Status:  http.StatusBadRequest,
		Message: message,
		Err:     err,
	}
}

// NewUnavailable reports a dependency that is refusing work, e.g. an open circuit.
func NewUnavailable(message string, err error) *AppError {
	return &AppError{
		Code:    ErrUnavailable,
		Status:  http.StatusServiceUnavailable,
		Message: message,
		Err:     err,
	}
}

// FromStatus maps a non-2xx upstream response onto an AppError.
func FromStatus(status int, message string) *AppError {
	code := ErrUpstream
	switch status {
	case http.StatusNotFound:
		code = ErrNotFound
	case http.StatusBadRequest:
		code = ErrBadRequest
	case http.StatusUnauthorized:
		code = ErrUnauthorized
	case http.StatusForbidden:
		code = ErrForbidden
	}
	if message == "" {
		message = fmt.Sprintf("backend responded with %d", status)
	}
	return &AppError{Code: code, Status: status, Message: message}
}

// Status extracts the HTTP status from err, or 0 when err carries none.
func Status(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode()
	}
	return 0
}
