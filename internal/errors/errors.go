// Package errors provides coded application errors shared across layers.
// Handlers map codes to HTTP statuses; services attach codes so callers can
// distinguish client faults from store failures without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodePermissionDenied    = "PERMISSION_DENIED"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeChecklistIncomplete = "CHECKLIST_INCOMPLETE"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeInternal            = "INTERNAL"
)

// AppError is an error with a stable machine-readable code. Details carries
// structured context for the caller, e.g. the missing checklist items on a
// CHECKLIST_INCOMPLETE rejection.
type AppError struct {
	Code    string
	Message string
	Details any
	Err     error
}

// WithDetails attaches structured context to the error.
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError with the given code and message.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// PermissionDenied reports an actor that may not perform the operation.
func PermissionDenied(message string) *AppError {
	return &AppError{Code: ErrCodePermissionDenied, Message: message}
}

// InvalidInput reports a malformed request field.
func InvalidInput(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidInput,
		Message: fmt.Sprintf("invalid %s: %s", field, message),
	}
}

// Code extracts the application error code, or ErrCodeInternal for
// unclassified errors. A nil error yields the empty string.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HTTPStatus maps an error code to an HTTP status code.
func HTTPStatus(code string) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodePermissionDenied:
		return http.StatusForbidden
	case ErrCodeInvalidTransition, ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeChecklistIncomplete:
		return http.StatusUnprocessableEntity
	case ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
