// Package errors provides structured application errors for the job engine.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodePrecondition indicates a request referenced state that does not
	// exist, such as an unknown job definition id.
	ErrCodePrecondition ErrorCode = "precondition"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message,
// and optional cause. It supports errors.Is and errors.As via Unwrap.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message}
}

// Conflictf creates a new Conflict error with formatted message.
func Conflictf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Precondition creates a new Precondition error.
func Precondition(message string) *AppError {
	return &AppError{Code: ErrCodePrecondition, Message: message}
}

// Preconditionf creates a new Precondition error with formatted message.
func Preconditionf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodePrecondition, Message: fmt.Sprintf(format, args...)}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool {
	return isCode(err, ErrCodeConflict)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsPrecondition checks if an error is a Precondition error.
func IsPrecondition(err error) bool {
	return isCode(err, ErrCodePrecondition)
}

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool {
	return isCode(err, ErrCodeInternal)
}
