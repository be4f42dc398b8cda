package errors

import (
	"errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// HasCode reports whether err carries the given error code
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid  = "CONFIG_INVALID"
	CodeShapeMismatch  = "SHAPE_MISMATCH"
	CodeFittingFailed  = "FITTING_FAILED"
	CodeNonConvergence = "NON_CONVERGENCE"
	CodeDatabaseError  = "DATABASE_ERROR"
	CodeInvalidInput   = "INVALID_INPUT"
	CodeInternalError  = "INTERNAL_ERROR"
)

// Common error constructors

// ConfigInvalid reports a bad configuration value; the message names the offending field
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func ConfigInvalidf(format string, args ...interface{}) *AppError {
	return New(CodeConfigInvalid, fmt.Sprintf(format, args...))
}

// ShapeMismatch reports panel alignment or matrix dimension failures
func ShapeMismatch(message string) *AppError {
	return New(CodeShapeMismatch, message)
}

func ShapeMismatchf(format string, args ...interface{}) *AppError {
	return New(CodeShapeMismatch, fmt.Sprintf(format, args...))
}

// FittingFailed reports an infeasible or numerically degenerate weight optimization
func FittingFailed(message string) *AppError {
	return New(CodeFittingFailed, message)
}

func FittingFailedf(format string, args ...interface{}) *AppError {
	return New(CodeFittingFailed, fmt.Sprintf(format, args...))
}

// NonConvergence reports a grid search that failed to stabilize within its expansion cap
func NonConvergence(message string) *AppError {
	return New(CodeNonConvergence, message)
}

func NonConvergencef(format string, args ...interface{}) *AppError {
	return New(CodeNonConvergence, fmt.Sprintf(format, args...))
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}
