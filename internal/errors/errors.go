// Package errors defines the console's categorized application errors.
// Adapters translate account API failures into these codes and the HTTP
// layer maps codes back onto response statuses.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	ErrCodeNotFound        ErrorCode = "not_found"
	ErrCodeConflict        ErrorCode = "conflict"
	ErrCodeValidation      ErrorCode = "validation"
	ErrCodeUnauthenticated ErrorCode = "unauthenticated"
	ErrCodeForbidden       ErrorCode = "forbidden"
	// ErrCodeConfigurationGap marks inconsistent navigation or screen wiring.
	ErrCodeConfigurationGap ErrorCode = "configuration_gap"
	// ErrCodeUpstream marks an account API failure with no closer category.
	ErrCodeUpstream ErrorCode = "upstream"
	ErrCodeInternal ErrorCode = "internal"
	ErrCodeTimeout  ErrorCode = "timeout"
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError is a categorized error. Field names the offending input for
// validation failures; Cause is optional and visible to errors.Is/As.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Field   string
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func newError(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NotFound reports a missing user, session or screen.
func NotFound(message string) *AppError { return newError(ErrCodeNotFound, message) }

// Conflict reports a duplicate, such as an email that is already registered.
func Conflict(message string) *AppError { return newError(ErrCodeConflict, message) }

func Validation(message string) *AppError { return newError(ErrCodeValidation, message) }

// ValidationField reports invalid input for one form field.
func ValidationField(field, message string) *AppError {
	e := newError(ErrCodeValidation, message)
	e.Field = field
	return e
}

// Unauthenticated reports a request without a usable session.
func Unauthenticated(message string) *AppError { return newError(ErrCodeUnauthenticated, message) }

// Forbidden reports an identity whose role does not admit the operation.
func Forbidden(message string) *AppError { return newError(ErrCodeForbidden, message) }

func ConfigurationGapf(format string, args ...any) *AppError {
	return newError(ErrCodeConfigurationGap, fmt.Sprintf(format, args...))
}

// Upstream wraps an account API failure, keeping the API's message.
func Upstream(message string, cause error) *AppError {
	e := newError(ErrCodeUpstream, message)
	e.Cause = cause
	return e
}

// Wrapf categorizes err under code. A nil err yields nil.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	e := newError(code, fmt.Sprintf(format, args...))
	e.Cause = err
	return e
}

// GetCode returns the code of the first AppError in err's chain, or "".
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the offending field of the first AppError in err's chain.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

func IsNotFound(err error) bool        { return GetCode(err) == ErrCodeNotFound }
func IsConflict(err error) bool        { return GetCode(err) == ErrCodeConflict }
func IsValidation(err error) bool      { return GetCode(err) == ErrCodeValidation }
func IsUnauthenticated(err error) bool { return GetCode(err) == ErrCodeUnauthenticated }
func IsForbidden(err error) bool       { return GetCode(err) == ErrCodeForbidden }
func IsUpstream(err error) bool        { return GetCode(err) == ErrCodeUpstream }
func IsCanceled(err error) bool        { return GetCode(err) == ErrCodeCanceled }
