package errors

import (
	"context"
	"errors"
	"net/http"
)

// MapUpstreamError maps a failed account API call to an AppError.
// status is the HTTP status returned by the API (0 when the request never
// completed) and message is the envelope's message, if any.
//
// It handles:
// - Context timeouts/cancellations → Timeout/Canceled
// - 401 → Unauthenticated
// - 403 → Forbidden
// - 404 → NotFound
// - 409 → Conflict
// - 400/422 → Validation
// - anything else → Upstream
func MapUpstreamError(status int, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out. Please try again.",
			Cause:   err,
		}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{
			Code:    ErrCodeCanceled,
			Message: "Request was canceled.",
			Cause:   err,
		}
	}

	code := ErrCodeUpstream
	switch status {
	case http.StatusUnauthorized:
		code = ErrCodeUnauthenticated
	case http.StatusForbidden:
		code = ErrCodeForbidden
	case http.StatusNotFound:
		code = ErrCodeNotFound
	case http.StatusConflict:
		code = ErrCodeConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		code = ErrCodeValidation
	}
	if message == "" {
		message = defaultUpstreamMessage(code)
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

func defaultUpstreamMessage(code ErrorCode) string {
	switch code {
	case ErrCodeUnauthenticated:
		return "Authentication required."
	case ErrCodeForbidden:
		return "Insufficient permissions."
	case ErrCodeNotFound:
		return "Resource not found"
	case ErrCodeConflict:
		return "This value already exists. Please choose a different one."
	case ErrCodeValidation:
		return "Invalid data. Please check your input."
	default:
		return "The account service is unavailable. Please try again."
	}
}

// HTTPStatus returns the console response status for err.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeUpstream:
		return http.StatusBadGateway
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
