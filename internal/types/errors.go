package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Components MUST use these constants instead of
// hardcoded strings so retry classification stays consistent everywhere.
const (
	// Validation (400) -- admin API request errors.
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidSource ErrorCode = "validation_invalid_source"
	ErrCodeValidationInvalidMode   ErrorCode = "validation_invalid_mode"
	ErrCodeValidationTimeWindow    ErrorCode = "validation_time_window_invalid"

	// Not Found (404)
	ErrCodeNotFoundFeed ErrorCode = "not_found_feed"

	// Coordination -- expected outcomes, not faults.
	ErrCodeLockUnavailable ErrorCode = "lock_unavailable"

	// Upstream (502/429) -- feed API failures.
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamTimeout     ErrorCode = "upstream_timeout"

	// Internal (500)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalKV         ErrorCode = "internal_kv_store_error"
	ErrCodeInternalQueue      ErrorCode = "internal_queue_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"

	// Relay -- isolated side channel, never blocks persistence.
	ErrCodeRelayDelivery ErrorCode = "relay_delivery_failed"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code for the
// admin API layer. Returns 500 for unrecognized codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case s == string(ErrCodeLockUnavailable):
		return http.StatusConflict
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type used throughout the engine.
// Domain errors are expressed as AppError to enable consistent retry
// classification, logging, and HTTP status mapping.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf extracts the ErrorCode from an error chain. Returns
// ErrCodeInternalUnexpected for errors that are not AppErrors.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}

// IsRateLimited reports whether the error chain contains an upstream
// rate-limit classification. Rate-limited fetches retry the same
// cursor/window; they never count as data loss.
func IsRateLimited(err error) bool {
	return CodeOf(err) == ErrCodeUpstreamRateLimited
}
