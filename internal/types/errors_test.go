package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationInvalidSource, http.StatusBadRequest},
		{ErrCodeValidationTimeWindow, http.StatusBadRequest},
		{ErrCodeNotFoundFeed, http.StatusNotFound},
		{ErrCodeLockUnavailable, http.StatusConflict},
		{ErrCodeUpstreamRateLimited, http.StatusTooManyRequests},
		{ErrCodeUpstreamUnavailable, http.StatusBadGateway},
		{ErrCodeUpstreamTimeout, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrCodeRelayDelivery, http.StatusInternalServerError},
		{ErrorCode("something_new"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.code, tc.want, got)
		}
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := NewAppError(ErrCodeInternalDB, "failed to upsert", inner)

	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to find the wrapped error")
	}

	wrapped := fmt.Errorf("cycle failed: %w", err)
	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatal("expected errors.As to find the AppError through a wrap")
	}
	if appErr.Code != ErrCodeInternalDB {
		t.Errorf("expected code %s, got %s", ErrCodeInternalDB, appErr.Code)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(NewAppError(ErrCodeLockUnavailable, "held", nil)); got != ErrCodeLockUnavailable {
		t.Errorf("expected %s, got %s", ErrCodeLockUnavailable, got)
	}
	if got := CodeOf(errors.New("plain")); got != ErrCodeInternalUnexpected {
		t.Errorf("expected %s for plain error, got %s", ErrCodeInternalUnexpected, got)
	}
}

func TestIsRateLimited(t *testing.T) {
	rateLimited := fmt.Errorf("fetch: %w", NewAppError(ErrCodeUpstreamRateLimited, "429 after retries", nil))
	if !IsRateLimited(rateLimited) {
		t.Error("expected wrapped rate-limit error to classify as rate limited")
	}
	if IsRateLimited(NewAppError(ErrCodeUpstreamUnavailable, "503", nil)) {
		t.Error("unavailable must not classify as rate limited")
	}
}
