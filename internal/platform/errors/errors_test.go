package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestGetCodeUnwrapsChain(t *testing.T) {
	base := New(CodePasskeyExists, "passkey already registered")
	wrapped := fmt.Errorf("start register: %w", base)

	if got := GetCode(wrapped); got != CodePasskeyExists {
		t.Fatalf("GetCode = %q, want %q", got, CodePasskeyExists)
	}
	if !HasCode(wrapped, CodePasskeyExists) {
		t.Fatal("expected HasCode to match wrapped error")
	}
	if HasCode(wrapped, CodeUserExists) {
		t.Fatal("expected HasCode to reject different code")
	}
}

func TestGetCodeUnknown(t *testing.T) {
	if got := GetCode(fmt.Errorf("boom")); got != CodeUnknown {
		t.Fatalf("GetCode = %q, want %q", got, CodeUnknown)
	}
	if got := HTTPStatus(fmt.Errorf("boom")); got != http.StatusInternalServerError {
		t.Fatalf("HTTPStatus = %d, want 500", got)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidationFailed, http.StatusUnprocessableEntity},
		{CodeAuthorizationMissing, http.StatusUnauthorized},
		{CodeAppMismatch, http.StatusForbidden},
		{CodeUserMismatch, http.StatusForbidden},
		{CodePasskeyExists, http.StatusConflict},
		{CodeUserExists, http.StatusConflict},
		{CodeAliasesTaken, http.StatusConflict},
		{CodeChallengeExpired, http.StatusGone},
		{CodeRegistrationFailed, http.StatusUnauthorized},
		{CodeAuthenticationFailed, http.StatusUnauthorized},
		{CodeNotFound, http.StatusNotFound},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestValidationCarriesField(t *testing.T) {
	err := Validation("aliases", "at least one alias is required")
	if err.Code != CodeValidationFailed {
		t.Fatalf("code = %q, want %q", err.Code, CodeValidationFailed)
	}
	if err.Metadata["field"] != "aliases" {
		t.Fatalf("field = %q, want %q", err.Metadata["field"], "aliases")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("verify: bad signature")
	err := Wrap(CodeRegistrationFailed, "registration failed", cause)
	if err.Unwrap() != cause {
		t.Fatal("expected cause to be preserved")
	}
	if err.Error() != "registration failed" {
		t.Fatalf("message = %q", err.Error())
	}
}
