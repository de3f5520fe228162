// Package errors provides structured domain errors shared by passkeyd services.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Input errors
	CodeValidationFailed Code = "VALIDATION_FAILED"

	// Authorization errors
	CodeAuthorizationMissing Code = "AUTHORIZATION_MISSING"
	CodeAuthorizationInvalid Code = "AUTHORIZATION_INVALID"
	CodeAppMismatch          Code = "APP_MISMATCH"
	CodeUserMismatch         Code = "USER_MISMATCH"
	CodeForbiddenKey         Code = "FORBIDDEN_KEY"

	// Claim errors
	CodeClaimInvalid          Code = "CLAIM_INVALID"
	CodeClaimExpired          Code = "CLAIM_EXPIRED"
	CodeClaimAudienceMismatch Code = "CLAIM_AUDIENCE_MISMATCH"

	// Conflict errors
	CodePasskeyExists  Code = "PASSKEY_EXISTS"
	CodePasskeyPending Code = "PASSKEY_PENDING"
	CodeUserExists     Code = "USER_EXISTS"
	CodeAliasesTaken   Code = "ALIASES_TAKEN"

	// Challenge errors
	CodeChallengeExpired Code = "CHALLENGE_EXPIRED"
	CodeCodeMismatch     Code = "CODE_MISMATCH"

	// Ceremony errors
	CodeRegistrationFailed   Code = "REGISTRATION_FAILED"
	CodeAuthenticationFailed Code = "AUTHENTICATION_FAILED"

	// Lookup errors
	CodeNotFound        Code = "NOT_FOUND"
	CodePasskeyNotFound Code = "PASSKEY_NOT_FOUND"
	CodeEmailNotFound   Code = "EMAIL_NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidationFailed:
		return http.StatusUnprocessableEntity

	case CodeAuthorizationMissing,
		CodeClaimInvalid,
		CodeRegistrationFailed,
		CodeAuthenticationFailed:
		return http.StatusUnauthorized

	case CodeAuthorizationInvalid,
		CodeAppMismatch,
		CodeUserMismatch,
		CodeForbiddenKey,
		CodeClaimAudienceMismatch,
		CodeCodeMismatch:
		return http.StatusForbidden

	case CodePasskeyExists,
		CodePasskeyPending,
		CodeUserExists,
		CodeAliasesTaken:
		return http.StatusConflict

	case CodeChallengeExpired,
		CodeClaimExpired:
		return http.StatusGone

	case CodeNotFound,
		CodePasskeyNotFound,
		CodeEmailNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}
