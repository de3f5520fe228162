// Package claim signs and verifies the short-lived claims that carry
// challenge identity between client round-trips.
//
// A claim is an HS256 JWT. Verification recomputes the signature with strict
// base64url decoding so that any single-character change to the token is
// rejected. Expiry and audience are checked separately by Validate.
package claim

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
)

const signingMethod = "HS256"

// Claim is a signed, time-bounded assertion.
type Claim struct {
	ID        string
	Subject   string
	Audience  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]string
}

// Kind returns the "kind" entry of Extra.
func (c Claim) Kind() string {
	return c.Extra[ExtraKind]
}

// ExtraKind names the Extra entry that distinguishes registration claims from
// authentication and verification claims.
const ExtraKind = "kind"

// Claim kinds.
const (
	KindRegistration   = "registration"
	KindAuthentication = "authentication"
	KindVerification   = "verification"
)

// tokenClaims is the JWT payload.
type tokenClaims struct {
	jwt.RegisteredClaims
	Extra map[string]string `json:"ext,omitempty"`
}

// Sign serializes c and signs it with secret. IssuedAt and ExpiresAt are
// truncated to whole seconds, so Verify returns the truncated times.
func Sign(secret []byte, c Claim) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("claim secret is required")
	}
	if strings.TrimSpace(c.ID) == "" {
		return "", errors.New("claim id is required")
	}
	if c.ExpiresAt.IsZero() {
		return "", errors.New("claim expiry is required")
	}
	payload := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        c.ID,
			Subject:   c.Subject,
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt.Truncate(time.Second)),
		},
		Extra: c.Extra,
	}
	if c.Audience != "" {
		payload.Audience = jwt.ClaimStrings{c.Audience}
	}
	if !c.IssuedAt.IsZero() {
		payload.IssuedAt = jwt.NewNumericDate(c.IssuedAt.Truncate(time.Second))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify checks the token signature and returns the embedded claim. It does
// not check expiry or audience.
func Verify(secret []byte, token string) (Claim, error) {
	if len(secret) == 0 {
		return Claim{}, errors.New("claim secret is required")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Claim{}, apperrors.New(apperrors.CodeClaimInvalid, "claim is required")
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{signingMethod}),
		jwt.WithoutClaimsValidation(),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		return Claim{}, mapJWTError(err)
	}
	if parsed.ID == "" || parsed.ExpiresAt == nil {
		return Claim{}, apperrors.New(apperrors.CodeClaimInvalid, "claim is malformed")
	}
	if len(parsed.Audience) > 1 {
		return Claim{}, apperrors.New(apperrors.CodeClaimInvalid, "claim audience is malformed")
	}

	c := Claim{
		ID:        parsed.ID,
		Subject:   parsed.Subject,
		ExpiresAt: parsed.ExpiresAt.Time.UTC(),
		Extra:     parsed.Extra,
	}
	if len(parsed.Audience) == 1 {
		c.Audience = parsed.Audience[0]
	}
	if parsed.IssuedAt != nil {
		c.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return c, nil
}

// Validate checks that c has not expired at now and is addressed to app.
func Validate(c Claim, app string, now time.Time) error {
	if !now.Before(c.ExpiresAt) {
		return apperrors.New(apperrors.CodeClaimExpired, "claim expired")
	}
	if c.Audience != app {
		return apperrors.New(apperrors.CodeClaimAudienceMismatch, "claim audience mismatch")
	}
	return nil
}

// Decode verifies token and validates it for app at now.
func Decode(secret []byte, token, app string, now time.Time) (Claim, error) {
	c, err := Verify(secret, token)
	if err != nil {
		return Claim{}, err
	}
	if err := Validate(c, app, now); err != nil {
		return Claim{}, err
	}
	return c, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return apperrors.Wrap(apperrors.CodeClaimInvalid, "claim is malformed", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.Wrap(apperrors.CodeClaimInvalid, "claim signature is invalid", err)
	default:
		return apperrors.Wrap(apperrors.CodeClaimInvalid, "claim is invalid", err)
	}
}
