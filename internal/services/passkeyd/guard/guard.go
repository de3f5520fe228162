// Package guard parses and checks the authorization tokens that actors
// require for occupied-state operations. A token has the shape
// relation:app[:id].
package guard

import (
	"strings"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
)

// Relations.
const (
	RelationPasskey = "passkey"
	RelationUser    = "user"
)

// Token is a parsed guard token.
type Token struct {
	Relation string
	App      string
	ID       string
}

// String renders the token.
func (t Token) String() string {
	if t.ID == "" {
		return t.Relation + ":" + t.App
	}
	return t.Relation + ":" + t.App + ":" + t.ID
}

// Passkey returns the token guarding a passkey owned by userID in app.
func Passkey(app, userID string) string {
	return Token{Relation: RelationPasskey, App: app, ID: userID}.String()
}

// User returns the token guarding users of app.
func User(app string) string {
	return Token{Relation: RelationUser, App: app}.String()
}

// Parse splits raw. A missing token is AUTHORIZATION_MISSING; any other
// malformation is AUTHORIZATION_INVALID.
func Parse(raw string) (Token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Token{}, apperrors.New(apperrors.CodeAuthorizationMissing, "authorization is required")
	}
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Token{}, apperrors.New(apperrors.CodeAuthorizationInvalid, "authorization is malformed")
	}
	for _, part := range parts {
		if part == "" {
			return Token{}, apperrors.New(apperrors.CodeAuthorizationInvalid, "authorization is malformed")
		}
	}
	t := Token{Relation: parts[0], App: parts[1]}
	if len(parts) == 3 {
		t.ID = parts[2]
	}
	return t, nil
}

// CheckPasskey validates raw against a passkey owned by userID in app.
func CheckPasskey(raw, app, userID string) error {
	t, err := Parse(raw)
	if err != nil {
		return err
	}
	if t.Relation != RelationPasskey || t.ID == "" {
		return apperrors.New(apperrors.CodeAuthorizationInvalid, "authorization relation is invalid")
	}
	if t.App != app {
		return apperrors.New(apperrors.CodeAppMismatch, "authorization app mismatch")
	}
	if t.ID != userID {
		return apperrors.New(apperrors.CodeUserMismatch, "authorization user mismatch")
	}
	return nil
}

// CheckUser validates raw against a user of app.
func CheckUser(raw, app string) error {
	t, err := Parse(raw)
	if err != nil {
		return err
	}
	if t.Relation != RelationUser || t.ID != "" {
		return apperrors.New(apperrors.CodeAuthorizationInvalid, "authorization relation is invalid")
	}
	if t.App != app {
		return apperrors.New(apperrors.CodeAppMismatch, "authorization app mismatch")
	}
	return nil
}
