// Package ceremony verifies WebAuthn registration and authentication
// ceremonies with go-webauthn.
//
// The challenge of every ceremony is the UTF-8 encoding of the claim id the
// client received, so a client passes the claim id bytes to
// navigator.credentials.create or get.
package ceremony

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/go-webauthn/webauthn/webauthn"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
)

// Credential is the stored public key credential of a passkey.
type Credential struct {
	ID              []byte   `json:"id"`
	PublicKey       []byte   `json:"publicKey"`
	Algorithm       int64    `json:"algorithm"`
	AttestationType string   `json:"attestationType"`
	Transports      []string `json:"transports,omitempty"`
	AAGUID          []byte   `json:"aaguid,omitempty"`
	Flags           Flags    `json:"flags"`
}

// Flags are the authenticator flags recorded at registration.
type Flags struct {
	UserPresent    bool `json:"userPresent"`
	UserVerified   bool `json:"userVerified"`
	BackupEligible bool `json:"backupEligible"`
	BackupState    bool `json:"backupState"`
}

// RegistrationInput is a registration ceremony to verify.
type RegistrationInput struct {
	Ceremony    json.RawMessage
	Origin      string
	ChallengeID string
}

// AuthenticationInput is an authentication ceremony to verify against a
// stored credential.
type AuthenticationInput struct {
	Ceremony    json.RawMessage
	Origin      string
	ChallengeID string
	Credential  Credential
}

// Assertion is the verified outcome of an authentication ceremony.
type Assertion struct {
	CredentialID []byte
	UserHandle   []byte
	Counter      uint32
	BackupState  bool
}

// Verifier checks ceremonies. Implementations return REGISTRATION_FAILED or
// AUTHENTICATION_FAILED domain errors.
type Verifier interface {
	VerifyRegistration(in RegistrationInput) (Credential, error)
	VerifyAuthentication(in AuthenticationInput) (Assertion, error)
}

// WebAuthnVerifier is the go-webauthn backed Verifier. The relying party id
// is the host of the expected origin.
type WebAuthnVerifier struct {
	displayName string
}

// NewWebAuthnVerifier builds a Verifier reporting displayName as the relying
// party name.
func NewWebAuthnVerifier(displayName string) *WebAuthnVerifier {
	if strings.TrimSpace(displayName) == "" {
		displayName = "passkeyd"
	}
	return &WebAuthnVerifier{displayName: displayName}
}

// VerifyRegistration verifies an attestation for the expected challenge and
// origin and returns the new credential.
func (v *WebAuthnVerifier) VerifyRegistration(in RegistrationInput) (Credential, error) {
	wa, rpID, err := v.relyingParty(in.Origin)
	if err != nil {
		return Credential{}, registrationFailed(err)
	}
	parsed, err := protocol.ParseCredentialCreationResponseBytes(in.Ceremony)
	if err != nil {
		return Credential{}, registrationFailed(err)
	}
	subject := []byte(in.ChallengeID)
	session := webauthn.SessionData{
		Challenge:        EncodeChallenge(in.ChallengeID),
		RelyingPartyID:   rpID,
		UserID:           subject,
		UserVerification: protocol.VerificationPreferred,
		CredParams:       webauthn.CredentialParametersDefault(),
	}
	created, err := wa.CreateCredential(&ceremonyUser{id: subject}, session, parsed)
	if err != nil {
		return Credential{}, registrationFailed(err)
	}

	var key webauthncose.PublicKeyData
	if err := webauthncbor.Unmarshal(created.PublicKey, &key); err != nil {
		return Credential{}, registrationFailed(err)
	}
	transports := make([]string, 0, len(created.Transport))
	for _, t := range created.Transport {
		transports = append(transports, string(t))
	}
	return Credential{
		ID:              created.ID,
		PublicKey:       created.PublicKey,
		Algorithm:       key.Algorithm,
		AttestationType: created.AttestationType,
		Transports:      transports,
		AAGUID:          created.Authenticator.AAGUID,
		Flags: Flags{
			UserPresent:    created.Flags.UserPresent,
			UserVerified:   created.Flags.UserVerified,
			BackupEligible: created.Flags.BackupEligible,
			BackupState:    created.Flags.BackupState,
		},
	}, nil
}

// VerifyAuthentication verifies an assertion made with the stored credential.
// The signature counter is reported, not enforced.
func (v *WebAuthnVerifier) VerifyAuthentication(in AuthenticationInput) (Assertion, error) {
	wa, rpID, err := v.relyingParty(in.Origin)
	if err != nil {
		return Assertion{}, authenticationFailed(err)
	}
	parsed, err := protocol.ParseCredentialRequestResponseBytes(in.Ceremony)
	if err != nil {
		return Assertion{}, authenticationFailed(err)
	}
	stored := webauthn.Credential{
		ID:              in.Credential.ID,
		PublicKey:       in.Credential.PublicKey,
		AttestationType: in.Credential.AttestationType,
		Flags: webauthn.CredentialFlags{
			UserPresent:    in.Credential.Flags.UserPresent,
			UserVerified:   in.Credential.Flags.UserVerified,
			BackupEligible: in.Credential.Flags.BackupEligible,
			BackupState:    in.Credential.Flags.BackupState,
		},
		Authenticator: webauthn.Authenticator{AAGUID: in.Credential.AAGUID},
	}
	session := webauthn.SessionData{
		Challenge:        EncodeChallenge(in.ChallengeID),
		RelyingPartyID:   rpID,
		UserVerification: protocol.VerificationPreferred,
	}
	handler := func(rawID, userHandle []byte) (webauthn.User, error) {
		if !bytes.Equal(rawID, stored.ID) {
			return nil, errors.New("credential id does not match passkey")
		}
		return &ceremonyUser{id: userHandle, credentials: []webauthn.Credential{stored}}, nil
	}
	_, credential, err := wa.ValidatePasskeyLogin(handler, session, parsed)
	if err != nil {
		return Assertion{}, authenticationFailed(err)
	}
	return Assertion{
		CredentialID: credential.ID,
		UserHandle:   parsed.Response.UserHandle,
		Counter:      parsed.Response.AuthenticatorData.Counter,
		BackupState:  credential.Flags.BackupState,
	}, nil
}

func (v *WebAuthnVerifier) relyingParty(origin string) (*webauthn.WebAuthn, string, error) {
	rpID, err := RelyingPartyID(origin)
	if err != nil {
		return nil, "", err
	}
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          rpID,
		RPDisplayName: v.displayName,
		RPOrigins:     []string{strings.TrimRight(strings.TrimSpace(origin), "/")},
	})
	if err != nil {
		return nil, "", fmt.Errorf("configure relying party: %w", err)
	}
	return wa, rpID, nil
}

// RelyingPartyID returns the host of an https origin, or of an http origin on
// localhost.
func RelyingPartyID(origin string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", fmt.Errorf("parse origin: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", errors.New("origin host is required")
	}
	switch u.Scheme {
	case "https":
	case "http":
		if host != "localhost" {
			return "", errors.New("origin must use https")
		}
	default:
		return "", errors.New("origin must use https")
	}
	if u.Path != "" && u.Path != "/" {
		return "", errors.New("origin must not carry a path")
	}
	return host, nil
}

// EncodeChallenge renders a challenge id the way it appears in client data.
func EncodeChallenge(challengeID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(challengeID))
}

// CredentialID extracts the credential id a client submitted, before any
// verification. It accepts both registration and authentication payloads.
func CredentialID(raw json.RawMessage) ([]byte, error) {
	var envelope struct {
		ID    string                    `json:"id"`
		RawID protocol.URLEncodedBase64 `json:"rawId"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, apperrors.Validation("ceremony", "ceremony is not a credential")
	}
	if len(envelope.RawID) > 0 {
		return envelope.RawID, nil
	}
	id, err := base64.RawURLEncoding.DecodeString(envelope.ID)
	if err != nil || len(id) == 0 {
		return nil, apperrors.Validation("ceremony", "ceremony credential id is missing")
	}
	return id, nil
}

func registrationFailed(err error) error {
	return apperrors.Wrap(apperrors.CodeRegistrationFailed, "registration failed", err)
}

func authenticationFailed(err error) error {
	return apperrors.Wrap(apperrors.CodeAuthenticationFailed, "authentication failed", err)
}

// ceremonyUser adapts a single credential to webauthn.User.
type ceremonyUser struct {
	id          []byte
	credentials []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte {
	return u.id
}

func (u *ceremonyUser) WebAuthnName() string {
	return string(u.id)
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	return string(u.id)
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}
