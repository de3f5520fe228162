// Package ceremonytest is a software authenticator producing real WebAuthn
// payloads for tests.
package ceremonytest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// Authenticator holds one ES256 credential.
type Authenticator struct {
	mu           sync.Mutex
	key          *ecdsa.PrivateKey
	credentialID []byte
	counter      uint32

	// FixedCounter, when set, reports Counter on every assertion instead of
	// incrementing it.
	FixedCounter bool
	// BackupEligible sets the BE flag on every ceremony.
	BackupEligible bool
}

// New returns an Authenticator for credentialID.
func New(credentialID []byte) (*Authenticator, error) {
	if len(credentialID) == 0 {
		return nil, errors.New("credential id is required")
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Authenticator{key: key, credentialID: append([]byte(nil), credentialID...)}, nil
}

// CredentialID returns the credential id.
func (a *Authenticator) CredentialID() []byte {
	return append([]byte(nil), a.credentialID...)
}

// SetCounter sets the signature counter reported by the next assertion.
func (a *Authenticator) SetCounter(counter uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counter = counter
}

// Register returns a registration response with "none" attestation.
func (a *Authenticator) Register(origin, challengeID string) (json.RawMessage, error) {
	rpHash, err := rpIDHash(origin)
	if err != nil {
		return nil, err
	}
	clientData, err := clientDataJSON(protocol.CreateCeremony, origin, challengeID)
	if err != nil {
		return nil, err
	}
	publicKey, err := webauthncbor.Marshal(webauthncose.EC2PublicKeyData{
		PublicKeyData: webauthncose.PublicKeyData{
			KeyType:   int64(webauthncose.EllipticKey),
			Algorithm: int64(webauthncose.AlgES256),
		},
		Curve:  int64(webauthncose.P256),
		XCoord: a.key.PublicKey.X.FillBytes(make([]byte, 32)),
		YCoord: a.key.PublicKey.Y.FillBytes(make([]byte, 32)),
	})
	if err != nil {
		return nil, fmt.Errorf("encode public key: %w", err)
	}

	flags := protocol.FlagUserPresent | protocol.FlagUserVerified | protocol.FlagAttestedCredentialData
	if a.BackupEligible {
		flags |= protocol.FlagBackupEligible
	}
	authData := append([]byte(nil), rpHash...)
	authData = append(authData, byte(flags))
	authData = binary.BigEndian.AppendUint32(authData, 0)
	authData = append(authData, make([]byte, 16)...)
	authData = binary.BigEndian.AppendUint16(authData, uint16(len(a.credentialID)))
	authData = append(authData, a.credentialID...)
	authData = append(authData, publicKey...)

	attestation, err := webauthncbor.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": authData,
	})
	if err != nil {
		return nil, fmt.Errorf("encode attestation: %w", err)
	}

	id := base64.RawURLEncoding.EncodeToString(a.credentialID)
	return json.Marshal(map[string]any{
		"id":    id,
		"rawId": id,
		"type":  "public-key",
		"response": map[string]any{
			"clientDataJSON":    base64.RawURLEncoding.EncodeToString(clientData),
			"attestationObject": base64.RawURLEncoding.EncodeToString(attestation),
			"transports":        []string{"internal"},
		},
	})
}

// Assert returns an authentication response signed with the credential key.
func (a *Authenticator) Assert(origin, challengeID string, userHandle []byte) (json.RawMessage, error) {
	rpHash, err := rpIDHash(origin)
	if err != nil {
		return nil, err
	}
	clientData, err := clientDataJSON(protocol.AssertCeremony, origin, challengeID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if !a.FixedCounter {
		a.counter++
	}
	counter := a.counter
	a.mu.Unlock()

	flags := protocol.FlagUserPresent | protocol.FlagUserVerified
	if a.BackupEligible {
		flags |= protocol.FlagBackupEligible
	}
	authData := append([]byte(nil), rpHash...)
	authData = append(authData, byte(flags))
	authData = binary.BigEndian.AppendUint32(authData, counter)

	clientHash := sha256.Sum256(clientData)
	digest := sha256.Sum256(append(append([]byte(nil), authData...), clientHash[:]...))
	signature, err := ecdsa.SignASN1(rand.Reader, a.key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign assertion: %w", err)
	}

	id := base64.RawURLEncoding.EncodeToString(a.credentialID)
	return json.Marshal(map[string]any{
		"id":    id,
		"rawId": id,
		"type":  "public-key",
		"response": map[string]any{
			"clientDataJSON":    base64.RawURLEncoding.EncodeToString(clientData),
			"authenticatorData": base64.RawURLEncoding.EncodeToString(authData),
			"signature":         base64.RawURLEncoding.EncodeToString(signature),
			"userHandle":        base64.RawURLEncoding.EncodeToString(userHandle),
		},
	})
}

func rpIDHash(origin string) ([]byte, error) {
	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid origin %q", origin)
	}
	sum := sha256.Sum256([]byte(u.Hostname()))
	return sum[:], nil
}

func clientDataJSON(ceremony protocol.CeremonyType, origin, challengeID string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":      string(ceremony),
		"challenge": base64.RawURLEncoding.EncodeToString([]byte(challengeID)),
		"origin":    origin,
	})
}
