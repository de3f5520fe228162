// Package passkey implements the passkey actor: one instance per WebAuthn
// credential, addressed by the hash of the credential id so that two
// registrations of the same credential meet on the same instance.
//
// Lifecycle: unoccupied, pending after StartRegister (self-destructs when
// FinishRegister never arrives), active, and cleared by Implode.
package passkey

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/actor"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/ceremony"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/guard"
)

// Kind is the actor kind of passkeys.
const Kind = "passkey"

// DefaultPendingTTL is how long a registration may stay unfinished.
const DefaultPendingTTL = 10 * time.Minute

// MaxVisitors bounds the visitor history.
const MaxVisitors = 10

// CounterUnsupported is stored when an authenticator reports a zero counter.
const CounterUnsupported int64 = -1

const (
	fieldMetadata   = "metadata"
	fieldCredential = "credential"
	fieldCounter    = "counter"
	fieldVisitors   = "visitors"
	fieldPending    = "pending"
)

// Metadata identifies a passkey and its owner.
type Metadata struct {
	PasskeyID    string    `json:"passkeyId"`
	CredentialID string    `json:"credentialId"`
	UserID       string    `json:"userId"`
	App          string    `json:"app"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Visitor records one registration or sign-in.
type Visitor struct {
	At        time.Time `json:"at"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Origin    string    `json:"origin,omitempty"`
}

// RegisterInput starts a registration.
type RegisterInput struct {
	UserID      string
	App         string
	Ceremony    json.RawMessage
	Origin      string
	ChallengeID string
	Visitor     Visitor
}

// AuthenticateInput is a sign-in attempt. App must match the app the
// passkey was registered under.
type AuthenticateInput struct {
	App         string
	Ceremony    json.RawMessage
	Origin      string
	ChallengeID string
	Visitor     Visitor
}

// Authenticated identifies the owner of a passkey after a sign-in.
type Authenticated struct {
	UserID    string `json:"userId"`
	PasskeyID string `json:"passkeyId"`
	App       string `json:"app"`
}

// DataOptions selects optional parts of a projection.
type DataOptions struct {
	Credential bool
	Visitors   bool
}

// Data is a read projection of a passkey.
type Data struct {
	Metadata   Metadata             `json:"metadata"`
	Pending    bool                 `json:"pending"`
	Counter    *int64               `json:"counter,omitempty"`
	Credential *ceremony.Credential `json:"credential,omitempty"`
	Visitors   []Visitor            `json:"visitors,omitempty"`
}

// Options tunes the passkey actor.
type Options struct {
	PendingTTL time.Duration
}

// Actor serves passkey instances.
type Actor struct {
	host       *actor.Host
	verifier   ceremony.Verifier
	pendingTTL time.Duration
}

// New builds the passkey actor host. Kind and Behavior in cfg are set by New.
func New(cfg actor.Config, verifier ceremony.Verifier, opts Options) (*Actor, error) {
	if verifier == nil {
		return nil, errors.New("ceremony verifier is required")
	}
	pendingTTL := opts.PendingTTL
	if pendingTTL <= 0 {
		pendingTTL = DefaultPendingTTL
	}
	cfg.Kind = Kind
	cfg.Behavior = behavior{}
	host, err := actor.NewHost(cfg)
	if err != nil {
		return nil, err
	}
	return &Actor{host: host, verifier: verifier, pendingTTL: pendingTTL}, nil
}

// Host returns the underlying actor host.
func (a *Actor) Host() *actor.Host {
	return a.host
}

// ID derives the passkey id of a credential.
func ID(credentialID []byte) string {
	sum := sha256.Sum256(credentialID)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// StartRegister verifies a registration ceremony and reserves the passkey
// for in.UserID. The reservation expires unless FinishRegister follows.
func (a *Actor) StartRegister(ctx context.Context, id string, in RegisterInput) (Metadata, error) {
	if in.UserID == "" {
		return Metadata{}, apperrors.Validation("userId", "user id is required")
	}
	if in.App == "" {
		return Metadata{}, apperrors.Validation("app", "app is required")
	}
	return actor.Call(ctx, a.host, id, func(_ context.Context, inst *actor.Instance) (Metadata, error) {
		state := inst.State()
		if state.Has(fieldMetadata) {
			return Metadata{}, apperrors.New(apperrors.CodePasskeyExists, "passkey already exists")
		}

		cred, err := a.verifier.VerifyRegistration(ceremony.RegistrationInput{
			Ceremony:    in.Ceremony,
			Origin:      in.Origin,
			ChallengeID: in.ChallengeID,
		})
		if err != nil {
			return Metadata{}, err
		}
		if ID(cred.ID) != inst.ID() {
			return Metadata{}, apperrors.New(apperrors.CodeRegistrationFailed, "credential does not belong to this passkey")
		}

		now := inst.Now()
		meta := Metadata{
			PasskeyID:    inst.ID(),
			CredentialID: base64.RawURLEncoding.EncodeToString(cred.ID),
			UserID:       in.UserID,
			App:          in.App,
			CreatedAt:    now,
		}
		visitor := in.Visitor
		visitor.At = now
		for field, value := range map[string]any{
			fieldMetadata:   meta,
			fieldCredential: cred,
			fieldVisitors:   []Visitor{visitor},
			fieldPending:    true,
		} {
			if err := state.Save(field, value); err != nil {
				return Metadata{}, err
			}
		}
		inst.SetAlarm(now.Add(a.pendingTTL))
		return meta, nil
	})
}

// FinishRegister confirms a pending registration. Finishing an active
// passkey is a no-op.
func (a *Actor) FinishRegister(ctx context.Context, id, token string) error {
	return a.host.Do(ctx, id, func(_ context.Context, inst *actor.Instance) error {
		if _, err := occupied(inst, token); err != nil {
			return err
		}
		if !inst.State().Has(fieldPending) {
			return nil
		}
		inst.DeleteAlarm()
		inst.State().Delete(fieldPending)
		return nil
	})
}

// Authenticate verifies a sign-in ceremony against the stored credential and
// records the visit.
func (a *Actor) Authenticate(ctx context.Context, id string, in AuthenticateInput) (Authenticated, error) {
	return actor.Call(ctx, a.host, id, func(_ context.Context, inst *actor.Instance) (Authenticated, error) {
		state := inst.State()
		var meta Metadata
		ok, err := state.Get(fieldMetadata, &meta)
		if err != nil {
			return Authenticated{}, err
		}
		if !ok {
			return Authenticated{}, apperrors.New(apperrors.CodeNotFound, "passkey not found")
		}
		if state.Has(fieldPending) {
			return Authenticated{}, apperrors.New(apperrors.CodePasskeyPending, "passkey registration is not finished")
		}
		if meta.App != in.App {
			return Authenticated{}, apperrors.New(apperrors.CodeAppMismatch, "passkey belongs to another app")
		}

		var cred ceremony.Credential
		if _, err := state.Get(fieldCredential, &cred); err != nil {
			return Authenticated{}, err
		}
		assertion, err := a.verifier.VerifyAuthentication(ceremony.AuthenticationInput{
			Ceremony:    in.Ceremony,
			Origin:      in.Origin,
			ChallengeID: in.ChallengeID,
			Credential:  cred,
		})
		if err != nil {
			return Authenticated{}, err
		}

		var stored *int64
		if state.Has(fieldCounter) {
			var counter int64
			if _, err := state.Get(fieldCounter, &counter); err != nil {
				return Authenticated{}, err
			}
			stored = &counter
		}
		next, err := nextCounter(stored, assertion.Counter)
		if err != nil {
			return Authenticated{}, err
		}

		var visitors []Visitor
		if _, err := state.Get(fieldVisitors, &visitors); err != nil {
			return Authenticated{}, err
		}
		visitor := in.Visitor
		visitor.At = inst.Now()

		if err := state.Save(fieldCounter, next); err != nil {
			return Authenticated{}, err
		}
		if err := state.Save(fieldVisitors, prependVisitor(visitors, visitor)); err != nil {
			return Authenticated{}, err
		}
		return Authenticated{UserID: meta.UserID, PasskeyID: meta.PasskeyID, App: meta.App}, nil
	})
}

// Data returns a projection of the passkey.
func (a *Actor) Data(ctx context.Context, id, token string, opts DataOptions) (Data, error) {
	return actor.Call(ctx, a.host, id, func(_ context.Context, inst *actor.Instance) (Data, error) {
		meta, err := occupied(inst, token)
		if err != nil {
			return Data{}, err
		}
		state := inst.State()
		out := Data{Metadata: meta, Pending: state.Has(fieldPending)}
		if state.Has(fieldCounter) {
			var counter int64
			if _, err := state.Get(fieldCounter, &counter); err != nil {
				return Data{}, err
			}
			out.Counter = &counter
		}
		if opts.Credential {
			var cred ceremony.Credential
			if _, err := state.Get(fieldCredential, &cred); err != nil {
				return Data{}, err
			}
			out.Credential = &cred
		}
		if opts.Visitors {
			if _, err := state.Get(fieldVisitors, &out.Visitors); err != nil {
				return Data{}, err
			}
		}
		return out, nil
	})
}

// Implode clears the passkey. Imploding an unoccupied passkey succeeds for
// any well-formed token.
func (a *Actor) Implode(ctx context.Context, id, token string) error {
	return a.host.Do(ctx, id, func(_ context.Context, inst *actor.Instance) error {
		if _, err := guard.Parse(token); err != nil {
			return err
		}
		if !inst.State().Has(fieldMetadata) {
			inst.DeleteAlarm()
			return nil
		}
		if _, err := occupied(inst, token); err != nil {
			return err
		}
		implode(inst)
		return nil
	})
}

// occupied checks token against the stored owner and returns the metadata.
func occupied(inst *actor.Instance, token string) (Metadata, error) {
	if _, err := guard.Parse(token); err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	ok, err := inst.State().Get(fieldMetadata, &meta)
	if err != nil {
		return Metadata{}, err
	}
	if !ok {
		return Metadata{}, apperrors.New(apperrors.CodeNotFound, "passkey not found")
	}
	if err := guard.CheckPasskey(token, meta.App, meta.UserID); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// nextCounter applies the replay policy. A reported zero marks the
// authenticator as counterless for good; otherwise the counter must grow,
// except on the first authentication.
func nextCounter(stored *int64, reported uint32) (int64, error) {
	switch {
	case stored == nil:
		if reported == 0 {
			return CounterUnsupported, nil
		}
		return int64(reported), nil
	case *stored == CounterUnsupported:
		return CounterUnsupported, nil
	case int64(reported) <= *stored:
		return 0, apperrors.New(apperrors.CodeAuthenticationFailed, "authenticator counter did not increase")
	default:
		return int64(reported), nil
	}
}

func prependVisitor(visitors []Visitor, v Visitor) []Visitor {
	out := make([]Visitor, 0, min(len(visitors)+1, MaxVisitors))
	out = append(out, v)
	for _, prev := range visitors {
		if len(out) == MaxVisitors {
			break
		}
		out = append(out, prev)
	}
	return out
}

func implode(inst *actor.Instance) {
	inst.DeleteAlarm()
	inst.State().Clear()
}

type behavior struct{}

func (behavior) Activate(ctx context.Context, inst *actor.Instance) error {
	return inst.State().Load(ctx, fieldMetadata, fieldCredential, fieldCounter, fieldVisitors, fieldPending)
}

func (behavior) Alarm(_ context.Context, inst *actor.Instance) error {
	if inst.State().Has(fieldPending) {
		implode(inst)
	}
	return nil
}
