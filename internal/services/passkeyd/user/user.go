// Package user implements the user actor: one instance per user id holding
// the owning app, aliases, recovery emails, and linked passkeys.
package user

import (
	"context"
	"slices"
	"strings"
	"time"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/actor"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/guard"
)

// Kind is the actor kind of users.
const Kind = "user"

const (
	fieldMetadata = "metadata"
	fieldRecovery = "recovery"
	fieldPasskeys = "passkeys"
)

// Metadata is the immutable identity of a user.
type Metadata struct {
	App       string    `json:"app"`
	Aliases   []string  `json:"aliases"`
	CreatedAt time.Time `json:"createdAt"`
}

// Email is a recovery address.
type Email struct {
	Address  string `json:"address"`
	Verified bool   `json:"verified"`
	Primary  bool   `json:"primary"`
}

// Recovery holds recovery contacts.
type Recovery struct {
	Emails []Email `json:"emails"`
}

// PasskeyLink references a passkey owned by the user.
type PasskeyLink struct {
	PasskeyID    string `json:"passkeyId"`
	CredentialID string `json:"credentialId"`
	UserID       string `json:"userId"`
	Name         string `json:"name"`
}

// CreateInput initializes a user.
type CreateInput struct {
	App     string
	Aliases []string
	Email   string
	Passkey *PasskeyLink
}

// DataOptions selects optional parts of a projection.
type DataOptions struct {
	Recovery bool
	Passkeys bool
}

// Data is a read projection of a user.
type Data struct {
	ID       string        `json:"id"`
	Metadata Metadata      `json:"metadata"`
	Recovery *Recovery     `json:"recovery,omitempty"`
	Passkeys []PasskeyLink `json:"passkeys,omitempty"`
}

// Actor serves user instances.
type Actor struct {
	host *actor.Host
}

// New builds the user actor host. Kind and Behavior in cfg are set by New.
func New(cfg actor.Config) (*Actor, error) {
	cfg.Kind = Kind
	cfg.Behavior = behavior{}
	host, err := actor.NewHost(cfg)
	if err != nil {
		return nil, err
	}
	return &Actor{host: host}, nil
}

// Host returns the underlying actor host.
func (a *Actor) Host() *actor.Host {
	return a.host
}

// Create initializes the user id. It succeeds once per id.
func (a *Actor) Create(ctx context.Context, id string, in CreateInput) (Metadata, error) {
	if strings.TrimSpace(in.App) == "" {
		return Metadata{}, apperrors.Validation("app", "app is required")
	}
	return actor.Call(ctx, a.host, id, func(_ context.Context, inst *actor.Instance) (Metadata, error) {
		state := inst.State()
		if state.Has(fieldMetadata) {
			return Metadata{}, apperrors.New(apperrors.CodeUserExists, "user already exists")
		}
		meta := Metadata{
			App:       in.App,
			Aliases:   append([]string{}, in.Aliases...),
			CreatedAt: inst.Now(),
		}
		recovery := Recovery{Emails: []Email{}}
		if in.Email != "" {
			recovery.Emails = append(recovery.Emails, Email{Address: in.Email, Primary: true})
		}
		passkeys := []PasskeyLink{}
		if in.Passkey != nil {
			link := *in.Passkey
			link.UserID = id
			passkeys = append(passkeys, link)
		}
		if err := state.Save(fieldMetadata, meta); err != nil {
			return Metadata{}, err
		}
		if err := state.Save(fieldRecovery, recovery); err != nil {
			return Metadata{}, err
		}
		if err := state.Save(fieldPasskeys, passkeys); err != nil {
			return Metadata{}, err
		}
		return meta, nil
	})
}

// LinkPasskey adds link, replacing an entry with the same passkey id.
func (a *Actor) LinkPasskey(ctx context.Context, id, token string, link PasskeyLink) ([]PasskeyLink, error) {
	if link.PasskeyID == "" {
		return nil, apperrors.Validation("passkeyId", "passkey id is required")
	}
	return a.updatePasskeys(ctx, id, token, func(passkeys []PasskeyLink) ([]PasskeyLink, error) {
		link.UserID = id
		if i := indexPasskey(passkeys, link.PasskeyID); i >= 0 {
			passkeys[i] = link
			return passkeys, nil
		}
		return append(passkeys, link), nil
	})
}

// RenamePasskey renames a linked passkey.
func (a *Actor) RenamePasskey(ctx context.Context, id, token, passkeyID, name string) ([]PasskeyLink, error) {
	return a.updatePasskeys(ctx, id, token, func(passkeys []PasskeyLink) ([]PasskeyLink, error) {
		i := indexPasskey(passkeys, passkeyID)
		if i < 0 {
			return nil, apperrors.New(apperrors.CodePasskeyNotFound, "passkey not linked to user")
		}
		passkeys[i].Name = name
		return passkeys, nil
	})
}

// RemovePasskey unlinks a passkey.
func (a *Actor) RemovePasskey(ctx context.Context, id, token, passkeyID string) ([]PasskeyLink, error) {
	return a.updatePasskeys(ctx, id, token, func(passkeys []PasskeyLink) ([]PasskeyLink, error) {
		i := indexPasskey(passkeys, passkeyID)
		if i < 0 {
			return nil, apperrors.New(apperrors.CodePasskeyNotFound, "passkey not linked to user")
		}
		return slices.Delete(passkeys, i, i+1), nil
	})
}

// AddEmail adds an unverified recovery address. Adding a known address is a
// no-op.
func (a *Actor) AddEmail(ctx context.Context, id, token, address string) (Recovery, error) {
	if strings.TrimSpace(address) == "" {
		return Recovery{}, apperrors.Validation("email", "email is required")
	}
	return a.updateRecovery(ctx, id, token, func(r Recovery) (Recovery, error) {
		if indexEmail(r.Emails, address) >= 0 {
			return r, nil
		}
		r.Emails = append(r.Emails, Email{Address: address, Primary: len(r.Emails) == 0})
		return r, nil
	})
}

// VerifyEmail marks a recovery address as verified.
func (a *Actor) VerifyEmail(ctx context.Context, id, token, address string) (Recovery, error) {
	return a.updateRecovery(ctx, id, token, func(r Recovery) (Recovery, error) {
		i := indexEmail(r.Emails, address)
		if i < 0 {
			return Recovery{}, apperrors.New(apperrors.CodeEmailNotFound, "email not found")
		}
		r.Emails[i].Verified = true
		return r, nil
	})
}

// Data returns a projection of the user.
func (a *Actor) Data(ctx context.Context, id, token string, opts DataOptions) (Data, error) {
	return actor.Call(ctx, a.host, id, func(_ context.Context, inst *actor.Instance) (Data, error) {
		meta, err := occupied(inst, token)
		if err != nil {
			return Data{}, err
		}
		out := Data{ID: id, Metadata: meta}
		if opts.Recovery {
			var recovery Recovery
			if _, err := inst.State().Get(fieldRecovery, &recovery); err != nil {
				return Data{}, err
			}
			out.Recovery = &recovery
		}
		if opts.Passkeys {
			out.Passkeys = []PasskeyLink{}
			if _, err := inst.State().Get(fieldPasskeys, &out.Passkeys); err != nil {
				return Data{}, err
			}
		}
		return out, nil
	})
}

func (a *Actor) updatePasskeys(ctx context.Context, id, token string, update func([]PasskeyLink) ([]PasskeyLink, error)) ([]PasskeyLink, error) {
	return actor.Call(ctx, a.host, id, func(_ context.Context, inst *actor.Instance) ([]PasskeyLink, error) {
		if _, err := occupied(inst, token); err != nil {
			return nil, err
		}
		var passkeys []PasskeyLink
		if _, err := inst.State().Get(fieldPasskeys, &passkeys); err != nil {
			return nil, err
		}
		updated, err := update(passkeys)
		if err != nil {
			return nil, err
		}
		if updated == nil {
			updated = []PasskeyLink{}
		}
		if err := inst.State().Save(fieldPasskeys, updated); err != nil {
			return nil, err
		}
		return updated, nil
	})
}

func (a *Actor) updateRecovery(ctx context.Context, id, token string, update func(Recovery) (Recovery, error)) (Recovery, error) {
	return actor.Call(ctx, a.host, id, func(_ context.Context, inst *actor.Instance) (Recovery, error) {
		if _, err := occupied(inst, token); err != nil {
			return Recovery{}, err
		}
		var recovery Recovery
		if _, err := inst.State().Get(fieldRecovery, &recovery); err != nil {
			return Recovery{}, err
		}
		updated, err := update(recovery)
		if err != nil {
			return Recovery{}, err
		}
		if err := inst.State().Save(fieldRecovery, updated); err != nil {
			return Recovery{}, err
		}
		return updated, nil
	})
}

// occupied checks token against the stored app and returns the metadata.
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
		return Metadata{}, apperrors.New(apperrors.CodeNotFound, "user not found")
	}
	if err := guard.CheckUser(token, meta.App); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

func indexPasskey(passkeys []PasskeyLink, passkeyID string) int {
	return slices.IndexFunc(passkeys, func(p PasskeyLink) bool { return p.PasskeyID == passkeyID })
}

func indexEmail(emails []Email, address string) int {
	return slices.IndexFunc(emails, func(e Email) bool { return strings.EqualFold(e.Address, address) })
}

type behavior struct{}

func (behavior) Activate(ctx context.Context, inst *actor.Instance) error {
	return inst.State().Load(ctx, fieldMetadata, fieldRecovery, fieldPasskeys)
}

// Alarm is unused; users never arm alarms.
func (behavior) Alarm(context.Context, *actor.Instance) error {
	return nil
}
