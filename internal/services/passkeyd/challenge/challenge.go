// Package challenge implements the challenge actor: a one-shot, self-expiring
// secret keyed by the id of the claim that announced it.
//
// A challenge is armed by Start and consumed by the first Finish, whether the
// submitted code matches or not. Its alarm clears it when it is never
// finished.
package challenge

import (
	"context"
	"crypto/subtle"
	"time"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/actor"
)

// Kind is the actor kind of challenges.
const Kind = "challenge"

const (
	fieldValid     = "valid"
	fieldCode      = "code"
	fieldValue     = "value"
	fieldExpiresAt = "expiresAt"
)

// StartInput arms a challenge.
type StartInput struct {
	TTL   time.Duration
	Code  string
	Value string
}

// Actor serves challenge instances.
type Actor struct {
	host *actor.Host
}

// New builds the challenge actor host. Kind and Behavior in cfg are set by New.
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

// Start arms the challenge id and returns its expiry. Starting an armed
// challenge replaces its code, value, and deadline.
func (a *Actor) Start(ctx context.Context, id string, in StartInput) (time.Time, error) {
	if in.TTL <= 0 {
		return time.Time{}, apperrors.Validation("ttl", "ttl must be positive")
	}
	return actor.Call(ctx, a.host, id, func(_ context.Context, inst *actor.Instance) (time.Time, error) {
		state := inst.State()
		expiresAt := inst.Now().Add(in.TTL).UTC()
		if err := state.Save(fieldValid, true); err != nil {
			return time.Time{}, err
		}
		if err := saveOptional(state, fieldCode, in.Code); err != nil {
			return time.Time{}, err
		}
		if err := saveOptional(state, fieldValue, in.Value); err != nil {
			return time.Time{}, err
		}
		if err := state.Save(fieldExpiresAt, expiresAt); err != nil {
			return time.Time{}, err
		}
		inst.SetAlarm(expiresAt)
		return expiresAt, nil
	})
}

// Finish consumes the challenge and returns its value. A code mismatch
// still consumes it.
func (a *Actor) Finish(ctx context.Context, id, code string) (string, error) {
	return actor.Call(ctx, a.host, id, func(_ context.Context, inst *actor.Instance) (string, error) {
		state := inst.State()
		var valid bool
		if _, err := state.Get(fieldValid, &valid); err != nil {
			return "", err
		}
		var expiresAt time.Time
		if _, err := state.Get(fieldExpiresAt, &expiresAt); err != nil {
			return "", err
		}
		if !valid || !inst.Now().Before(expiresAt) {
			expire(inst)
			return "", apperrors.New(apperrors.CodeChallengeExpired, "challenge expired")
		}

		var stored, value string
		if _, err := state.Get(fieldCode, &stored); err != nil {
			return "", err
		}
		if _, err := state.Get(fieldValue, &value); err != nil {
			return "", err
		}
		expire(inst)

		if stored != "" && subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
			return "", apperrors.New(apperrors.CodeCodeMismatch, "challenge code mismatch")
		}
		return value, nil
	})
}

// expire cancels the alarm and drops every field.
func expire(inst *actor.Instance) {
	inst.DeleteAlarm()
	if !inst.State().Empty() {
		inst.State().Clear()
	}
}

func saveOptional(state *actor.State, field, value string) error {
	if value == "" {
		state.Delete(field)
		return nil
	}
	return state.Save(field, value)
}

type behavior struct{}

func (behavior) Activate(ctx context.Context, inst *actor.Instance) error {
	return inst.State().Load(ctx, fieldValid, fieldCode, fieldValue, fieldExpiresAt)
}

func (behavior) Alarm(_ context.Context, inst *actor.Instance) error {
	expire(inst)
	return nil
}
