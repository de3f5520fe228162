package httpapi

import (
	"strings"
	"time"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/claim"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/orchestrator"
)

type issueChallengeRequest struct {
	Kind    string `json:"kind"`
	TTLMs   int64  `json:"ttlMs,omitempty"`
	Subject string `json:"subject,omitempty"`
}

func (r *issueChallengeRequest) validate() error {
	switch r.Kind {
	case claim.KindRegistration, claim.KindAuthentication:
	default:
		return apperrors.Validation("kind", "kind must be registration or authentication")
	}
	if r.TTLMs < 0 {
		return apperrors.Validation("ttlMs", "ttlMs must not be negative")
	}
	if r.TTLMs > orchestrator.MaxChallengeTTL.Milliseconds() {
		return apperrors.Validation("ttlMs", "ttlMs exceeds the maximum challenge lifetime")
	}
	return nil
}

func (r *issueChallengeRequest) ttl() time.Duration {
	return time.Duration(r.TTLMs) * time.Millisecond
}

type registrationRequest struct {
	Token   string   `json:"token"`
	Aliases []string `json:"aliases,omitempty"`
	Email   string   `json:"email,omitempty"`
	Origin  string   `json:"origin,omitempty"`
	Name    string   `json:"name,omitempty"`
}

func (r *registrationRequest) validate() error {
	if strings.TrimSpace(r.Token) == "" {
		return apperrors.Validation("token", "token is required")
	}
	if len(r.Aliases) > 8 {
		return apperrors.Validation("aliases", "at most 8 aliases are allowed")
	}
	if r.Email != "" && !strings.Contains(r.Email, "@") {
		return apperrors.Validation("email", "email is invalid")
	}
	if len(r.Name) > 64 {
		return apperrors.Validation("name", "name is too long")
	}
	return nil
}

type signInRequest struct {
	Token  string `json:"token"`
	Origin string `json:"origin,omitempty"`
}

func (r *signInRequest) validate() error {
	if strings.TrimSpace(r.Token) == "" {
		return apperrors.Validation("token", "token is required")
	}
	return nil
}

type addPasskeyRequest struct {
	Token  string `json:"token"`
	Origin string `json:"origin,omitempty"`
	Name   string `json:"name,omitempty"`
}

func (r *addPasskeyRequest) validate() error {
	if strings.TrimSpace(r.Token) == "" {
		return apperrors.Validation("token", "token is required")
	}
	if len(r.Name) > 64 {
		return apperrors.Validation("name", "name is too long")
	}
	return nil
}

type renamePasskeyRequest struct {
	Name string `json:"name"`
}

func (r *renamePasskeyRequest) validate() error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return apperrors.Validation("name", "name is required")
	}
	if len(name) > 64 {
		return apperrors.Validation("name", "name is too long")
	}
	return nil
}

type startEmailRequest struct {
	Email string `json:"email"`
}

func (r *startEmailRequest) validate() error {
	if !strings.Contains(r.Email, "@") {
		return apperrors.Validation("email", "email is invalid")
	}
	return nil
}

type finishEmailRequest struct {
	Token string `json:"token"`
	Code  string `json:"code,omitempty"`
}

func (r *finishEmailRequest) validate() error {
	if strings.TrimSpace(r.Token) == "" {
		return apperrors.Validation("token", "token is required")
	}
	return nil
}
