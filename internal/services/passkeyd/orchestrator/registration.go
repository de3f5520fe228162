package orchestrator

import (
	"context"
	"strings"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
	"github.com/louisbranch/passkeyd/internal/platform/id"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/alias"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/ceremony"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/claim"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/guard"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/passkey"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/user"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RegisterUserInput is a new-user registration submission.
type RegisterUserInput struct {
	// Token is a submission string carrying the claim and ceremony.
	Token   string
	Aliases []string
	Email   string
	Origin  string
	Name    string
	Visitor passkey.Visitor
}

// Registered identifies a new user and passkey.
type Registered struct {
	UserID    string `json:"userId"`
	PasskeyID string `json:"passkeyId"`
}

// RegisterUser creates a user with one passkey. The passkey credential is
// claimed first; alias and user conflicts after that abort the flow and
// leave the pending passkey to expire on its own.
func (s *Service) RegisterUser(ctx context.Context, app string, in RegisterUserInput) (_ Registered, err error) {
	ctx, span := s.startSpan(ctx, "RegisterUser", app)
	defer func() { endSpan(span, err) }()

	sub, err := parseCeremonySubmission(in.Token)
	if err != nil {
		return Registered{}, err
	}
	c, err := s.decodeClaim(app, sub.Token, claim.KindRegistration)
	if err != nil {
		return Registered{}, err
	}
	secrets, err := s.secrets(app)
	if err != nil {
		return Registered{}, err
	}
	normalized, hashes, err := normalizeAliases(secrets.Alias, in.Aliases)
	if err != nil {
		return Registered{}, err
	}

	userID, err := id.NewID()
	if err != nil {
		return Registered{}, err
	}
	credentialID, err := ceremony.CredentialID(sub.Ceremony)
	if err != nil {
		return Registered{}, err
	}
	passkeyID := passkey.ID(credentialID)
	span.SetAttributes(attribute.String("passkeyd.user_id", userID), attribute.String("passkeyd.passkey_id", passkeyID))

	meta, err := s.passkeys.StartRegister(ctx, passkeyID, passkey.RegisterInput{
		UserID:      userID,
		App:         app,
		Ceremony:    sub.Ceremony,
		Origin:      in.Origin,
		ChallengeID: c.ID,
		Visitor:     in.Visitor,
	})
	if err != nil {
		return Registered{}, err
	}

	if err := s.aliases.Reserve(ctx, app, userID, hashes); err != nil {
		return Registered{}, err
	}

	_, err = s.users.Create(ctx, userID, user.CreateInput{
		App:     app,
		Aliases: normalized,
		Email:   strings.TrimSpace(in.Email),
		Passkey: &user.PasskeyLink{
			PasskeyID:    passkeyID,
			CredentialID: meta.CredentialID,
			UserID:       userID,
			Name:         in.Name,
		},
	})
	if err != nil {
		return Registered{}, err
	}

	s.finishRegistration(app, userID, passkeyID)
	s.detach("populate-alias-cache", func(ctx context.Context) error {
		return s.aliases.Populate(ctx, app, userID, hashes)
	})
	s.logger.Info("user registered", zap.String("app", app), zap.String("user_id", userID))
	return Registered{UserID: userID, PasskeyID: passkeyID}, nil
}

// AddPasskeyInput links another passkey to an existing user.
type AddPasskeyInput struct {
	Token   string
	Origin  string
	Name    string
	Visitor passkey.Visitor
}

// AddPasskey registers a new passkey for an existing user and links it.
func (s *Service) AddPasskey(ctx context.Context, app, userID string, in AddPasskeyInput) (_ []user.PasskeyLink, err error) {
	ctx, span := s.startSpan(ctx, "AddPasskey", app)
	defer func() { endSpan(span, err) }()

	sub, err := parseCeremonySubmission(in.Token)
	if err != nil {
		return nil, err
	}
	c, err := s.decodeClaim(app, sub.Token, claim.KindRegistration)
	if err != nil {
		return nil, err
	}
	userToken := guard.User(app)
	if _, err := s.users.Data(ctx, userID, userToken, user.DataOptions{}); err != nil {
		return nil, err
	}
	credentialID, err := ceremony.CredentialID(sub.Ceremony)
	if err != nil {
		return nil, err
	}
	passkeyID := passkey.ID(credentialID)

	meta, err := s.passkeys.StartRegister(ctx, passkeyID, passkey.RegisterInput{
		UserID:      userID,
		App:         app,
		Ceremony:    sub.Ceremony,
		Origin:      in.Origin,
		ChallengeID: c.ID,
		Visitor:     in.Visitor,
	})
	if err != nil {
		return nil, err
	}
	links, err := s.users.LinkPasskey(ctx, userID, userToken, user.PasskeyLink{
		PasskeyID:    passkeyID,
		CredentialID: meta.CredentialID,
		Name:         in.Name,
	})
	if err != nil {
		return nil, err
	}
	s.finishRegistration(app, userID, passkeyID)
	return links, nil
}

func (s *Service) finishRegistration(app, userID, passkeyID string) {
	s.detach("finish-register", func(ctx context.Context) error {
		return s.passkeys.FinishRegister(ctx, passkeyID, guard.Passkey(app, userID))
	})
}

func parseCeremonySubmission(raw string) (claim.Submission, error) {
	sub, err := claim.ParseSubmission(raw)
	if err != nil {
		return claim.Submission{}, err
	}
	if len(sub.Ceremony) == 0 {
		return claim.Submission{}, apperrors.Validation("token", "ceremony payload is required")
	}
	return sub, nil
}

func normalizeAliases(secret []byte, aliases []string) ([]string, []string, error) {
	normalized := make([]string, 0, len(aliases))
	for _, raw := range aliases {
		n, err := alias.Normalize(raw)
		if err != nil {
			return nil, nil, err
		}
		normalized = append(normalized, n)
	}
	hashes, err := alias.HashAll(secret, normalized)
	if err != nil {
		return nil, nil, err
	}
	return normalized, hashes, nil
}
