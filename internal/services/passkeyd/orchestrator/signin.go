package orchestrator

import (
	"context"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/ceremony"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/claim"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/passkey"
	"go.opentelemetry.io/otel/attribute"
)

// SignInInput is a sign-in submission.
type SignInInput struct {
	Token   string
	Origin  string
	Visitor passkey.Visitor
}

// SignedIn identifies the authenticated user.
type SignedIn struct {
	UserID    string `json:"userId"`
	PasskeyID string `json:"passkeyId"`
}

// SignIn consumes the authentication challenge and verifies the ceremony.
// The challenge is consumed before verification, so a failed ceremony
// still burns it.
func (s *Service) SignIn(ctx context.Context, app string, in SignInInput) (_ SignedIn, err error) {
	ctx, span := s.startSpan(ctx, "SignIn", app)
	defer func() { endSpan(span, err) }()

	sub, err := parseCeremonySubmission(in.Token)
	if err != nil {
		return SignedIn{}, err
	}
	c, err := s.decodeClaim(app, sub.Token, claim.KindAuthentication)
	if err != nil {
		return SignedIn{}, err
	}
	if _, err := s.challenges.Finish(ctx, c.ID, sub.Code); err != nil {
		return SignedIn{}, err
	}

	credentialID, err := ceremony.CredentialID(sub.Ceremony)
	if err != nil {
		return SignedIn{}, err
	}
	auth, err := s.passkeys.Authenticate(ctx, passkey.ID(credentialID), passkey.AuthenticateInput{
		App:         app,
		Ceremony:    sub.Ceremony,
		Origin:      in.Origin,
		ChallengeID: c.ID,
		Visitor:     in.Visitor,
	})
	if err != nil {
		switch {
		case apperrors.HasCode(err, apperrors.CodeNotFound):
			return SignedIn{}, apperrors.Wrap(apperrors.CodeAuthenticationFailed, "unknown credential", err)
		case apperrors.HasCode(err, apperrors.CodeAppMismatch):
			return SignedIn{}, apperrors.Wrap(apperrors.CodeAuthenticationFailed, "credential belongs to another app", err)
		}
		return SignedIn{}, err
	}
	span.SetAttributes(attribute.String("passkeyd.user_id", auth.UserID))
	return SignedIn{UserID: auth.UserID, PasskeyID: auth.PasskeyID}, nil
}
