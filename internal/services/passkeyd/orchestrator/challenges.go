package orchestrator

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
	"github.com/louisbranch/passkeyd/internal/platform/id"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/challenge"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/claim"
)

// Challenge TTL bounds.
const (
	MinChallengeTTL     = 10 * time.Second
	MaxChallengeTTL     = 10 * time.Minute
	DefaultChallengeTTL = 5 * time.Minute
)

// IssueInput describes a challenge to issue.
type IssueInput struct {
	Kind    string
	TTL     time.Duration
	Code    string
	Value   string
	Subject string
}

// Issued is a signed challenge claim.
type Issued struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueChallenge arms a challenge actor and signs a claim naming it.
func (s *Service) IssueChallenge(ctx context.Context, app string, in IssueInput) (_ Issued, err error) {
	ctx, span := s.startSpan(ctx, "IssueChallenge", app)
	defer func() { endSpan(span, err) }()

	switch in.Kind {
	case claim.KindRegistration, claim.KindAuthentication:
	default:
		return Issued{}, apperrors.Validation("kind", "kind must be registration or authentication")
	}
	return s.issue(ctx, app, in)
}

func (s *Service) issue(ctx context.Context, app string, in IssueInput) (Issued, error) {
	ttl := in.TTL
	if ttl == 0 {
		ttl = DefaultChallengeTTL
	}
	if ttl < MinChallengeTTL || ttl > MaxChallengeTTL {
		return Issued{}, apperrors.Validation("ttl", "ttl must be between 10s and 10m")
	}
	secrets, err := s.secrets(app)
	if err != nil {
		return Issued{}, err
	}
	challengeID, err := id.NewID()
	if err != nil {
		return Issued{}, err
	}
	expiresAt, err := s.challenges.Start(ctx, challengeID, challenge.StartInput{TTL: ttl, Code: in.Code, Value: in.Value})
	if err != nil {
		return Issued{}, err
	}
	token, err := claim.Sign(secrets.Claim, claim.Claim{
		ID:        challengeID,
		Subject:   in.Subject,
		Audience:  app,
		IssuedAt:  s.now(),
		ExpiresAt: expiresAt,
		Extra:     map[string]string{claim.ExtraKind: in.Kind},
	})
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: token, ExpiresAt: expiresAt.Truncate(time.Second)}, nil
}
