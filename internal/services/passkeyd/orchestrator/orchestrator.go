// Package orchestrator sequences actor calls into the registration, sign-in,
// and administration flows. Actors never call each other; every cross-actor
// ordering decision lives here.
//
// Failure policy: the first failing step aborts the flow with its error and
// nothing is retried. Later failures after a passkey reservation are
// compensated by the reservation's own expiry timer.
package orchestrator

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/alias"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/appkey"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/background"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/challenge"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/claim"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/mail"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/passkey"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/user"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/louisbranch/passkeyd/internal/services/passkeyd/orchestrator"

// Config wires the collaborators of a Service.
type Config struct {
	Keyring    *appkey.Keyring
	Challenges *challenge.Actor
	Passkeys   *passkey.Actor
	Users      *user.Actor
	Aliases    *alias.Resolver
	Mailer     mail.Sender
	Background *background.Group
	Now        func() time.Time
	Logger     *zap.Logger
	Tracer     trace.Tracer
}

// Service runs the flows.
type Service struct {
	keyring    *appkey.Keyring
	challenges *challenge.Actor
	passkeys   *passkey.Actor
	users      *user.Actor
	aliases    *alias.Resolver
	mailer     mail.Sender
	background *background.Group
	now        func() time.Time
	logger     *zap.Logger
	tracer     trace.Tracer
}

// New validates cfg and builds a Service.
func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Keyring == nil:
		return nil, errors.New("keyring is required")
	case cfg.Challenges == nil:
		return nil, errors.New("challenge actor is required")
	case cfg.Passkeys == nil:
		return nil, errors.New("passkey actor is required")
	case cfg.Users == nil:
		return nil, errors.New("user actor is required")
	case cfg.Aliases == nil:
		return nil, errors.New("alias resolver is required")
	case cfg.Background == nil:
		return nil, errors.New("background group is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mailer := cfg.Mailer
	if mailer == nil {
		mailer = mail.NewLogSender(logger)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Service{
		keyring:    cfg.Keyring,
		challenges: cfg.Challenges,
		passkeys:   cfg.Passkeys,
		users:      cfg.Users,
		aliases:    cfg.Aliases,
		mailer:     mailer,
		background: cfg.Background,
		now:        now,
		logger:     logger,
		tracer:     tracer,
	}, nil
}

func (s *Service) secrets(app string) (appkey.Secrets, error) {
	secrets, ok := s.keyring.Secrets(app)
	if !ok {
		return appkey.Secrets{}, apperrors.New(apperrors.CodeAuthorizationInvalid, "unknown app")
	}
	return secrets, nil
}

// decodeClaim verifies token for app and requires the given kind.
func (s *Service) decodeClaim(app, token, kind string) (claim.Claim, error) {
	secrets, err := s.secrets(app)
	if err != nil {
		return claim.Claim{}, err
	}
	c, err := claim.Decode(secrets.Claim, token, app, s.now())
	if err != nil {
		return claim.Claim{}, err
	}
	if c.Kind() != kind {
		return claim.Claim{}, apperrors.New(apperrors.CodeClaimInvalid, "claim kind mismatch")
	}
	return c, nil
}

// detach schedules follow-up work outside the request path.
func (s *Service) detach(name string, fn func(ctx context.Context) error) {
	if err := s.background.Go(name, fn); err != nil {
		s.logger.Warn("background task not scheduled", zap.String("task", name), zap.Error(err))
	}
}

func (s *Service) startSpan(ctx context.Context, name, app string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "passkeyd."+name, trace.WithAttributes(attribute.String("passkeyd.app", app)))
}

// endSpan records err, if any, and ends span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.GetCode(err)))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
