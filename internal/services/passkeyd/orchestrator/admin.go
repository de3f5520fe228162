package orchestrator

import (
	"context"
	"strings"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/alias"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/guard"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/passkey"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/user"
)

// GetUser returns a projection of a user of app.
func (s *Service) GetUser(ctx context.Context, app, userID string, opts user.DataOptions) (_ user.Data, err error) {
	ctx, span := s.startSpan(ctx, "GetUser", app)
	defer func() { endSpan(span, err) }()
	return s.users.Data(ctx, userID, guard.User(app), opts)
}

// RenamePasskey renames a passkey linked to userID.
func (s *Service) RenamePasskey(ctx context.Context, app, userID, passkeyID, name string) (_ []user.PasskeyLink, err error) {
	ctx, span := s.startSpan(ctx, "RenamePasskey", app)
	defer func() { endSpan(span, err) }()
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.Validation("name", "name is required")
	}
	return s.users.RenamePasskey(ctx, userID, guard.User(app), passkeyID, name)
}

// RemovePasskey unlinks a passkey from userID and destroys it out of band.
func (s *Service) RemovePasskey(ctx context.Context, app, userID, passkeyID string) (_ []user.PasskeyLink, err error) {
	ctx, span := s.startSpan(ctx, "RemovePasskey", app)
	defer func() { endSpan(span, err) }()
	links, err := s.users.RemovePasskey(ctx, userID, guard.User(app), passkeyID)
	if err != nil {
		return nil, err
	}
	s.detach("implode-passkey", func(ctx context.Context) error {
		return s.passkeys.Implode(ctx, passkeyID, guard.Passkey(app, userID))
	})
	return links, nil
}

// GetPasskey returns a projection of a passkey owned by userID.
func (s *Service) GetPasskey(ctx context.Context, app, userID, passkeyID string, opts passkey.DataOptions) (_ passkey.Data, err error) {
	ctx, span := s.startSpan(ctx, "GetPasskey", app)
	defer func() { endSpan(span, err) }()
	if userID == "" {
		return passkey.Data{}, apperrors.Validation("userId", "user id is required")
	}
	return s.passkeys.Data(ctx, passkeyID, guard.Passkey(app, userID), opts)
}

// ResolveAlias returns the user id owning raw in app.
func (s *Service) ResolveAlias(ctx context.Context, app, raw string) (_ string, err error) {
	ctx, span := s.startSpan(ctx, "ResolveAlias", app)
	defer func() { endSpan(span, err) }()
	secrets, err := s.secrets(app)
	if err != nil {
		return "", err
	}
	normalized, err := alias.Normalize(raw)
	if err != nil {
		return "", err
	}
	return s.aliases.Resolve(ctx, app, alias.Hash(secrets.Alias, normalized))
}
