package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/claim"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/guard"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/mail"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/user"
)

// VerificationTTL bounds how long an emailed code stays valid.
const VerificationTTL = 10 * time.Minute

type verificationValue struct {
	UserID  string `json:"userId"`
	Address string `json:"address"`
}

// StartEmailVerification adds address to the user's recovery emails if
// needed and mails a one-time code. The returned claim must be submitted
// together with the code.
func (s *Service) StartEmailVerification(ctx context.Context, app, userID, address string) (_ Issued, err error) {
	ctx, span := s.startSpan(ctx, "StartEmailVerification", app)
	defer func() { endSpan(span, err) }()

	address = strings.TrimSpace(address)
	if address == "" || !strings.Contains(address, "@") {
		return Issued{}, apperrors.Validation("email", "email is invalid")
	}
	if _, err := s.users.AddEmail(ctx, userID, guard.User(app), address); err != nil {
		return Issued{}, err
	}

	code, err := verificationCode()
	if err != nil {
		return Issued{}, err
	}
	value, err := json.Marshal(verificationValue{UserID: userID, Address: address})
	if err != nil {
		return Issued{}, err
	}
	issued, err := s.issue(ctx, app, IssueInput{
		Kind:    claim.KindVerification,
		TTL:     VerificationTTL,
		Code:    code,
		Value:   string(value),
		Subject: userID,
	})
	if err != nil {
		return Issued{}, err
	}

	s.detach("send-verification-email", func(ctx context.Context) error {
		msg, err := mail.VerificationMessage(mail.Verification{
			Address: address,
			Code:    code,
			Minutes: int(VerificationTTL / time.Minute),
		})
		if err != nil {
			return err
		}
		return s.mailer.Send(ctx, msg)
	})
	return issued, nil
}

// FinishEmailVerification consumes the verification challenge and marks
// the address verified. code overrides a code carried in token.
func (s *Service) FinishEmailVerification(ctx context.Context, app, userID, token, code string) (_ user.Recovery, err error) {
	ctx, span := s.startSpan(ctx, "FinishEmailVerification", app)
	defer func() { endSpan(span, err) }()

	sub, err := claim.ParseSubmission(token)
	if err != nil {
		return user.Recovery{}, err
	}
	if code == "" {
		code = sub.Code
	}
	if code == "" {
		return user.Recovery{}, apperrors.Validation("code", "code is required")
	}
	c, err := s.decodeClaim(app, sub.Token, claim.KindVerification)
	if err != nil {
		return user.Recovery{}, err
	}
	if c.Subject != userID {
		return user.Recovery{}, apperrors.New(apperrors.CodeUserMismatch, "claim belongs to another user")
	}
	raw, err := s.challenges.Finish(ctx, c.ID, code)
	if err != nil {
		return user.Recovery{}, err
	}
	var value verificationValue
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return user.Recovery{}, fmt.Errorf("decode verification value: %w", err)
	}
	if value.UserID != userID {
		return user.Recovery{}, apperrors.New(apperrors.CodeUserMismatch, "claim belongs to another user")
	}
	return s.users.VerifyEmail(ctx, userID, guard.User(app), value.Address)
}

func verificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
