package claim

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
)

const submissionSeparator = "#"

// Submission is a claim token optionally carrying the client ceremony
// payload and a user-entered code, encoded as
// claim#<base64url ceremony JSON>#<base64url code>.
type Submission struct {
	Token    string
	Ceremony json.RawMessage
	Code     string
}

// ParseSubmission splits an opaque submission string.
func ParseSubmission(raw string) (Submission, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Submission{}, apperrors.Validation("token", "token is required")
	}
	parts := strings.Split(raw, submissionSeparator)
	if len(parts) > 3 {
		return Submission{}, apperrors.Validation("token", "token has too many segments")
	}
	sub := Submission{Token: parts[0]}
	if sub.Token == "" {
		return Submission{}, apperrors.Validation("token", "token claim is empty")
	}
	if len(parts) > 1 && parts[1] != "" {
		data, err := base64.RawURLEncoding.DecodeString(parts[1])
		if err != nil {
			return Submission{}, apperrors.Validation("token", "ceremony segment is not base64url")
		}
		if !json.Valid(data) {
			return Submission{}, apperrors.Validation("token", "ceremony segment is not JSON")
		}
		sub.Ceremony = data
	}
	if len(parts) > 2 && parts[2] != "" {
		data, err := base64.RawURLEncoding.DecodeString(parts[2])
		if err != nil {
			return Submission{}, apperrors.Validation("token", "code segment is not base64url")
		}
		sub.Code = string(data)
	}
	return sub, nil
}

// String re-encodes the submission, omitting trailing empty segments.
func (s Submission) String() string {
	var b strings.Builder
	b.WriteString(s.Token)
	if len(s.Ceremony) == 0 && s.Code == "" {
		return b.String()
	}
	b.WriteString(submissionSeparator)
	if len(s.Ceremony) > 0 {
		b.WriteString(base64.RawURLEncoding.EncodeToString(s.Ceremony))
	}
	if s.Code != "" {
		b.WriteString(submissionSeparator)
		b.WriteString(base64.RawURLEncoding.EncodeToString([]byte(s.Code)))
	}
	return b.String()
}
