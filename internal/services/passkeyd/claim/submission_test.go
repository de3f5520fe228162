package claim

import (
	"encoding/base64"
	"testing"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
)

func TestParseSubmission(t *testing.T) {
	ceremony := base64.RawURLEncoding.EncodeToString([]byte(`{"id":"cred-1"}`))
	code := base64.RawURLEncoding.EncodeToString([]byte("123456"))

	tests := []struct {
		name         string
		raw          string
		wantToken    string
		wantCeremony string
		wantCode     string
	}{
		{name: "claim only", raw: "a.b.c", wantToken: "a.b.c"},
		{name: "with ceremony", raw: "a.b.c#" + ceremony, wantToken: "a.b.c", wantCeremony: `{"id":"cred-1"}`},
		{name: "with code", raw: "a.b.c##" + code, wantToken: "a.b.c", wantCode: "123456"},
		{name: "with both", raw: "a.b.c#" + ceremony + "#" + code, wantToken: "a.b.c", wantCeremony: `{"id":"cred-1"}`, wantCode: "123456"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := ParseSubmission(tt.raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if sub.Token != tt.wantToken {
				t.Fatalf("token = %q, want %q", sub.Token, tt.wantToken)
			}
			if string(sub.Ceremony) != tt.wantCeremony {
				t.Fatalf("ceremony = %q, want %q", sub.Ceremony, tt.wantCeremony)
			}
			if sub.Code != tt.wantCode {
				t.Fatalf("code = %q, want %q", sub.Code, tt.wantCode)
			}
			if got := sub.String(); got != tt.raw {
				t.Fatalf("string = %q, want %q", got, tt.raw)
			}
		})
	}
}

func TestParseSubmissionRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"#abc",
		"a.b.c#!!!",
		"a.b.c#" + base64.RawURLEncoding.EncodeToString([]byte("not json")),
		"a#b#c#d",
	} {
		_, err := ParseSubmission(raw)
		if code := apperrors.GetCode(err); code != apperrors.CodeValidationFailed {
			t.Fatalf("ParseSubmission(%q) code = %s, want %s", raw, code, apperrors.CodeValidationFailed)
		}
	}
}
