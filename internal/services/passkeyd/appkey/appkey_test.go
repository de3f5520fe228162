package appkey

import (
	"strings"
	"testing"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
)

func testSecrets() Secrets {
	return Secrets{
		Server: []byte("server-secret"),
		Client: []byte("client-secret"),
		Claim:  []byte("claim-secret"),
		Alias:  []byte("alias-secret"),
	}
}

func TestAuthenticate(t *testing.T) {
	ring, err := NewKeyring(map[string]Secrets{"app-a": testSecrets()})
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	s := testSecrets()

	tests := []struct {
		name  string
		key   string
		scope Scope
		code  apperrors.Code
	}{
		{name: "server", key: Derive(s.Server, ScopeServer, "app-a"), scope: ScopeServer},
		{name: "client", key: Derive(s.Client, ScopeClient, "app-a"), scope: ScopeClient},
		{name: "missing", key: "", code: apperrors.CodeAuthorizationMissing},
		{name: "no dot", key: "app-a", code: apperrors.CodeAuthorizationInvalid},
		{name: "unknown app", key: Derive(s.Server, ScopeServer, "app-b"), code: apperrors.CodeAuthorizationInvalid},
		{name: "client secret as server", key: Derive(s.Client, ScopeServer, "app-a"), code: apperrors.CodeAuthorizationInvalid},
		{name: "tampered", key: Derive(s.Server, ScopeServer, "app-a") + "x", code: apperrors.CodeAuthorizationInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ring.Authenticate(tt.key)
			if tt.code != "" {
				if apperrors.GetCode(err) != tt.code {
					t.Fatalf("err = %v, want %s", err, tt.code)
				}
				return
			}
			if err != nil {
				t.Fatalf("authenticate: %v", err)
			}
			if p.App != "app-a" || p.Scope != tt.scope {
				t.Fatalf("principal = %+v, want app-a/%s", p, tt.scope)
			}
		})
	}
}

func TestDeriveShape(t *testing.T) {
	key := Derive([]byte("s"), ScopeClient, "app-a")
	app, mac, ok := strings.Cut(key, ".")
	if !ok || app != "app-a" {
		t.Fatalf("key = %q", key)
	}
	if len(mac) != 43 || strings.ContainsAny(mac, "+/=") {
		t.Fatalf("mac = %q, want 43 base64url chars", mac)
	}
}

func TestNewKeyringRequiresAllSecrets(t *testing.T) {
	s := testSecrets()
	s.Alias = nil
	if _, err := NewKeyring(map[string]Secrets{"app-a": s}); err == nil {
		t.Fatal("expected error for missing alias secret")
	}
	if _, err := NewKeyring(map[string]Secrets{"App A": testSecrets()}); err == nil {
		t.Fatal("expected error for invalid app name")
	}
}

func TestParseSecretMap(t *testing.T) {
	got, err := ParseSecretMap(" a:one , b:two,")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if string(got["a"]) != "one" || string(got["b"]) != "two" || len(got) != 2 {
		t.Fatalf("map = %q", got)
	}
	for _, raw := range []string{"a", "a:", ":x", "a:x,a:y"} {
		if _, err := ParseSecretMap(raw); err == nil {
			t.Fatalf("ParseSecretMap(%q) expected error", raw)
		}
	}
}

func TestMergeSecrets(t *testing.T) {
	merged := MergeSecrets(
		map[string][]byte{"a": []byte("s")},
		map[string][]byte{"a": []byte("c")},
		map[string][]byte{"a": []byte("j")},
		map[string][]byte{"b": []byte("h")},
	)
	if string(merged["a"].Client) != "c" || merged["a"].Alias != nil {
		t.Fatalf("a = %+v", merged["a"])
	}
	if _, err := NewKeyring(merged); err == nil {
		t.Fatal("expected incomplete apps to fail validation")
	}
}
