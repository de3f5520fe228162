// Package appkey derives and checks the bearer keys apps use to call the
// service. A key is "<app>.<base64url(HMAC-SHA256(secret, scope+":"+app))>".
package appkey

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"regexp"
	"sort"
	"strings"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
)

// Scope distinguishes server keys from client keys.
type Scope string

const (
	ScopeServer Scope = "server"
	ScopeClient Scope = "client"
)

var appNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// ValidateAppName reports whether app is a usable app name.
func ValidateAppName(app string) error {
	if !appNamePattern.MatchString(app) {
		return fmt.Errorf("invalid app name %q", app)
	}
	return nil
}

// Secrets are the per-app secrets.
type Secrets struct {
	Server []byte
	Client []byte
	Claim  []byte
	Alias  []byte
}

func (s Secrets) scoped(scope Scope) []byte {
	if scope == ScopeServer {
		return s.Server
	}
	return s.Client
}

// Derive returns the key for app under scope.
func Derive(secret []byte, scope Scope, app string) string {
	return app + "." + sign(secret, scope, app)
}

func sign(secret []byte, scope Scope, app string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(string(scope) + ":" + app))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Principal is an authenticated caller.
type Principal struct {
	App   string
	Scope Scope
}

// Keyring holds the secrets of every configured app.
type Keyring struct {
	apps map[string]Secrets
}

// NewKeyring validates apps. Every app needs all four secrets.
func NewKeyring(apps map[string]Secrets) (*Keyring, error) {
	out := make(map[string]Secrets, len(apps))
	for app, s := range apps {
		if err := ValidateAppName(app); err != nil {
			return nil, err
		}
		switch {
		case len(s.Server) == 0:
			return nil, fmt.Errorf("app %s: server secret is required", app)
		case len(s.Client) == 0:
			return nil, fmt.Errorf("app %s: client secret is required", app)
		case len(s.Claim) == 0:
			return nil, fmt.Errorf("app %s: claim secret is required", app)
		case len(s.Alias) == 0:
			return nil, fmt.Errorf("app %s: alias secret is required", app)
		}
		out[app] = s
	}
	return &Keyring{apps: out}, nil
}

// Apps returns the configured app names, sorted.
func (k *Keyring) Apps() []string {
	apps := make([]string, 0, len(k.apps))
	for app := range k.apps {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return apps
}

// Secrets returns the secrets of app.
func (k *Keyring) Secrets(app string) (Secrets, bool) {
	s, ok := k.apps[app]
	return s, ok
}

// Authenticate resolves a bearer key. Server keys are tried first so a
// server key is never mistaken for a client key.
func (k *Keyring) Authenticate(key string) (Principal, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Principal{}, apperrors.New(apperrors.CodeAuthorizationMissing, "api key is required")
	}
	app, mac, ok := strings.Cut(key, ".")
	if !ok || app == "" || mac == "" {
		return Principal{}, apperrors.New(apperrors.CodeAuthorizationInvalid, "api key is malformed")
	}
	secrets, ok := k.apps[app]
	if !ok {
		return Principal{}, apperrors.New(apperrors.CodeAuthorizationInvalid, "api key is invalid")
	}
	for _, scope := range []Scope{ScopeServer, ScopeClient} {
		want := sign(secrets.scoped(scope), scope, app)
		if hmac.Equal([]byte(mac), []byte(want)) {
			return Principal{App: app, Scope: scope}, nil
		}
	}
	return Principal{}, apperrors.New(apperrors.CodeAuthorizationInvalid, "api key is invalid")
}

// ParseSecretMap parses "app:secret,app:secret".
func ParseSecretMap(raw string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		app, secret, ok := strings.Cut(entry, ":")
		app = strings.TrimSpace(app)
		secret = strings.TrimSpace(secret)
		if !ok || app == "" || secret == "" {
			return nil, fmt.Errorf("malformed secret entry for %q", app)
		}
		if _, dup := out[app]; dup {
			return nil, fmt.Errorf("duplicate secret for app %s", app)
		}
		out[app] = []byte(secret)
	}
	return out, nil
}

// MergeSecrets combines the per-kind maps into one Secrets per app.
func MergeSecrets(server, client, claim, alias map[string][]byte) map[string]Secrets {
	out := make(map[string]Secrets)
	touch := func(m map[string][]byte, set func(*Secrets, []byte)) {
		for app, secret := range m {
			s := out[app]
			set(&s, secret)
			out[app] = s
		}
	}
	touch(server, func(s *Secrets, b []byte) { s.Server = b })
	touch(client, func(s *Secrets, b []byte) { s.Client = b })
	touch(claim, func(s *Secrets, b []byte) { s.Claim = b })
	touch(alias, func(s *Secrets, b []byte) { s.Alias = b })
	return out
}
