// Package hmackey generates per-app secrets for passkeyd and derives the
// bearer keys apps present to it.
package hmackey

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/louisbranch/passkeyd/internal/services/passkeyd/appkey"
)

// Config holds configuration for secret generation or key derivation.
type Config struct {
	Bytes int
	App   string
	// Secret switches to derive mode: the key for Scope is derived from it.
	Secret string
	Scope  string
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Bytes: 32, Scope: string(appkey.ScopeServer)}
	fs.IntVar(&cfg.Bytes, "bytes", cfg.Bytes, "number of random bytes per secret (default: 32)")
	fs.StringVar(&cfg.App, "app", cfg.App, "app name the secrets belong to")
	fs.StringVar(&cfg.Secret, "secret", cfg.Secret, "existing secret to derive a key from instead of generating")
	fs.StringVar(&cfg.Scope, "scope", cfg.Scope, "key scope when deriving: server or client")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run writes either a fresh secret set with its derived keys or, when
// cfg.Secret is set, the single derived key.
func Run(cfg Config, out io.Writer, reader io.Reader) error {
	if out == nil {
		return errors.New("output is required")
	}
	app := strings.TrimSpace(cfg.App)
	if err := appkey.ValidateAppName(app); err != nil {
		return err
	}
	if cfg.Secret != "" {
		scope := appkey.Scope(strings.TrimSpace(cfg.Scope))
		if scope != appkey.ScopeServer && scope != appkey.ScopeClient {
			return fmt.Errorf("scope must be %s or %s", appkey.ScopeServer, appkey.ScopeClient)
		}
		_, err := fmt.Fprintln(out, appkey.Derive([]byte(cfg.Secret), scope, app))
		return err
	}

	if cfg.Bytes <= 0 {
		return errors.New("bytes must be greater than zero")
	}
	if reader == nil {
		reader = rand.Reader
	}
	secrets := make(map[string]string, 4)
	for _, kind := range []string{"SERVER", "CLIENT", "CLAIM", "ALIAS"} {
		buf := make([]byte, cfg.Bytes)
		if _, err := io.ReadFull(reader, buf); err != nil {
			return fmt.Errorf("generate random bytes: %w", err)
		}
		secrets[kind] = hex.EncodeToString(buf)
		if _, err := fmt.Fprintf(out, "PASSKEYD_%s_SECRETS=%s:%s\n", kind, app, secrets[kind]); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(out, "# server key: %s\n# client key: %s\n",
		appkey.Derive([]byte(secrets["SERVER"]), appkey.ScopeServer, app),
		appkey.Derive([]byte(secrets["CLIENT"]), appkey.ScopeClient, app))
	return err
}
