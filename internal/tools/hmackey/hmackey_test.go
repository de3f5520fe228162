package hmackey

import (
	"bytes"
	"flag"
	"fmt"
	"strings"
	"testing"

	"github.com/louisbranch/passkeyd/internal/services/passkeyd/appkey"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("hmackey", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Bytes != 32 {
		t.Fatalf("expected default bytes 32, got %d", cfg.Bytes)
	}
	if cfg.Scope != "server" {
		t.Fatalf("expected default scope server, got %q", cfg.Scope)
	}
}

func TestParseConfigOverride(t *testing.T) {
	fs := flag.NewFlagSet("hmackey", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-bytes", "16", "-app", "shop", "-scope", "client"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Bytes != 16 || cfg.App != "shop" || cfg.Scope != "client" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestRunRejectsInvalidBytes(t *testing.T) {
	if err := Run(Config{Bytes: 0, App: "shop"}, &bytes.Buffer{}, bytes.NewReader(nil)); err == nil {
		t.Fatal("expected error for non-positive bytes")
	}
}

func TestRunRejectsInvalidApp(t *testing.T) {
	for _, app := range []string{"", "Shop", "-shop"} {
		if err := Run(Config{Bytes: 4, App: app}, &bytes.Buffer{}, nil); err == nil {
			t.Fatalf("expected error for app %q", app)
		}
	}
}

func TestRunWritesSecretSet(t *testing.T) {
	buf := &bytes.Buffer{}
	reader := bytes.NewReader([]byte{
		0x01, 0x02, 0x03, 0x04,
		0x05, 0x06, 0x07, 0x08,
		0x09, 0x0a, 0x0b, 0x0c,
		0x0d, 0x0e, 0x0f, 0x10,
	})
	if err := Run(Config{Bytes: 4, App: "shop"}, buf, reader); err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"PASSKEYD_SERVER_SECRETS=shop:01020304",
		"PASSKEYD_CLIENT_SECRETS=shop:05060708",
		"PASSKEYD_CLAIM_SECRETS=shop:090a0b0c",
		"PASSKEYD_ALIAS_SECRETS=shop:0d0e0f10",
		"# server key: " + appkey.Derive([]byte("01020304"), appkey.ScopeServer, "shop"),
		"# client key: " + appkey.Derive([]byte("05060708"), appkey.ScopeClient, "shop"),
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestRunDerivesKeyAcceptedByKeyring(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := Run(Config{App: "shop", Secret: "client-secret", Scope: "client"}, buf, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	ring, err := appkey.NewKeyring(map[string]appkey.Secrets{"shop": {
		Server: []byte("server-secret"),
		Client: []byte("client-secret"),
		Claim:  []byte("claim-secret"),
		Alias:  []byte("alias-secret"),
	}})
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	principal, err := ring.Authenticate(strings.TrimSpace(buf.String()))
	if err != nil {
		t.Fatalf("authenticate derived key: %v", err)
	}
	if principal.App != "shop" || principal.Scope != appkey.ScopeClient {
		t.Fatalf("unexpected principal %+v", principal)
	}
}

func TestRunRejectsUnknownScope(t *testing.T) {
	if err := Run(Config{App: "shop", Secret: "s", Scope: "admin"}, &bytes.Buffer{}, nil); err == nil {
		t.Fatal("expected error for unknown scope")
	}
}

func TestRunNilOutput(t *testing.T) {
	if err := Run(Config{Bytes: 4, App: "shop"}, nil, nil); err == nil {
		t.Fatal("expected error for nil output")
	}
}

func TestRunDefaultReader(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := Run(Config{Bytes: 4, App: "shop"}, buf, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	first := strings.SplitN(buf.String(), "\n", 2)[0]
	const prefix = "PASSKEYD_SERVER_SECRETS=shop:"
	if !strings.HasPrefix(first, prefix) {
		t.Fatalf("expected env prefix, got %q", first)
	}
	if len(strings.TrimPrefix(first, prefix)) != 8 {
		t.Fatalf("expected 8 hex chars, got %q", first)
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, fmt.Errorf("read error") }

func TestRunReaderError(t *testing.T) {
	if err := Run(Config{Bytes: 4, App: "shop"}, &bytes.Buffer{}, errReader{}); err == nil {
		t.Fatal("expected error from failing reader")
	}
}

func TestParseConfigBadArgs(t *testing.T) {
	fs := flag.NewFlagSet("hmackey", flag.ContinueOnError)
	fs.SetOutput(&bytes.Buffer{})
	if _, err := ParseConfig(fs, []string{"-invalid"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}
