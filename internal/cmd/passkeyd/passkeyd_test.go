package passkeyd

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("passkeyd", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8090" {
		t.Fatalf("http addr = %q, want %q", cfg.HTTPAddr, ":8090")
	}
	if cfg.DBPath != "data/passkeyd.db" {
		t.Fatalf("db path = %q, want %q", cfg.DBPath, "data/passkeyd.db")
	}
	if cfg.PendingTTL != 10*time.Minute {
		t.Fatalf("pending ttl = %v, want 10m", cfg.PendingTTL)
	}
	if cfg.IdleTTL != 5*time.Minute {
		t.Fatalf("idle ttl = %v, want 5m", cfg.IdleTTL)
	}
	if cfg.InternalAddr != "" {
		t.Fatalf("internal addr = %q, want empty", cfg.InternalAddr)
	}
}

func TestParseConfig_EnvAndFlags(t *testing.T) {
	t.Setenv("PASSKEYD_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("PASSKEYD_REDIS_ADDR", "redis:6379")
	t.Setenv("PASSKEYD_PASSKEY_PENDING_TTL", "2m")

	fs := flag.NewFlagSet("passkeyd", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-internal-addr", "127.0.0.1:9001", "-pending-ttl", "30s"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Fatalf("http addr = %q", cfg.HTTPAddr)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("redis addr = %q", cfg.RedisAddr)
	}
	if cfg.InternalAddr != "127.0.0.1:9001" {
		t.Fatalf("internal addr = %q", cfg.InternalAddr)
	}
	if cfg.PendingTTL != 30*time.Second {
		t.Fatalf("pending ttl = %v, want 30s", cfg.PendingTTL)
	}
}

func TestConfigKeyring(t *testing.T) {
	cfg := Config{
		ServerSecrets: "app-a:s1,app-b:s2",
		ClientSecrets: "app-a:c1,app-b:c2",
		ClaimSecrets:  "app-a:k1,app-b:k2",
		AliasSecrets:  "app-a:a1,app-b:a2",
	}
	ring, err := cfg.Keyring()
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	if apps := ring.Apps(); len(apps) != 2 || apps[0] != "app-a" || apps[1] != "app-b" {
		t.Fatalf("apps = %v", apps)
	}
}

func TestConfigKeyringRejectsIncompleteApps(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "empty", cfg: Config{}},
		{name: "missing alias", cfg: Config{
			ServerSecrets: "app-a:s1",
			ClientSecrets: "app-a:c1",
			ClaimSecrets:  "app-a:k1",
		}},
		{name: "malformed", cfg: Config{ServerSecrets: "app-a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.cfg.Keyring(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
