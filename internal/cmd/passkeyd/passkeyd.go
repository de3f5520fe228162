// Package passkeyd parses passkeyd command configuration and launches the
// service.
package passkeyd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/passkeyd/internal/platform/cmd"
	"github.com/louisbranch/passkeyd/internal/platform/logging"
	server "github.com/louisbranch/passkeyd/internal/services/passkeyd/app"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/appkey"
)

// Config holds passkeyd command configuration.
type Config struct {
	HTTPAddr      string        `env:"PASSKEYD_HTTP_ADDR" envDefault:":8090"`
	InternalAddr  string        `env:"PASSKEYD_INTERNAL_ADDR"`
	DBPath        string        `env:"PASSKEYD_DB_PATH" envDefault:"data/passkeyd.db"`
	RedisAddr     string        `env:"PASSKEYD_REDIS_ADDR"`
	AliasCacheTTL time.Duration `env:"PASSKEYD_ALIAS_CACHE_TTL"`
	MailEndpoint  string        `env:"PASSKEYD_MAIL_ENDPOINT"`
	MailAPIKey    string        `env:"PASSKEYD_MAIL_API_KEY"`
	MailFrom      string        `env:"PASSKEYD_MAIL_FROM" envDefault:"no-reply@passkeyd.local"`
	DisplayName   string        `env:"PASSKEYD_RP_NAME" envDefault:"passkeyd"`
	ServerSecrets string        `env:"PASSKEYD_SERVER_SECRETS"`
	ClientSecrets string        `env:"PASSKEYD_CLIENT_SECRETS"`
	ClaimSecrets  string        `env:"PASSKEYD_CLAIM_SECRETS"`
	AliasSecrets  string        `env:"PASSKEYD_ALIAS_SECRETS"`
	PendingTTL    time.Duration `env:"PASSKEYD_PASSKEY_PENDING_TTL" envDefault:"10m"`
	IdleTTL       time.Duration `env:"PASSKEYD_ACTOR_IDLE_TTL" envDefault:"5m"`
	LogLevel      string        `env:"PASSKEYD_LOG_LEVEL" envDefault:"info"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The public HTTP listen address")
	fs.StringVar(&cfg.InternalAddr, "internal-addr", cfg.InternalAddr, "The actor wire surface listen address (empty disables it)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The passkeyd SQLite database path")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for the alias cache (empty uses memory)")
	fs.DurationVar(&cfg.PendingTTL, "pending-ttl", cfg.PendingTTL, "How long a passkey registration may stay unfinished")
	fs.DurationVar(&cfg.IdleTTL, "idle-ttl", cfg.IdleTTL, "How long an idle actor stays in memory")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Keyring builds the per-app keyring from the four secret maps.
func (c Config) Keyring() (*appkey.Keyring, error) {
	maps := make([]map[string][]byte, 0, 4)
	for _, entry := range []struct{ name, raw string }{
		{"server", c.ServerSecrets},
		{"client", c.ClientSecrets},
		{"claim", c.ClaimSecrets},
		{"alias", c.AliasSecrets},
	} {
		parsed, err := appkey.ParseSecretMap(entry.raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s secrets: %w", entry.name, err)
		}
		maps = append(maps, parsed)
	}
	apps := appkey.MergeSecrets(maps[0], maps[1], maps[2], maps[3])
	if len(apps) == 0 {
		return nil, errors.New("at least one app must be configured")
	}
	return appkey.NewKeyring(apps)
}

// Run starts the passkeyd service.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	keyring, err := cfg.Keyring()
	if err != nil {
		return err
	}
	options := entrypoint.RunOptions{Logger: logger}
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServicePasskeyd, options, func(ctx context.Context) error {
		return server.Run(ctx, server.Config{
			HTTPAddr:      cfg.HTTPAddr,
			InternalAddr:  cfg.InternalAddr,
			DBPath:        cfg.DBPath,
			RedisAddr:     cfg.RedisAddr,
			AliasCacheTTL: cfg.AliasCacheTTL,
			MailEndpoint:  cfg.MailEndpoint,
			MailAPIKey:    cfg.MailAPIKey,
			MailFrom:      cfg.MailFrom,
			DisplayName:   cfg.DisplayName,
			PendingTTL:    cfg.PendingTTL,
			IdleTTL:       cfg.IdleTTL,
			Keyring:       keyring,
			Logger:        logger,
		})
	})
}
