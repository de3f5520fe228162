package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/passkeyd/internal/platform/timeouts"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/actor"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/alias"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/api/actorhttp"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/api/httpapi"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/appkey"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/background"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/ceremony"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/challenge"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/mail"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/orchestrator"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/passkey"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/storage/sqlite"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/user"
)

const defaultDisplayName = "passkeyd"

// Config configures a Server.
type Config struct {
	HTTPAddr     string
	InternalAddr string
	DBPath       string
	RedisAddr    string
	// AliasCacheTTL bounds Redis alias entries. Zero keeps them forever.
	AliasCacheTTL time.Duration
	MailEndpoint  string
	MailAPIKey    string
	MailFrom      string
	DisplayName   string
	PendingTTL    time.Duration
	IdleTTL       time.Duration
	Keyring       *appkey.Keyring
	Logger        *zap.Logger
}

// Server hosts passkeyd.
type Server struct {
	logger           *zap.Logger
	store            *sqlite.Store
	redis            *redis.Client
	hosts            []*actor.Host
	background       *background.Group
	httpListener     net.Listener
	httpServer       *http.Server
	internalListener net.Listener
	internalServer   *http.Server
}

// New opens storage, builds the actors and flows, and binds listeners.
func New(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.Keyring == nil {
		return nil, errors.New("keyring is required")
	}
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		return nil, errors.New("http addr is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	s := &Server{logger: logger, store: store}

	cache, err := s.aliasCache(ctx, cfg)
	if err != nil {
		s.closeResources()
		return nil, err
	}

	actorCfg := func(component string) actor.Config {
		return actor.Config{Storage: store, Logger: logger.Named(component), IdleTTL: cfg.IdleTTL}
	}
	challenges, err := challenge.New(actorCfg("challenge"))
	if err != nil {
		s.closeResources()
		return nil, fmt.Errorf("build challenge actor: %w", err)
	}
	displayName := strings.TrimSpace(cfg.DisplayName)
	if displayName == "" {
		displayName = defaultDisplayName
	}
	passkeys, err := passkey.New(actorCfg("passkey"), ceremony.NewWebAuthnVerifier(displayName), passkey.Options{PendingTTL: cfg.PendingTTL})
	if err != nil {
		s.closeResources()
		return nil, fmt.Errorf("build passkey actor: %w", err)
	}
	users, err := user.New(actorCfg("user"))
	if err != nil {
		s.closeResources()
		return nil, fmt.Errorf("build user actor: %w", err)
	}
	s.hosts = []*actor.Host{challenges.Host(), passkeys.Host(), users.Host()}
	s.background = background.New(logger.Named("background"), background.Options{})

	var mailer mail.Sender = mail.NewLogSender(logger.Named("mail"))
	if endpoint := strings.TrimSpace(cfg.MailEndpoint); endpoint != "" {
		mailer = mail.NewHTTPSender(endpoint, cfg.MailAPIKey, cfg.MailFrom, nil)
	}

	flows, err := orchestrator.New(orchestrator.Config{
		Keyring:    cfg.Keyring,
		Challenges: challenges,
		Passkeys:   passkeys,
		Users:      users,
		Aliases:    alias.NewResolver(store, cache, logger.Named("alias")),
		Mailer:     mailer,
		Background: s.background,
		Logger:     logger.Named("orchestrator"),
	})
	if err != nil {
		s.closeResources()
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	s.httpListener, err = net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		s.closeResources()
		return nil, fmt.Errorf("listen on http addr %s: %w", cfg.HTTPAddr, err)
	}
	s.httpServer = &http.Server{
		Handler:           httpapi.NewServer(flows, cfg.Keyring, logger.Named("http")).Handler(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	if addr := strings.TrimSpace(cfg.InternalAddr); addr != "" {
		s.internalListener, err = net.Listen("tcp", addr)
		if err != nil {
			_ = s.httpListener.Close()
			s.closeResources()
			return nil, fmt.Errorf("listen on internal addr %s: %w", addr, err)
		}
		s.internalServer = &http.Server{
			Handler: actorhttp.NewServer(actorhttp.Actors{
				Challenges: challenges,
				Passkeys:   passkeys,
				Users:      users,
			}, logger.Named("actors")).Handler(),
			ReadHeaderTimeout: timeouts.ReadHeader,
		}
	}
	return s, nil
}

// Addr returns the public listener address.
func (s *Server) Addr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// InternalAddr returns the internal listener address, or "" when disabled.
func (s *Server) InternalAddr() string {
	if s == nil || s.internalListener == nil {
		return ""
	}
	return s.internalListener.Addr().String()
}

// Run creates and serves a server until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve re-arms persisted alarms, serves both listeners, and shuts down
// gracefully when ctx ends or a listener fails.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeResources()

	for _, host := range s.hosts {
		n, err := host.Recover(serverCtx)
		if err != nil {
			s.closeListeners()
			s.shutdownHosts()
			return fmt.Errorf("recover %s actors: %w", host.Kind(), err)
		}
		if n > 0 {
			s.logger.Info("recovered actor alarms", zap.String("kind", host.Kind()), zap.Int("count", n))
		}
	}

	sweepers, sweepCtx := errgroup.WithContext(serverCtx)
	for _, host := range s.hosts {
		sweepers.Go(func() error { return host.Run(sweepCtx) })
	}

	serveErr := make(chan error, 2)
	s.logger.Info("passkeyd listening", zap.String("addr", s.Addr()))
	go func() { serveErr <- s.httpServer.Serve(s.httpListener) }()
	if s.internalServer != nil {
		s.logger.Info("actor wire surface listening", zap.String("addr", s.InternalAddr()))
		go func() { serveErr <- s.internalServer.Serve(s.internalListener) }()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		} else {
			err = fmt.Errorf("serve HTTP: %w", err)
		}
	}

	s.shutdownHTTP()
	cancel()
	_ = sweepers.Wait()
	s.drainBackground()
	s.shutdownHosts()
	return err
}

func (s *Server) shutdownHTTP() {
	for _, srv := range []*http.Server{s.httpServer, s.internalServer} {
		if srv == nil {
			continue
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown", zap.Error(err))
		}
		cancel()
	}
}

func (s *Server) closeListeners() {
	for _, l := range []net.Listener{s.httpListener, s.internalListener} {
		if l != nil {
			_ = l.Close()
		}
	}
}

func (s *Server) drainBackground() {
	if s.background == nil {
		return
	}
	waitCtx, cancel := context.WithTimeout(context.Background(), timeouts.Background)
	defer cancel()
	if err := s.background.Wait(waitCtx); err != nil {
		s.logger.Warn("drain background tasks", zap.Error(err))
	}
}

func (s *Server) shutdownHosts() {
	for _, host := range s.hosts {
		closeCtx, cancel := context.WithTimeout(context.Background(), timeouts.StorageFlush)
		if err := host.Close(closeCtx); err != nil {
			s.logger.Warn("close actor host", zap.String("kind", host.Kind()), zap.Error(err))
		}
		cancel()
	}
}

func (s *Server) closeResources() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("close redis", zap.Error(err))
		}
		s.redis = nil
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("close store", zap.Error(err))
		}
		s.store = nil
	}
}

// aliasCache connects to Redis when configured and falls back to memory.
func (s *Server) aliasCache(ctx context.Context, cfg Config) (alias.Cache, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return alias.NewMemoryCache(), nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, timeouts.ReadHeader)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	s.redis = client
	return alias.NewRedisCache(client, "", cfg.AliasCacheTTL), nil
}

func openStore(ctx context.Context, path string) (*sqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "passkeyd.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open passkeyd sqlite store: %w", err)
	}
	return store, nil
}
