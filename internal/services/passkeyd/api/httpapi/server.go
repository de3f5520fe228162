// Package httpapi is the app-facing HTTP surface. Callers authenticate with
// a per-app server key (administration) or client key (challenges,
// registration, and sign-in only).
package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/api/httpx"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/appkey"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/orchestrator"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/passkey"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/user"
	"go.uber.org/zap"
)

// Flows is the orchestration surface the router drives.
type Flows interface {
	IssueChallenge(ctx context.Context, app string, in orchestrator.IssueInput) (orchestrator.Issued, error)
	RegisterUser(ctx context.Context, app string, in orchestrator.RegisterUserInput) (orchestrator.Registered, error)
	SignIn(ctx context.Context, app string, in orchestrator.SignInInput) (orchestrator.SignedIn, error)
	AddPasskey(ctx context.Context, app, userID string, in orchestrator.AddPasskeyInput) ([]user.PasskeyLink, error)
	RenamePasskey(ctx context.Context, app, userID, passkeyID, name string) ([]user.PasskeyLink, error)
	RemovePasskey(ctx context.Context, app, userID, passkeyID string) ([]user.PasskeyLink, error)
	GetUser(ctx context.Context, app, userID string, opts user.DataOptions) (user.Data, error)
	GetPasskey(ctx context.Context, app, userID, passkeyID string, opts passkey.DataOptions) (passkey.Data, error)
	ResolveAlias(ctx context.Context, app, alias string) (string, error)
	StartEmailVerification(ctx context.Context, app, userID, address string) (orchestrator.Issued, error)
	FinishEmailVerification(ctx context.Context, app, userID, token, code string) (user.Recovery, error)
}

// Authenticator resolves bearer keys.
type Authenticator interface {
	Authenticate(key string) (appkey.Principal, error)
}

// Server serves the app-facing routes.
type Server struct {
	flows  Flows
	keys   Authenticator
	logger *zap.Logger
}

// NewServer builds a Server.
func NewServer(flows Flows, keys Authenticator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{flows: flows, keys: keys, logger: logger}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(s.authenticate)

	v1.HandleFunc("/challenges", s.handleIssueChallenge).Methods(http.MethodPost)
	v1.HandleFunc("/registrations", s.handleRegister).Methods(http.MethodPost)
	v1.HandleFunc("/sign-ins", s.handleSignIn).Methods(http.MethodPost)

	admin := v1.NewRoute().Subrouter()
	admin.Use(requireServerKey(s.logger))
	admin.HandleFunc("/users/{userId}", s.handleGetUser).Methods(http.MethodGet)
	admin.HandleFunc("/users/{userId}/passkeys", s.handleAddPasskey).Methods(http.MethodPost)
	admin.HandleFunc("/users/{userId}/passkeys/{passkeyId}", s.handleRenamePasskey).Methods(http.MethodPut)
	admin.HandleFunc("/users/{userId}/passkeys/{passkeyId}", s.handleRemovePasskey).Methods(http.MethodDelete)
	admin.HandleFunc("/users/{userId}/emails/verification", s.handleStartEmail).Methods(http.MethodPost)
	admin.HandleFunc("/users/{userId}/emails/verify", s.handleFinishEmail).Methods(http.MethodPost)
	admin.HandleFunc("/passkeys/{passkeyId}", s.handleGetPasskey).Methods(http.MethodGet)
	admin.HandleFunc("/aliases/{alias}", s.handleResolveAlias).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(w, req, s.logger, apperrors.New(apperrors.CodeNotFound, "route not found"))
	})
	return httpx.Chain(r,
		httpx.RequestID("passkeyd"),
		httpx.RecoverPanic(s.logger),
		httpx.AccessLog(s.logger),
	)
}

type principalKey struct{}

func principalFrom(ctx context.Context) appkey.Principal {
	p, _ := ctx.Value(principalKey{}).(appkey.Principal)
	return p
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.keys.Authenticate(httpx.BearerToken(r))
		if err != nil {
			httpx.WriteError(w, r, s.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

func requireServerKey(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if principalFrom(r.Context()).Scope != appkey.ScopeServer {
				httpx.WriteError(w, r, logger, apperrors.New(apperrors.CodeForbiddenKey, "server key required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads and validates a request body.
func decode[T interface{ validate() error }](w http.ResponseWriter, r *http.Request, dst T) error {
	if err := httpx.DecodeJSON(w, r, dst); err != nil {
		return err
	}
	return dst.validate()
}

func visitor(r *http.Request) passkey.Visitor {
	return passkey.Visitor{
		IP:        httpx.ClientIP(r),
		UserAgent: r.UserAgent(),
		Origin:    r.Header.Get("Origin"),
	}
}

// ceremonyOrigin prefers the explicit origin and falls back to the Origin
// header.
func ceremonyOrigin(explicit string, r *http.Request) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin, nil
	}
	return "", apperrors.Validation("origin", "origin is required")
}
