// Package actorhttp exposes each actor's operations over HTTP for the
// internal listener. Operations that act on an occupied instance take the
// instance's guard token as a bearer credential.
package actorhttp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/api/httpx"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/challenge"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/passkey"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/user"
	"go.uber.org/zap"
)

// Actors groups the actor hosts served by the wire surface.
type Actors struct {
	Challenges *challenge.Actor
	Passkeys   *passkey.Actor
	Users      *user.Actor
}

// Server serves /actors/{kind}/{id}/... routes.
type Server struct {
	actors Actors
	logger *zap.Logger
}

// NewServer builds a Server.
func NewServer(actors Actors, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{actors: actors, logger: logger}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	ch := r.PathPrefix("/actors/" + challenge.Kind + "/{id}").Subrouter()
	ch.HandleFunc("/start", s.challengeStart).Methods(http.MethodPost)
	ch.HandleFunc("/finish", s.challengeFinish).Methods(http.MethodPost)

	pk := r.PathPrefix("/actors/" + passkey.Kind + "/{id}").Subrouter()
	pk.HandleFunc("/start-register", s.passkeyStartRegister).Methods(http.MethodPost)
	pk.HandleFunc("/finish-register", s.passkeyFinishRegister).Methods(http.MethodPost)
	pk.HandleFunc("/authenticate", s.passkeyAuthenticate).Methods(http.MethodPost)
	pk.HandleFunc("/data", s.passkeyData).Methods(http.MethodGet)
	pk.HandleFunc("/implode", s.passkeyImplode).Methods(http.MethodDelete)

	us := r.PathPrefix("/actors/" + user.Kind + "/{id}").Subrouter()
	us.HandleFunc("/create", s.userCreate).Methods(http.MethodPost)
	us.HandleFunc("/passkeys", s.userLinkPasskey).Methods(http.MethodPost)
	us.HandleFunc("/passkeys/{passkeyId}", s.userRenamePasskey).Methods(http.MethodPut)
	us.HandleFunc("/passkeys/{passkeyId}", s.userRemovePasskey).Methods(http.MethodDelete)
	us.HandleFunc("/data", s.userData).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(w, req, s.logger, apperrors.New(apperrors.CodeNotFound, "route not found"))
	})
	return httpx.Chain(r,
		httpx.RequestID("actors"),
		httpx.RecoverPanic(s.logger),
	)
}

// maxStartTTL bounds challenge lifetimes accepted over the wire.
const maxStartTTL = 24 * time.Hour

type challengeStartRequest struct {
	TTLMs int64  `json:"ttlMs"`
	Code  string `json:"code,omitempty"`
	Value string `json:"value,omitempty"`
}

type challengeFinishRequest struct {
	Code string `json:"code,omitempty"`
}

func (s *Server) challengeStart(w http.ResponseWriter, r *http.Request) {
	var req challengeStartRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	if req.TTLMs <= 0 || req.TTLMs > maxStartTTL.Milliseconds() {
		httpx.WriteError(w, r, s.logger, apperrors.Validation("ttlMs", "ttlMs must be positive and at most 24h"))
		return
	}
	expiresAt, err := s.actors.Challenges.Start(r.Context(), mux.Vars(r)["id"], challenge.StartInput{
		TTL:   time.Duration(req.TTLMs) * time.Millisecond,
		Code:  req.Code,
		Value: req.Value,
	})
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]time.Time{"expiresAt": expiresAt})
}

func (s *Server) challengeFinish(w http.ResponseWriter, r *http.Request) {
	var req challengeFinishRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			httpx.WriteError(w, r, s.logger, err)
			return
		}
	}
	value, err := s.actors.Challenges.Finish(r.Context(), mux.Vars(r)["id"], req.Code)
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"value": value})
}

type startRegisterRequest struct {
	UserID      string          `json:"userId"`
	App         string          `json:"app"`
	Ceremony    json.RawMessage `json:"ceremony"`
	Origin      string          `json:"origin"`
	ChallengeID string          `json:"challengeId"`
}

type authenticateRequest struct {
	App         string          `json:"app"`
	Ceremony    json.RawMessage `json:"ceremony"`
	Origin      string          `json:"origin"`
	ChallengeID string          `json:"challengeId"`
}

func (s *Server) passkeyStartRegister(w http.ResponseWriter, r *http.Request) {
	var req startRegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	meta, err := s.actors.Passkeys.StartRegister(r.Context(), mux.Vars(r)["id"], passkey.RegisterInput{
		UserID:      req.UserID,
		App:         req.App,
		Ceremony:    req.Ceremony,
		Origin:      req.Origin,
		ChallengeID: req.ChallengeID,
		Visitor:     visitor(r),
	})
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, meta)
}

func (s *Server) passkeyFinishRegister(w http.ResponseWriter, r *http.Request) {
	if err := s.actors.Passkeys.FinishRegister(r.Context(), mux.Vars(r)["id"], httpx.BearerToken(r)); err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) passkeyAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	authenticated, err := s.actors.Passkeys.Authenticate(r.Context(), mux.Vars(r)["id"], passkey.AuthenticateInput{
		App:         req.App,
		Ceremony:    req.Ceremony,
		Origin:      req.Origin,
		ChallengeID: req.ChallengeID,
		Visitor:     visitor(r),
	})
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authenticated)
}

func (s *Server) passkeyData(w http.ResponseWriter, r *http.Request) {
	data, err := s.actors.Passkeys.Data(r.Context(), mux.Vars(r)["id"], httpx.BearerToken(r), passkey.DataOptions{
		Credential: httpx.QueryFlag(r, "credential"),
		Visitors:   httpx.QueryFlag(r, "visitors"),
	})
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, data)
}

func (s *Server) passkeyImplode(w http.ResponseWriter, r *http.Request) {
	if err := s.actors.Passkeys.Implode(r.Context(), mux.Vars(r)["id"], httpx.BearerToken(r)); err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createUserRequest struct {
	App     string            `json:"app"`
	Aliases []string          `json:"aliases,omitempty"`
	Email   string            `json:"email,omitempty"`
	Passkey *user.PasskeyLink `json:"passkey,omitempty"`
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) userCreate(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	meta, err := s.actors.Users.Create(r.Context(), mux.Vars(r)["id"], user.CreateInput{
		App:     req.App,
		Aliases: req.Aliases,
		Email:   req.Email,
		Passkey: req.Passkey,
	})
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, meta)
}

func (s *Server) userLinkPasskey(w http.ResponseWriter, r *http.Request) {
	var link user.PasskeyLink
	if err := httpx.DecodeJSON(w, r, &link); err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	links, err := s.actors.Users.LinkPasskey(r.Context(), mux.Vars(r)["id"], httpx.BearerToken(r), link)
	s.writeLinks(w, r, links, err)
}

func (s *Server) userRenamePasskey(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	vars := mux.Vars(r)
	links, err := s.actors.Users.RenamePasskey(r.Context(), vars["id"], httpx.BearerToken(r), vars["passkeyId"], req.Name)
	s.writeLinks(w, r, links, err)
}

func (s *Server) userRemovePasskey(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	links, err := s.actors.Users.RemovePasskey(r.Context(), vars["id"], httpx.BearerToken(r), vars["passkeyId"])
	s.writeLinks(w, r, links, err)
}

func (s *Server) writeLinks(w http.ResponseWriter, r *http.Request, links []user.PasskeyLink, err error) {
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string][]user.PasskeyLink{"passkeys": links})
}

func (s *Server) userData(w http.ResponseWriter, r *http.Request) {
	data, err := s.actors.Users.Data(r.Context(), mux.Vars(r)["id"], httpx.BearerToken(r), user.DataOptions{
		Recovery: httpx.QueryFlag(r, "recovery"),
		Passkeys: httpx.QueryFlag(r, "passkeys"),
	})
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, data)
}

func visitor(r *http.Request) passkey.Visitor {
	return passkey.Visitor{
		IP:        httpx.ClientIP(r),
		UserAgent: r.UserAgent(),
		Origin:    r.Header.Get("Origin"),
	}
}
