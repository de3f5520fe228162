package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/api/httpx"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/orchestrator"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/passkey"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/user"
)

func (s *Server) handleIssueChallenge(w http.ResponseWriter, r *http.Request) {
	var req issueChallengeRequest
	if err := decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	issued, err := s.flows.IssueChallenge(r.Context(), principalFrom(r.Context()).App, orchestrator.IssueInput{
		Kind:    req.Kind,
		TTL:     req.ttl(),
		Subject: req.Subject,
	})
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, issued)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	origin, err := ceremonyOrigin(req.Origin, r)
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	registered, err := s.flows.RegisterUser(r.Context(), principalFrom(r.Context()).App, orchestrator.RegisterUserInput{
		Token:   req.Token,
		Aliases: req.Aliases,
		Email:   req.Email,
		Origin:  origin,
		Name:    req.Name,
		Visitor: visitor(r),
	})
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, registered)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	origin, err := ceremonyOrigin(req.Origin, r)
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	signedIn, err := s.flows.SignIn(r.Context(), principalFrom(r.Context()).App, orchestrator.SignInInput{
		Token:   req.Token,
		Origin:  origin,
		Visitor: visitor(r),
	})
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, signedIn)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	data, err := s.flows.GetUser(r.Context(), principalFrom(r.Context()).App, mux.Vars(r)["userId"], user.DataOptions{
		Recovery: httpx.QueryFlag(r, "recovery"),
		Passkeys: httpx.QueryFlag(r, "passkeys"),
	})
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, data)
}

type passkeysResponse struct {
	Passkeys []user.PasskeyLink `json:"passkeys"`
}

func (s *Server) handleAddPasskey(w http.ResponseWriter, r *http.Request) {
	var req addPasskeyRequest
	if err := decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	origin, err := ceremonyOrigin(req.Origin, r)
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	links, err := s.flows.AddPasskey(r.Context(), principalFrom(r.Context()).App, mux.Vars(r)["userId"], orchestrator.AddPasskeyInput{
		Token:   req.Token,
		Origin:  origin,
		Name:    req.Name,
		Visitor: visitor(r),
	})
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, passkeysResponse{Passkeys: links})
}

func (s *Server) handleRenamePasskey(w http.ResponseWriter, r *http.Request) {
	var req renamePasskeyRequest
	if err := decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	vars := mux.Vars(r)
	links, err := s.flows.RenamePasskey(r.Context(), principalFrom(r.Context()).App, vars["userId"], vars["passkeyId"], req.Name)
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, passkeysResponse{Passkeys: links})
}

func (s *Server) handleRemovePasskey(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	links, err := s.flows.RemovePasskey(r.Context(), principalFrom(r.Context()).App, vars["userId"], vars["passkeyId"])
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, passkeysResponse{Passkeys: links})
}

func (s *Server) handleGetPasskey(w http.ResponseWriter, r *http.Request) {
	data, err := s.flows.GetPasskey(r.Context(), principalFrom(r.Context()).App,
		r.URL.Query().Get("userId"), mux.Vars(r)["passkeyId"], passkey.DataOptions{
			Credential: httpx.QueryFlag(r, "credential"),
			Visitors:   httpx.QueryFlag(r, "visitors"),
		})
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, data)
}

func (s *Server) handleResolveAlias(w http.ResponseWriter, r *http.Request) {
	userID, err := s.flows.ResolveAlias(r.Context(), principalFrom(r.Context()).App, mux.Vars(r)["alias"])
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"userId": userID})
}

func (s *Server) handleStartEmail(w http.ResponseWriter, r *http.Request) {
	var req startEmailRequest
	if err := decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	issued, err := s.flows.StartEmailVerification(r.Context(), principalFrom(r.Context()).App, mux.Vars(r)["userId"], req.Email)
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, issued)
}

func (s *Server) handleFinishEmail(w http.ResponseWriter, r *http.Request) {
	var req finishEmailRequest
	if err := decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	recovery, err := s.flows.FinishEmailVerification(r.Context(), principalFrom(r.Context()).App, mux.Vars(r)["userId"], req.Token, req.Code)
	if err != nil {
		httpx.WriteError(w, r, s.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, recovery)
}
