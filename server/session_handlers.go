package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jrsteele09/passport-session/passport"
	"github.com/jrsteele09/passport-session/session"
)

// SessionResponse is the body of GET /auth/session. Tokens are never exposed.
type SessionResponse struct {
	Status   session.State         `json:"status"`
	LoggedIn bool                  `json:"loggedIn"`
	Verified bool                  `json:"verified"`
	User     *passport.UserProfile `json:"user,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Retriable bool   `json:"retriable"`
}

func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.sessionResponse())
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := s.sessions.Refresh(r.Context())
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, s.sessionResponse())
		case errors.Is(err, session.ErrNotAuthenticated), errors.Is(err, passport.ErrInvalidToken):
			writeError(w, http.StatusUnauthorized, "not signed in", false)
		case errors.Is(err, passport.ErrRefreshUnsupported):
			writeError(w, http.StatusNotImplemented, err.Error(), false)
		case passport.IsRetriable(err):
			writeError(w, http.StatusServiceUnavailable, "refresh failed, try again", true)
		case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrSignedOut):
			writeError(w, http.StatusConflict, err.Error(), true)
		default:
			s.logger.Error().Err(err).Msg("refresh failed")
			writeError(w, http.StatusInternalServerError, "refresh failed", false)
		}
	}
}

// LogoutHandler always succeeds: local sign-out does not depend on the
// remote service.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.sessions.SignOut(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) sessionResponse() SessionResponse {
	resp := SessionResponse{Status: s.sessions.Status()}
	resp.LoggedIn = resp.Status == session.Authenticated
	if current, ok := s.sessions.Session(); ok {
		resp.User = current.User
		resp.Verified = current.Verified
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string, retriable bool) {
	writeJSON(w, status, ErrorResponse{Error: msg, Retriable: retriable})
}
