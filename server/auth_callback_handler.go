package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/passport-session/passport"
	"github.com/jrsteele09/passport-session/session"
)

// CallbackHandler receives the redirect from the hosted login page, e.g.
// GET /auth/callback?token=T1&refreshToken=R1. A request without both tokens
// is an ordinary page load and is sent on to the return path untouched.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		returnPath := s.returnPath(query.Get(ParamReturn))

		err := s.sessions.IngestCallback(r.Context(), query.Get(ParamToken), query.Get(ParamRefreshToken))
		switch {
		case err == nil, errors.Is(err, session.ErrNoCallback):
			http.Redirect(w, r, returnPath, http.StatusSeeOther)
		case errors.Is(err, passport.ErrInvalidToken):
			writeError(w, http.StatusUnauthorized, "login rejected: invalid token", false)
		case passport.IsRetriable(err):
			writeError(w, http.StatusServiceUnavailable, "login could not be verified, try again", true)
		case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrSignedOut):
			writeError(w, http.StatusConflict, err.Error(), true)
		default:
			s.logger.Error().Err(err).Msg("callback failed")
			writeError(w, http.StatusInternalServerError, "login failed", false)
		}
	}
}

// returnPath accepts only local absolute paths so the callback cannot be used
// as an open redirect.
func (s *Server) returnPath(requested string) string {
	fallback := s.config.GetReturnPath()
	if requested == "" {
		return fallback
	}
	u, err := url.Parse(requested)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	if !strings.HasPrefix(requested, "/") || strings.HasPrefix(requested, "//") || strings.HasPrefix(requested, "/\\") {
		return fallback
	}
	return requested
}
