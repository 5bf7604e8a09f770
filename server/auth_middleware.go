package server

import "net/http"

// RequireSession rejects the request with 401 unless the session is
// Authenticated. A restored session that is still being verified in the
// background counts as signed in.
func (s *Server) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.sessions.IsLoggedIn() {
			writeError(w, http.StatusUnauthorized, "not signed in", false)
			return
		}
		next(w, r)
	}
}
