package server

import "net/http"

func (s *Server) initRoutes() {
	s.RegisterRouteFunc(http.MethodGet, RouteHealth, s.HealthHandler())

	s.RegisterRouteFunc(http.MethodGet, RouteCallback, ChainMiddleware(s.CallbackHandler(), s.HTMLMiddleware()...))

	s.RegisterRouteFunc(http.MethodGet, RouteSession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc(http.MethodPost, RouteRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc(http.MethodPost, RouteLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	// CORS preflight for the API routes.
	preflight := ChainMiddleware(func(w http.ResponseWriter, _ *http.Request) {}, s.APIMiddleware()...)
	for _, path := range []string{RouteSession, RouteRefresh, RouteLogout} {
		s.router.HandleFunc(path, preflight).Methods(http.MethodOptions)
	}
}
