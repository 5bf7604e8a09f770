package server

// Route path constants
const (
	RouteCallback = "/auth/callback"
	RouteSession  = "/auth/session"
	RouteRefresh  = "/auth/refresh"
	RouteLogout   = "/auth/logout"
	RouteHealth   = "/healthz"
)

// Callback query parameters, as appended by the hosted login page.
const (
	ParamToken        = "token"
	ParamRefreshToken = "refreshToken"
	ParamReturn       = "return"
)
