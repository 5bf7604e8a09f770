package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jrsteele09/passport-session/internal/config"
	"github.com/jrsteele09/passport-session/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SessionManager is the part of session.Manager the HTTP surface drives.
type SessionManager interface {
	IngestCallback(ctx context.Context, token, refreshToken string) error
	Refresh(ctx context.Context) error
	SignOut(ctx context.Context)
	IsLoggedIn() bool
	Status() session.State
	Session() (session.Session, bool)
}

// Config is the configuration the server reads.
type Config interface {
	config.EnvConfig
	config.CorsConfig
}

type Server struct {
	env      string
	router   *mux.Router
	routes   []string
	config   Config
	sessions SessionManager
	logger   zerolog.Logger
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(cfg Config, sessions SessionManager, options ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[Server New] config is required")
	}
	if sessions == nil {
		return nil, errors.New("[Server New] session manager is required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		router:   mux.NewRouter(),
		config:   cfg,
		sessions: sessions,
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "server").Logger()

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RegisterRouteFunc adds a route for method and path.
func (s *Server) RegisterRouteFunc(method, path string, handler http.HandlerFunc) {
	s.routes = append(s.routes, method+" "+path)
	s.router.HandleFunc(path, handler).Methods(method)
}

// RegisterProtectedRoute adds an application route that is only served while
// the session is Authenticated.
func (s *Server) RegisterProtectedRoute(method, path string, handler http.HandlerFunc) {
	s.RegisterRouteFunc(method, path, ChainMiddleware(handler, s.APIMiddleware(s.RequireSession)...))
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		var method, path string
		if _, err := fmt.Sscanf(route, "%s %s", &method, &path); err != nil {
			continue
		}
		s.logger.Debug().Msg(colourMethod(method) + " " + path)
	}
}
