// Package app wires the configured storage backends, the Passport client and
// the session manager together.
package app

import (
	"context"
	"errors"
	"io"

	"github.com/jrsteele09/passport-session/internal/config"
	apperrors "github.com/jrsteele09/passport-session/internal/errors"
	"github.com/jrsteele09/passport-session/passport"
	"github.com/jrsteele09/passport-session/session"
	"github.com/jrsteele09/passport-session/tokenstore"
	"github.com/jrsteele09/passport-session/tokenstore/filerepo"
	"github.com/jrsteele09/passport-session/tokenstore/redisrepo"
	"github.com/jrsteele09/passport-session/tokenstore/sqliterepo"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type App struct {
	Config  config.Config
	Client  *passport.Client
	Store   *tokenstore.Store
	Manager *session.Manager

	watcher session.Watcher
	rdb     redis.UniversalClient
	closers []io.Closer
	logger  zerolog.Logger

	passportOptions []passport.ClientOption
}

type Option func(*App)

func WithLogger(logger zerolog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithRedisClient supplies the Redis client instead of dialling REDIS_ADDR.
// The caller keeps ownership of it.
func WithRedisClient(rdb redis.UniversalClient) Option {
	return func(a *App) {
		a.rdb = rdb
	}
}

func WithPassportOptions(options ...passport.ClientOption) Option {
	return func(a *App) {
		a.passportOptions = append(a.passportOptions, options...)
	}
}

// New builds the application from cfg. Close releases the storage backends.
func New(cfg config.Config, options ...Option) (*App, error) {
	a := &App{Config: cfg, logger: log.Logger}
	for _, opt := range options {
		opt(a)
	}

	tier, err := tokenstore.ParseTier(cfg.GetLoginTier())
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidConfig, "[app New] %v", err)
	}

	durable, err := a.durableRepo()
	if err != nil {
		a.Close()
		return nil, err
	}
	sessionRepo, err := a.sessionRepo()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = tokenstore.New(durable, sessionRepo, tokenstore.WithLogger(a.logger))

	clientOptions := append([]passport.ClientOption{passport.WithLogger(a.logger)}, a.passportOptions...)
	if a.Client, err = passport.NewClient(cfg, clientOptions...); err != nil {
		a.Close()
		return nil, apperrors.Wrapf(err, "[app New]")
	}

	a.Manager, err = session.NewManager(a.Client, a.Store,
		session.WithLogger(a.logger),
		session.WithTier(tier),
		session.WithLogoutTimeout(cfg.GetLogoutTimeout()),
	)
	if err != nil {
		a.Close()
		return nil, apperrors.Wrapf(err, "[app New]")
	}
	return a, nil
}

func (a *App) durableRepo() (tokenstore.Repo, error) {
	switch backend := a.Config.GetTokenBackend(); backend {
	case config.BackendFile:
		repo, err := filerepo.New(a.Config.GetTokenFile(),
			filerepo.WithEncryptionKey(a.Config.GetEncryptionKey()),
			filerepo.WithLogger(a.logger),
		)
		if err != nil {
			return nil, apperrors.Wrapf(err, "[app New] token file")
		}
		a.watcher = repo
		return repo, nil
	case config.BackendSQLite:
		repo, err := sqliterepo.New(a.Config.GetSQLitePath(), config.TierDurable)
		if err != nil {
			return nil, apperrors.Wrapf(err, "[app New] token database")
		}
		a.closers = append(a.closers, repo)
		return repo, nil
	case config.BackendRedis:
		return redisrepo.New(a.redisClient(), a.Config.GetRedisPrefix()+":"+config.TierDurable, 0), nil
	case config.BackendMemory:
		return tokenstore.NewInMemoryRepo(), nil
	default:
		return nil, apperrors.Wrapf(apperrors.ErrUnknownBackend, "[app New] token backend %q", backend)
	}
}

func (a *App) sessionRepo() (tokenstore.Repo, error) {
	switch backend := a.Config.GetSessionBackend(); backend {
	case config.BackendMemory:
		return tokenstore.NewInMemoryRepo(), nil
	case config.BackendRedis:
		return redisrepo.New(a.redisClient(), a.Config.GetRedisPrefix()+":"+config.TierSession, a.Config.GetSessionTTL()), nil
	default:
		return nil, apperrors.Wrapf(apperrors.ErrUnknownBackend, "[app New] session backend %q", backend)
	}
}

func (a *App) redisClient() redis.UniversalClient {
	if a.rdb == nil {
		a.rdb = redis.NewClient(&redis.Options{Addr: a.Config.GetRedisAddr()})
		a.closers = append(a.closers, a.rdb)
	}
	return a.rdb
}

// Watch resyncs the session whenever the token file changes on disk. It is a
// no-op for backends that cannot be watched.
func (a *App) Watch(ctx context.Context) error {
	if a.watcher == nil {
		return nil
	}
	return a.Manager.WatchStore(ctx, a.watcher)
}

// Close stops background verification and closes the storage backends. The
// persisted session is kept.
func (a *App) Close() error {
	if a.Manager != nil {
		a.Manager.Close()
	}
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
