package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/passport-session/passport"
	"github.com/jrsteele09/passport-session/tokenstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultLogoutTimeout = 5 * time.Second
	defaultRefreshSkew   = 30 * time.Second
)

// AuthClient is the remote authentication service.
type AuthClient interface {
	VerifyUser(ctx context.Context, accessToken string) (*passport.UserProfile, error)
	Logout(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (passport.TokenPair, error)
}

// TokenStore persists the token pair and the cached profile.
type TokenStore interface {
	Save(ctx context.Context, tier tokenstore.Tier, tokens tokenstore.Tokens) error
	Load(ctx context.Context) (tokenstore.Tokens, tokenstore.Tier, bool)
	Clear(ctx context.Context)
	SaveProfile(ctx context.Context, tier tokenstore.Tier, profile *passport.UserProfile) error
	LoadProfile(ctx context.Context, tier tokenstore.Tier) (*passport.UserProfile, bool)
}

// Watcher reports changes made to the persisted tokens from outside the Manager.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

// Session is a snapshot of the authenticated identity.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *passport.UserProfile // nil until the first verification when restored without a cached profile
	Status       State
	Tier         tokenstore.Tier
	Verified     bool // the current access token has been verified by the remote service
}

// call tracks an in-flight login or refresh so duplicates can share its outcome.
type call struct {
	tokens passport.TokenPair
	done   chan struct{}
	err    error
}

// Manager owns the session state machine. It is the only writer of the token
// store. All methods are safe for concurrent use; remote calls never run
// while the internal lock is held.
type Manager struct {
	client        AuthClient
	store         TokenStore
	logger        zerolog.Logger
	tier          tokenstore.Tier
	logoutTimeout time.Duration
	refreshSkew   time.Duration
	nowTime       func() time.Time

	mu      sync.Mutex
	state   State
	session *Session
	// epoch changes whenever the session is replaced or torn down; a result
	// computed under an older epoch is discarded.
	epoch            uint64
	ingest           *call
	refresh          *call
	cancelBackground context.CancelFunc
	pending          []State
	subscribers      map[int]func(State)
	nextSubscriber   int
	background       sync.WaitGroup
}

// ManagerOption modifies a Manager during construction.
type ManagerOption func(*Manager)

// WithLogger sets the logger the Manager reports through.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithTier selects where IngestCallback persists a new login.
func WithTier(tier tokenstore.Tier) ManagerOption {
	return func(m *Manager) {
		m.tier = tier
	}
}

// WithLogoutTimeout bounds the best-effort remote logout.
func WithLogoutTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.logoutTimeout = d
	}
}

// WithRefreshSkew sets how long before a JWT access token's expiry
// AccessToken refreshes it.
func WithRefreshSkew(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshSkew = d
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// NewManager creates a Manager in the Anonymous state. Call RestoreSession to
// pick up a persisted session.
func NewManager(client AuthClient, store TokenStore, options ...ManagerOption) (*Manager, error) {
	if client == nil {
		return nil, errors.New("[NewManager] auth client is required")
	}
	if store == nil {
		return nil, errors.New("[NewManager] token store is required")
	}

	m := &Manager{
		client:        client,
		store:         store,
		logger:        log.Logger,
		tier:          tokenstore.Durable,
		logoutTimeout: defaultLogoutTimeout,
		refreshSkew:   defaultRefreshSkew,
		nowTime:       time.Now,
		state:         Anonymous,
		subscribers:   make(map[int]func(State)),
	}
	for _, opt := range options {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "session").Logger()
	return m, nil
}

// IngestCallback turns the token pair delivered to the login callback into a
// session. The pair is persisted, then verified against the remote service.
// A second call with the same pair while the first is outstanding waits for
// and returns the first call's outcome without contacting the service again.
func (m *Manager) IngestCallback(ctx context.Context, token, refreshToken string) error {
	if token == "" || refreshToken == "" {
		return ErrNoCallback
	}
	pair := passport.TokenPair{AccessToken: token, RefreshToken: refreshToken}

	m.mu.Lock()
	if c := m.ingest; c != nil {
		m.mu.Unlock()
		if c.tokens != pair {
			return ErrBusy
		}
		select {
		case <-c.done:
			return c.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.refresh != nil {
		m.mu.Unlock()
		return ErrBusy
	}

	c := &call{tokens: pair, done: make(chan struct{})}
	m.ingest = c
	m.epoch++
	epoch := m.epoch
	m.cancelBackgroundLocked()
	if err := m.store.Save(ctx, m.tier, pair); err != nil {
		m.logger.Warn().Err(err).Msg("login tokens held in memory only")
	}
	m.session = &Session{AccessToken: token, RefreshToken: refreshToken, Status: Authenticating, Tier: m.tier}
	m.setStateLocked(Authenticating)
	m.unlockAndNotify()

	c.err = m.verifyIngested(ctx, epoch, pair)

	m.mu.Lock()
	m.ingest = nil
	m.mu.Unlock()
	close(c.done)
	return c.err
}

func (m *Manager) verifyIngested(ctx context.Context, epoch uint64, pair passport.TokenPair) error {
	profile, verifyErr := m.client.VerifyUser(ctx, pair.AccessToken)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrSignedOut
	}
	if verifyErr != nil {
		m.teardownLocked(ctx)
		m.unlockAndNotify()
		m.logger.Warn().Err(verifyErr).Bool("retriable", passport.IsRetriable(verifyErr)).Msg("login verification failed")
		return fmt.Errorf("[IngestCallback] %w", verifyErr)
	}
	m.session.User = profile
	m.session.Verified = true
	m.setStateLocked(Authenticated)
	if err := m.store.SaveProfile(ctx, m.session.Tier, profile); err != nil {
		m.logger.Warn().Err(err).Msg("profile cached in memory only")
	}
	m.unlockAndNotify()
	m.logger.Info().Str("user_id", profile.ID).Str("provider", string(profile.Provider)).Msg("signed in")
	return nil
}

// RestoreSession picks up a persisted session at start-up. With no complete
// token pair in the store the session is Anonymous and no network call is
// made. Otherwise the session is Authenticated immediately, using the cached
// profile, and verified in the background.
func (m *Manager) RestoreSession(ctx context.Context) error {
	m.mu.Lock()
	if m.ingest != nil || m.refresh != nil {
		m.mu.Unlock()
		return ErrBusy
	}

	tokens, tier, ok := m.store.Load(ctx)
	if !ok {
		// A half-written tier is removed with the rest.
		m.teardownLocked(ctx)
		m.unlockAndNotify()
		return nil
	}

	profile, _ := m.store.LoadProfile(ctx, tier)
	m.epoch++
	epoch := m.epoch
	m.cancelBackgroundLocked()
	m.session = &Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		User:         profile,
		Status:       Authenticated,
		Tier:         tier,
	}
	m.setStateLocked(Authenticated)

	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancelBackground = cancel
	m.background.Add(1)
	m.unlockAndNotify()

	go func() {
		defer m.background.Done()
		defer cancel()
		m.verifyRestored(bgCtx, epoch, tokens)
	}()
	return nil
}

func (m *Manager) verifyRestored(ctx context.Context, epoch uint64, tokens passport.TokenPair) {
	if exp, ok := passport.AccessTokenExpiry(tokens.AccessToken); ok && !m.nowTime().Before(exp) {
		m.logger.Debug().Time("exp", exp).Msg("restored access token already expired")
		m.expireAndRefresh(ctx, epoch, tokens.AccessToken)
		return
	}

	profile, err := m.client.VerifyUser(ctx, tokens.AccessToken)
	switch {
	case err == nil:
		m.applyVerified(ctx, epoch, tokens.AccessToken, profile)
	case errors.Is(err, passport.ErrInvalidToken):
		m.expireAndRefresh(ctx, epoch, tokens.AccessToken)
	default:
		// Unreachable or server error: keep the optimistic session.
		m.logger.Warn().Err(err).Msg("background verification inconclusive")
	}
}

func (m *Manager) expireAndRefresh(ctx context.Context, epoch uint64, accessToken string) {
	m.mu.Lock()
	if !m.currentLocked(epoch, accessToken) {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(Expired)
	m.unlockAndNotify()

	if err := m.refreshShared(ctx, epoch); err != nil {
		return
	}

	m.mu.Lock()
	if m.epoch != epoch || m.session == nil {
		m.mu.Unlock()
		return
	}
	refreshed := m.session.AccessToken
	m.mu.Unlock()

	profile, err := m.client.VerifyUser(ctx, refreshed)
	switch {
	case err == nil:
		m.applyVerified(ctx, epoch, refreshed, profile)
	case errors.Is(err, passport.ErrInvalidToken):
		m.mu.Lock()
		if m.currentLocked(epoch, refreshed) {
			m.logger.Warn().Msg("refreshed token rejected, signing out locally")
			m.teardownLocked(ctx)
		}
		m.unlockAndNotify()
	default:
		m.logger.Warn().Err(err).Msg("verification after refresh inconclusive")
	}
}

func (m *Manager) applyVerified(ctx context.Context, epoch uint64, accessToken string, profile *passport.UserProfile) {
	m.mu.Lock()
	defer m.unlockAndNotify()
	if !m.currentLocked(epoch, accessToken) {
		return
	}
	if m.session.User != nil && m.session.User.ID != profile.ID {
		m.logger.Error().Err(ErrIdentityChanged).Str("user_id", m.session.User.ID).Msg("signing out locally")
		m.teardownLocked(ctx)
		return
	}
	m.session.User = profile
	m.session.Verified = true
	m.setStateLocked(Authenticated)
	if err := m.store.SaveProfile(ctx, m.session.Tier, profile); err != nil {
		m.logger.Warn().Err(err).Msg("profile cached in memory only")
	}
}

// Refresh exchanges the refresh token for a new pair. Concurrent calls share
// one remote exchange. An invalid refresh token ends the session.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.ingest != nil {
		m.mu.Unlock()
		return ErrBusy
	}
	if m.session == nil {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	epoch := m.epoch
	m.mu.Unlock()
	return m.refreshShared(ctx, epoch)
}

func (m *Manager) refreshShared(ctx context.Context, epoch uint64) error {
	m.mu.Lock()
	if c := m.refresh; c != nil {
		m.mu.Unlock()
		select {
		case <-c.done:
			return c.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.epoch != epoch || m.session == nil {
		m.mu.Unlock()
		return ErrSignedOut
	}
	c := &call{
		tokens: passport.TokenPair{AccessToken: m.session.AccessToken, RefreshToken: m.session.RefreshToken},
		done:   make(chan struct{}),
	}
	m.refresh = c
	m.mu.Unlock()

	pair, err := m.client.Refresh(ctx, c.tokens.RefreshToken)

	m.mu.Lock()
	c.err = m.applyRefreshLocked(ctx, epoch, pair, err)
	m.refresh = nil
	m.unlockAndNotify()
	close(c.done)
	return c.err
}

func (m *Manager) applyRefreshLocked(ctx context.Context, epoch uint64, pair passport.TokenPair, refreshErr error) error {
	if m.epoch != epoch || m.session == nil {
		return ErrSignedOut
	}
	if refreshErr != nil {
		// A rejected refresh token, or any failure once the access token is
		// known to be dead, leaves nothing to hold on to.
		if errors.Is(refreshErr, passport.ErrInvalidToken) || m.state == Expired {
			m.logger.Warn().Err(refreshErr).Msg("refresh failed, signing out locally")
			m.teardownLocked(ctx)
		} else {
			m.logger.Warn().Err(refreshErr).Msg("refresh failed, keeping session")
		}
		return fmt.Errorf("[Refresh] %w", refreshErr)
	}

	m.session.AccessToken = pair.AccessToken
	m.session.RefreshToken = pair.RefreshToken
	m.session.Verified = false
	if err := m.store.Save(ctx, m.session.Tier, pair); err != nil {
		m.logger.Warn().Err(err).Msg("refreshed tokens held in memory only")
	}
	// Save drops the cached profile of the previous pair; the user is unchanged.
	if m.session.User != nil {
		if err := m.store.SaveProfile(ctx, m.session.Tier, m.session.User); err != nil {
			m.logger.Warn().Err(err).Msg("profile cached in memory only")
		}
	}
	m.setStateLocked(Authenticated)
	m.logger.Debug().Msg("tokens refreshed")
	return nil
}

// AccessToken returns the current access token, refreshing it first when it
// is a JWT that expires within the refresh skew.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.session == nil || m.state == Anonymous {
		m.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	token := m.session.AccessToken
	m.mu.Unlock()

	exp, ok := passport.AccessTokenExpiry(token)
	if !ok || m.nowTime().Add(m.refreshSkew).Before(exp) {
		return token, nil
	}
	if err := m.Refresh(ctx); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return "", ErrNotAuthenticated
	}
	return m.session.AccessToken, nil
}

// SignOut ends the session. The remote logout is best effort and bounded by
// the logout timeout; the local teardown always happens. Any operation
// already in flight has its result discarded. A login that starts while the
// remote logout is outstanding is kept. Calling SignOut repeatedly is safe.
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	m.cancelBackgroundLocked()
	var accessToken string
	if m.session != nil {
		accessToken = m.session.AccessToken
	}
	m.mu.Unlock()

	if accessToken != "" {
		logoutCtx, cancel := context.WithTimeout(ctx, m.logoutTimeout)
		if err := m.client.Logout(logoutCtx, accessToken); err != nil {
			m.logger.Warn().Err(err).Msg("remote logout failed, continuing locally")
		}
		cancel()
	}

	m.mu.Lock()
	// Anything still holding the logged out token is dead; a different pair
	// installed since belongs to a newer login.
	if m.epoch != epoch && (m.session == nil || m.session.AccessToken != accessToken) {
		m.mu.Unlock()
		m.logger.Info().Msg("signed out, newer session kept")
		return
	}
	m.epoch++
	m.teardownLocked(ctx)
	m.unlockAndNotify()
	m.logger.Info().Msg("signed out")
}

// Resync re-reads the store after it was changed from outside. Tokens that
// disappeared end the session; a different pair is restored.
func (m *Manager) Resync(ctx context.Context) {
	m.mu.Lock()
	if m.ingest != nil || m.refresh != nil {
		m.mu.Unlock()
		return
	}
	tokens, _, ok := m.store.Load(ctx)
	switch {
	case !ok && m.session != nil:
		m.logger.Info().Msg("stored tokens removed externally, ending session")
		m.epoch++
		m.teardownLocked(ctx)
		m.unlockAndNotify()
	case ok && (m.session == nil || m.session.AccessToken != tokens.AccessToken || m.session.RefreshToken != tokens.RefreshToken):
		m.mu.Unlock()
		m.logger.Info().Msg("stored tokens replaced externally, restoring")
		if err := m.RestoreSession(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("restore after external change failed")
		}
	default:
		m.mu.Unlock()
	}
}

// WatchStore resyncs whenever w reports a change, until ctx is done.
func (m *Manager) WatchStore(ctx context.Context, w Watcher) error {
	return w.Watch(ctx, func() { m.Resync(ctx) })
}

// IsLoggedIn reports whether the session is Authenticated.
func (m *Manager) IsLoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Authenticated
}

// Status returns the current state.
func (m *Manager) Status() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a copy of the current session.
func (m *Manager) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	s := *m.session
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s, true
}

// Subscribe registers fn to be called after every state change. Callbacks run
// on the goroutine that caused the change and must not block.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSubscriber
	m.nextSubscriber++
	m.subscribers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

// Wait blocks until background verification has finished.
func (m *Manager) Wait() {
	m.background.Wait()
}

// Close cancels background verification and waits for it to stop. The
// persisted session is left untouched.
func (m *Manager) Close() {
	m.mu.Lock()
	m.cancelBackgroundLocked()
	m.mu.Unlock()
	m.Wait()
}

func (m *Manager) currentLocked(epoch uint64, accessToken string) bool {
	return m.epoch == epoch && m.session != nil && m.session.AccessToken == accessToken
}

// teardownLocked clears the store and returns to Anonymous.
func (m *Manager) teardownLocked(ctx context.Context) {
	m.cancelBackgroundLocked()
	m.session = nil
	m.store.Clear(context.WithoutCancel(ctx))
	m.setStateLocked(Anonymous)
}

func (m *Manager) cancelBackgroundLocked() {
	if m.cancelBackground != nil {
		m.cancelBackground()
		m.cancelBackground = nil
	}
}

func (m *Manager) setStateLocked(state State) {
	if m.session != nil {
		m.session.Status = state
	}
	if m.state == state {
		return
	}
	m.logger.Debug().Stringer("from", m.state).Stringer("to", state).Msg("state change")
	m.state = state
	m.pending = append(m.pending, state)
}

// unlockAndNotify releases the lock, then delivers queued state changes.
func (m *Manager) unlockAndNotify() {
	pending := m.pending
	m.pending = nil
	var subscribers []func(State)
	if len(pending) > 0 {
		subscribers = make([]func(State), 0, len(m.subscribers))
		for _, fn := range m.subscribers {
			subscribers = append(subscribers, fn)
		}
	}
	m.mu.Unlock()

	for _, state := range pending {
		for _, fn := range subscribers {
			fn(state)
		}
	}
}
