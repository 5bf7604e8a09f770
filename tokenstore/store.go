package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jrsteele09/passport-session/internal/config"
	"github.com/jrsteele09/passport-session/passport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Tier selects where a session is persisted.
type Tier int

const (
	// Durable survives process restarts.
	Durable Tier = iota
	// Session lives only as long as the session tier's backing store.
	Session
)

// loadOrder is the order Load consults the tiers in.
var loadOrder = []Tier{Durable, Session}

func (t Tier) String() string {
	switch t {
	case Durable:
		return config.TierDurable
	case Session:
		return config.TierSession
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier maps the configuration names onto a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case config.TierDurable:
		return Durable, nil
	case config.TierSession:
		return Session, nil
	}
	return Durable, fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

// Tokens is the credential pair handed over by the login callback.
type Tokens = passport.TokenPair

type tierState struct {
	repo     Repo
	fallback *InMemoryRepo
	degraded bool
}

// Store is the two-tier persistence policy for a session's tokens. Reads
// prefer the durable tier. A tier whose storage fails degrades to memory and
// stops reading its repo, so external changes to that repo go unseen until a
// later Clear deletes every key from it successfully and the tier recovers.
type Store struct {
	mu     sync.Mutex
	tiers  map[Tier]*tierState
	logger zerolog.Logger
}

type StoreOption func(*Store)

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Store. A nil repo gives that tier an InMemoryRepo.
func New(durable, session Repo, options ...StoreOption) *Store {
	s := &Store{
		tiers: map[Tier]*tierState{
			Durable: newTierState(durable),
			Session: newTierState(session),
		},
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "tokenstore").Logger()
	return s
}

func newTierState(repo Repo) *tierState {
	if repo == nil {
		repo = NewInMemoryRepo()
	}
	return &tierState{repo: repo, fallback: NewInMemoryRepo()}
}

// Save replaces any existing session with tokens in tier. The other tier is
// cleared first so a later Load can never return the previous session.
// Writes go access token first, then refresh token. A storage failure moves
// the tier to memory and the returned error wraps ErrStorageUnavailable; the
// tokens are still held.
func (s *Store) Save(ctx context.Context, tier Tier, tokens Tokens) error {
	if !tokens.Complete() {
		return ErrPartialTokens
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.tiers[tier]
	if !ok {
		return fmt.Errorf("[Store Save] %w: %s", ErrUnknownTier, tier)
	}
	for _, other := range loadOrder {
		if other != tier {
			s.clearTierLocked(ctx, other)
		}
	}
	// The cached profile belongs to the previous session.
	_ = s.deleteLocked(ctx, tier, ts, KeyUser)

	pairs := [][2]string{
		{KeyAccessToken, tokens.AccessToken},
		{KeyRefreshToken, tokens.RefreshToken},
	}
	if !ts.degraded {
		var writeErr error
		for _, kv := range pairs {
			if writeErr = ts.repo.Upsert(ctx, kv[0], kv[1]); writeErr != nil {
				break
			}
		}
		if writeErr == nil {
			return nil
		}
		s.degradeLocked(tier, ts, writeErr)
		// Do not leave half a session behind in the failed store.
		_ = ts.repo.Delete(ctx, KeyAccessToken)
		_ = ts.repo.Delete(ctx, KeyRefreshToken)
		for _, kv := range pairs {
			_ = ts.fallback.Upsert(ctx, kv[0], kv[1])
		}
		return fmt.Errorf("[Store Save] %s tier: %w: %v", tier, ErrStorageUnavailable, writeErr)
	}

	for _, kv := range pairs {
		_ = ts.fallback.Upsert(ctx, kv[0], kv[1])
	}
	return nil
}

// Load returns the first tier, durable before session, holding both tokens.
// A tier holding only one token is treated as empty.
func (s *Store) Load(ctx context.Context) (Tokens, Tier, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tier := range loadOrder {
		ts := s.tiers[tier]
		access, accessOK := s.readLocked(ctx, tier, ts, KeyAccessToken)
		refresh, refreshOK := s.readLocked(ctx, tier, ts, KeyRefreshToken)
		switch {
		case accessOK && refreshOK:
			return Tokens{AccessToken: access, RefreshToken: refresh}, tier, true
		case accessOK || refreshOK:
			s.logger.Warn().Str("tier", tier.String()).Msg("ignoring half-written session")
		}
	}
	return Tokens{}, Durable, false
}

// Clear removes every key from both tiers. Storage failures are logged and
// swallowed.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tier := range loadOrder {
		s.clearTierLocked(ctx, tier)
	}
}

// SaveProfile caches the verified user profile alongside the tokens in tier.
func (s *Store) SaveProfile(ctx context.Context, tier Tier, profile *passport.UserProfile) error {
	if profile == nil {
		return nil
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("[Store SaveProfile] marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.tiers[tier]
	if !ok {
		return fmt.Errorf("[Store SaveProfile] %w: %s", ErrUnknownTier, tier)
	}
	if !ts.degraded {
		err := ts.repo.Upsert(ctx, KeyUser, string(data))
		if err == nil {
			return nil
		}
		s.degradeLocked(tier, ts, err)
		_ = ts.fallback.Upsert(ctx, KeyUser, string(data))
		return fmt.Errorf("[Store SaveProfile] %s tier: %w: %v", tier, ErrStorageUnavailable, err)
	}
	return ts.fallback.Upsert(ctx, KeyUser, string(data))
}

// LoadProfile returns the cached profile for tier, if any.
func (s *Store) LoadProfile(ctx context.Context, tier Tier) (*passport.UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.tiers[tier]
	if !ok {
		return nil, false
	}
	data, ok := s.readLocked(ctx, tier, ts, KeyUser)
	if !ok {
		return nil, false
	}
	var profile passport.UserProfile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		s.logger.Warn().Err(err).Str("tier", tier.String()).Msg("discarding unreadable cached profile")
		return nil, false
	}
	return &profile, true
}

// Degraded reports whether tier has fallen back to memory-only storage.
func (s *Store) Degraded(tier Tier) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.tiers[tier]
	return ok && ts.degraded
}

func (s *Store) readLocked(ctx context.Context, tier Tier, ts *tierState, key string) (string, bool) {
	if ts.degraded {
		v, err := ts.fallback.Get(ctx, key)
		return v, err == nil && v != ""
	}
	v, err := ts.repo.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", false
	}
	if err != nil {
		s.degradeLocked(tier, ts, err)
		return "", false
	}
	return v, v != ""
}

func (s *Store) deleteLocked(ctx context.Context, tier Tier, ts *tierState, key string) error {
	_ = ts.fallback.Delete(ctx, key)
	err := ts.repo.Delete(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("tier", tier.String()).Str("key", key).Msg("delete failed")
	}
	return err
}

// clearTierLocked empties tier. A degraded tier whose repo accepted every
// delete is empty on both sides and goes back to using the repo.
func (s *Store) clearTierLocked(ctx context.Context, tier Tier) {
	ts := s.tiers[tier]
	healthy := true
	for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyUser} {
		if err := s.deleteLocked(ctx, tier, ts, key); err != nil {
			healthy = false
		}
	}
	if ts.degraded && healthy {
		ts.degraded = false
		s.logger.Info().Str("tier", tier.String()).Msg("storage reachable again")
	}
}

func (s *Store) degradeLocked(tier Tier, ts *tierState, cause error) {
	if ts.degraded {
		return
	}
	ts.degraded = true
	s.logger.Error().Err(cause).Str("tier", tier.String()).Msg("storage unavailable, continuing in memory only")
}
