package filerepo_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/passport-session/tokenstore"
	"github.com/jrsteele09/passport-session/tokenstore/filerepo"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T, options ...filerepo.Option) *filerepo.Repo {
	t.Helper()

	repo, err := filerepo.New(filepath.Join(t.TempDir(), "passport", "tokens.json"), options...)
	require.NoError(t, err)
	return repo
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	_, err := repo.Get(ctx, tokenstore.KeyAccessToken)
	require.ErrorIs(t, err, tokenstore.ErrNotFound)

	require.NoError(t, repo.Upsert(ctx, tokenstore.KeyAccessToken, "T1"))
	require.NoError(t, repo.Upsert(ctx, tokenstore.KeyRefreshToken, "R1"))

	v, err := repo.Get(ctx, tokenstore.KeyRefreshToken)
	require.NoError(t, err)
	require.Equal(t, "R1", v)

	info, err := os.Stat(repo.Path())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestDeletingLastKeyRemovesFile(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.Upsert(ctx, tokenstore.KeyAccessToken, "T1"))
	require.NoError(t, repo.Delete(ctx, tokenstore.KeyAccessToken))
	require.NoError(t, repo.Delete(ctx, tokenstore.KeyAccessToken))

	_, err := os.Stat(repo.Path())
	require.True(t, os.IsNotExist(err))
}

func TestEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.json")

	repo, err := filerepo.New(path, filerepo.WithEncryptionKey("correct horse"))
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, tokenstore.KeyAccessToken, "super-secret-access"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "super-secret-access")

	v, err := repo.Get(ctx, tokenstore.KeyAccessToken)
	require.NoError(t, err)
	require.Equal(t, "super-secret-access", v)

	wrongKey, err := filerepo.New(path, filerepo.WithEncryptionKey("battery staple"))
	require.NoError(t, err)
	_, err = wrongKey.Get(ctx, tokenstore.KeyAccessToken)
	require.ErrorIs(t, err, filerepo.ErrCorrupt)

	// Deleting through an unreadable file discards it.
	require.NoError(t, wrongKey.Delete(ctx, tokenstore.KeyAccessToken))
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestStoreOverFileRepoSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.json")

	first, err := filerepo.New(path)
	require.NoError(t, err)
	store := tokenstore.New(first, nil)
	require.NoError(t, store.Save(ctx, tokenstore.Durable, tokenstore.Tokens{AccessToken: "T1", RefreshToken: "R1"}))

	second, err := filerepo.New(path)
	require.NoError(t, err)
	restarted := tokenstore.New(second, nil)
	got, tier, ok := restarted.Load(ctx)
	require.True(t, ok)
	require.Equal(t, "T1", got.AccessToken)
	require.Equal(t, tokenstore.Durable, tier)
}

func TestWatchReportsExternalRemoval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := newRepo(t)
	require.NoError(t, repo.Upsert(ctx, tokenstore.KeyAccessToken, "T1"))

	var calls atomic.Int32
	require.NoError(t, repo.Watch(ctx, func() { calls.Add(1) }))

	require.NoError(t, os.Remove(repo.Path()))
	require.Eventually(t, func() bool { return calls.Load() > 0 }, 3*time.Second, 20*time.Millisecond)
}
