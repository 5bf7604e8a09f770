package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/passport-session/internal/config"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "passport.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	c := config.New()

	require.Equal(t, config.DefaultBaseURL, c.GetBaseURL())
	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, config.BackendFile, c.GetTokenBackend())
	require.Equal(t, config.BackendMemory, c.GetSessionBackend())
	require.Equal(t, config.TierDurable, c.GetLoginTier())
	require.Equal(t, 5*time.Second, c.GetLogoutTimeout())
	require.Empty(t, c.GetRefreshURL())
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	path := writeConfigFile(t, `
env: TEST
port: "9090"
passport:
  base_url: https://passport.example.com
  refresh_url: https://passport.example.com/oauth/token
  logout_timeout: 2s
storage:
  backend: sqlite
  login_tier: session
server:
  allowed_origins: ["https://app.example.com"]
`)

	c, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "TEST", c.GetEnv())
	require.Equal(t, ":9090", c.GetPort())
	require.Equal(t, "https://passport.example.com", c.GetBaseURL())
	require.Equal(t, 2*time.Second, c.GetLogoutTimeout())
	require.Equal(t, config.BackendSQLite, c.GetTokenBackend())
	require.Equal(t, config.TierSession, c.GetLoginTier())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://app.example.com"))

	t.Setenv("PASSPORT_BASE_URL", "http://localhost:4000")
	t.Setenv("PASSPORT_LOGOUT_TIMEOUT", "250ms")
	require.Equal(t, "http://localhost:4000", c.GetBaseURL())
	require.Equal(t, 250*time.Millisecond, c.GetLogoutTimeout())
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := writeConfigFile(t, `
storage:
  backend: floppy
`)

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
