package cmd_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/passport-session/internal/cmd"
	apperrors "github.com/jrsteele09/passport-session/internal/errors"
	"github.com/jrsteele09/passport-session/passport"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	server  *httptest.Server
	logouts atomic.Int32
}

func setupCLI(t *testing.T) *stubService {
	t.Helper()

	stub := &stubService{}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case passport.VerifyPath:
			if r.Header.Get("Authorization") != "Bearer T1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"u1","email":"u1@example.com","provider":"google","createdAt":"2024-01-01T00:00:00Z"}`))
		case passport.LogoutPath:
			stub.logouts.Add(1)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(stub.server.Close)

	t.Setenv("ENV", "TEST")
	t.Setenv("PASSPORT_BASE_URL", stub.server.URL)
	t.Setenv("TOKEN_BACKEND", "file")
	t.Setenv("TOKEN_FILE", filepath.Join(t.TempDir(), "tokens.json"))
	return stub
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	root := cmd.NewRootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSubcommandsRegistered(t *testing.T) {
	root := cmd.NewRootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "callback", "status", "refresh", "logout"} {
		require.True(t, names[want], want)
	}
	require.NotNil(t, root.PersistentFlags().Lookup("config"))
	require.NotNil(t, root.PersistentFlags().Lookup("log-level"))
}

func TestCallbackThenStatusThenLogout(t *testing.T) {
	stub := setupCLI(t)

	out, err := run(t, "callback", stub.server.URL+"/auth/callback?token=T1&refreshToken=R1")
	require.NoError(t, err)
	require.Contains(t, out, "authenticated")
	require.Contains(t, out, "u1 (google)")

	out, err = run(t, "status", "--json")
	require.NoError(t, err)
	var view map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Equal(t, "authenticated", view["status"])
	require.Equal(t, true, view["loggedIn"])
	require.Equal(t, true, view["verified"])
	require.Equal(t, "u1", view["userId"])
	require.Equal(t, "durable", view["tier"])

	out, err = run(t, "logout")
	require.NoError(t, err)
	require.Contains(t, out, "signed out")
	require.EqualValues(t, 1, stub.logouts.Load())

	out, err = run(t, "status")
	require.NoError(t, err)
	require.Contains(t, out, "anonymous")
}

func TestCallbackRejectedToken(t *testing.T) {
	stub := setupCLI(t)

	_, err := run(t, "callback", stub.server.URL+"/auth/callback?token=BAD&refreshToken=R1")
	require.ErrorIs(t, err, passport.ErrInvalidToken)

	out, err := run(t, "status")
	require.NoError(t, err)
	require.Contains(t, out, "anonymous")
}

func TestCallbackURLWithoutTokens(t *testing.T) {
	setupCLI(t)

	_, err := run(t, "callback", "http://localhost:8080/auth/callback?token=T1")
	require.True(t, apperrors.Is(err, apperrors.ErrInvalidCallbackURL))
}

func TestRefreshWithoutEndpoint(t *testing.T) {
	stub := setupCLI(t)

	_, err := run(t, "callback", stub.server.URL+"/auth/callback?token=T1&refreshToken=R1")
	require.NoError(t, err)

	_, err = run(t, "refresh")
	require.ErrorIs(t, err, passport.ErrRefreshUnsupported)

	// An unconfigured refresh endpoint does not end a healthy session.
	out, err := run(t, "status")
	require.NoError(t, err)
	require.Contains(t, out, "authenticated")
}

func TestInvalidConfigFile(t *testing.T) {
	setupCLI(t)

	_, err := run(t, "status", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
