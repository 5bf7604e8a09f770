package passport_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/passport-session/passport"
	"github.com/stretchr/testify/require"
)

const (
	testAccessToken  = "T1"
	testRefreshToken = "R1"
)

type testConfig struct {
	baseURL    string
	refreshURL string
	issuer     string
	timeout    time.Duration
}

func (c testConfig) GetBaseURL() string    { return c.baseURL }
func (c testConfig) GetRefreshURL() string { return c.refreshURL }
func (c testConfig) GetIssuer() string     { return c.issuer }
func (c testConfig) GetClientID() string   { return "test-client" }
func (c testConfig) GetRequestTimeout() time.Duration {
	if c.timeout == 0 {
		return 5 * time.Second
	}
	return c.timeout
}
func (c testConfig) GetLogoutTimeout() time.Duration { return time.Second }

func newTestClient(t *testing.T, cfg testConfig) *passport.Client {
	t.Helper()

	client, err := passport.NewClient(cfg)
	require.NoError(t, err)
	return client
}

func profileJSON(id string) map[string]any {
	return map[string]any{
		"id":          id,
		"email":       "jane@example.com",
		"name":        "Jane Doe",
		"displayName": "jane",
		"bio":         "",
		"picture":     "https://cdn.example.com/jane.png",
		"banner":      "",
		"ethAddress":  nil,
		"provider":    "google",
		"createdAt":   "2024-03-01T10:00:00Z",
	}
}

func TestVerifyUserSuccess(t *testing.T) {
	var requestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, passport.VerifyPath, r.URL.Path)
		require.Equal(t, "Bearer "+testAccessToken, r.Header.Get("Authorization"))
		requestID = r.Header.Get(passport.RequestIDHeader)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(profileJSON("u1"))
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig{baseURL: srv.URL})
	profile, err := client.VerifyUser(context.Background(), testAccessToken)
	require.NoError(t, err)
	require.Equal(t, "u1", profile.ID)
	require.Equal(t, passport.ProviderGoogle, profile.Provider)
	require.Nil(t, profile.EthAddress)
	require.Equal(t, 2024, profile.CreatedAt.Year())
	require.NotEmpty(t, requestID)
}

func TestVerifyUserStatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		kind      error
		retriable bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, kind: passport.ErrInvalidToken},
		{name: "forbidden", status: http.StatusForbidden, kind: passport.ErrServerError, retriable: true},
		{name: "internal", status: http.StatusInternalServerError, kind: passport.ErrServerError, retriable: true},
		{name: "unavailable", status: http.StatusServiceUnavailable, kind: passport.ErrServerError, retriable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client := newTestClient(t, testConfig{baseURL: srv.URL})
			_, err := client.VerifyUser(context.Background(), testAccessToken)
			require.ErrorIs(t, err, tt.kind)
			require.Equal(t, tt.status, passport.StatusCode(err))
			require.Equal(t, tt.retriable, passport.IsRetriable(err))
		})
	}
}

func TestVerifyUserUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := newTestClient(t, testConfig{baseURL: url})
	_, err := client.VerifyUser(context.Background(), testAccessToken)
	require.ErrorIs(t, err, passport.ErrUnreachable)
	require.True(t, passport.IsRetriable(err))
}

func TestVerifyUserTimeoutIsUnreachable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := newTestClient(t, testConfig{baseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.VerifyUser(ctx, testAccessToken)
	require.ErrorIs(t, err, passport.ErrUnreachable)
}

func TestVerifyUserRejectsMalformedProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := profileJSON("u1")
		body["provider"] = "myspace"
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig{baseURL: srv.URL})
	_, err := client.VerifyUser(context.Background(), testAccessToken)
	require.ErrorIs(t, err, passport.ErrServerError)
}

func TestVerifyUserToleratesLooseProfileFields(t *testing.T) {
	tests := []struct {
		name      string
		createdAt string
		want      time.Time
	}{
		{name: "no zone", createdAt: "2024-03-01T10:00:00", want: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{name: "date only", createdAt: "2024-03-01", want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{name: "empty", createdAt: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body := profileJSON("u1")
				body["email"] = "not an address"
				body["picture"] = "avatar.png"
				body["createdAt"] = tt.createdAt
				_ = json.NewEncoder(w).Encode(body)
			}))
			defer srv.Close()

			client := newTestClient(t, testConfig{baseURL: srv.URL})
			profile, err := client.VerifyUser(context.Background(), testAccessToken)
			require.NoError(t, err)
			require.Equal(t, "not an address", profile.Email)
			require.Equal(t, "avatar.png", profile.Picture)
			require.True(t, tt.want.Equal(profile.CreatedAt))
		})
	}
}

func TestVerifyUserRejectsUnparseableCreatedAt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := profileJSON("u1")
		body["createdAt"] = "last tuesday"
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig{baseURL: srv.URL})
	_, err := client.VerifyUser(context.Background(), testAccessToken)
	require.ErrorIs(t, err, passport.ErrServerError)
}

func TestVerifyUserEmptyTokenSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig{baseURL: srv.URL})
	_, err := client.VerifyUser(context.Background(), "")
	require.ErrorIs(t, err, passport.ErrInvalidToken)
	require.Zero(t, calls.Load())
}

func TestLogout(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusNoContent} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, passport.LogoutPath, r.URL.Path)
			require.Equal(t, "Bearer "+testAccessToken, r.Header.Get("Authorization"))
			w.WriteHeader(status)
		}))

		client := newTestClient(t, testConfig{baseURL: srv.URL})
		require.NoError(t, client.Logout(context.Background(), testAccessToken))
		srv.Close()
	}
}

func TestLogoutServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig{baseURL: srv.URL})
	err := client.Logout(context.Background(), testAccessToken)
	require.ErrorIs(t, err, passport.ErrServerError)
	require.Equal(t, http.StatusBadGateway, passport.StatusCode(err))
}

func TestNewClientRejectsRelativeBaseURL(t *testing.T) {
	_, err := passport.NewClient(testConfig{baseURL: "api.example.com"})
	require.Error(t, err)
}

func TestAccessTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("irrelevant"))
	require.NoError(t, err)

	got, ok := passport.AccessTokenExpiry(signed)
	require.True(t, ok)
	require.True(t, exp.Equal(got))

	_, ok = passport.AccessTokenExpiry("opaque-token")
	require.False(t, ok)
}

func TestAuthErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := &passport.AuthError{Op: "verify", Kind: passport.ErrUnreachable, Err: cause}
	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, passport.ErrUnreachable)
	require.Contains(t, err.Error(), "verify")
}
