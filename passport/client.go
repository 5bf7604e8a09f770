package passport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jrsteele09/passport-session/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Remote endpoints, relative to the configured base URL.
const (
	VerifyPath = "/api/v1/auth/user"
	LogoutPath = "/api/v1/auth/logout"

	RequestIDHeader  = "X-Request-ID"
	defaultUserAgent = "passport-session"

	// maxProfileBytes bounds the profile body we are willing to decode.
	maxProfileBytes = 1 << 20
)

// Client issues the remote calls against the authentication service. It holds
// no session state and never retries; retry policy belongs to the caller.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	userAgent  string
	refreshURL string
	issuer     string
	clientID   string
	logger     zerolog.Logger
	validate   *validator.Validate

	endpointLock sync.Mutex
	tokenURL     string // resolved through discovery
}

// ClientOption modifies a Client during construction.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client. Its transport is wrapped so
// that every request still carries a request ID.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		copied := *hc
		c.httpClient = &copied
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// NewClient builds a Client from the passport configuration.
func NewClient(cfg config.PassportConfig, options ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("[NewClient] config is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.GetBaseURL(), "/"))
	if err != nil {
		return nil, fmt.Errorf("[NewClient] invalid base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("[NewClient] base url %q must be absolute", cfg.GetBaseURL())
	}

	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.GetRequestTimeout()},
		userAgent:  defaultUserAgent,
		refreshURL: cfg.GetRefreshURL(),
		issuer:     cfg.GetIssuer(),
		clientID:   cfg.GetClientID(),
		logger:     log.Logger,
		validate:   validator.New(),
	}
	for _, opt := range options {
		opt(c)
	}

	transport := c.httpClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	c.httpClient.Transport = &requestIDTransport{base: transport, userAgent: c.userAgent}
	c.logger = c.logger.With().Str("component", "passport").Logger()
	return c, nil
}

// VerifyUser fetches the profile of the user owning accessToken.
func (c *Client) VerifyUser(ctx context.Context, accessToken string) (*UserProfile, error) {
	const op = "verify"
	if accessToken == "" {
		return nil, invalidToken(op, 0, errors.New("empty access token"))
	}

	resp, err := c.do(ctx, op, http.MethodGet, VerifyPath, accessToken)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	if err := statusError(op, resp.StatusCode); err != nil {
		c.logger.Debug().Err(err).Msg("verification rejected")
		return nil, err
	}

	var profile UserProfile
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(&profile); err != nil {
		return nil, serverError(op, resp.StatusCode, fmt.Errorf("decode profile: %w", err))
	}
	if err := c.validate.Struct(&profile); err != nil {
		return nil, serverError(op, resp.StatusCode, fmt.Errorf("invalid profile: %w", err))
	}
	return &profile, nil
}

// Logout revokes accessToken on the remote service. Callers tear down their
// local session regardless of the outcome.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	const op = "logout"
	if accessToken == "" {
		return invalidToken(op, 0, errors.New("empty access token"))
	}

	resp, err := c.do(ctx, op, http.MethodPost, LogoutPath, accessToken)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)
	return statusError(op, resp.StatusCode)
}

func (c *Client) do(ctx context.Context, op, method, path, accessToken string) (*http.Response, error) {
	endpoint := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), nil)
	if err != nil {
		return nil, serverError(op, 0, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Msg("request failed")
		return nil, unreachable(op, err)
	}
	c.logger.Debug().Str("op", op).Int("status", resp.StatusCode).Msg("response received")
	return resp, nil
}

func statusError(op string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return invalidToken(op, status, nil)
	default:
		return serverError(op, status, nil)
	}
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxProfileBytes))
	_ = body.Close()
}

// requestIDTransport tags every outgoing request so it can be correlated with
// the remote service's logs.
type requestIDTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *requestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	if r.Header.Get(RequestIDHeader) == "" {
		r.Header.Set(RequestIDHeader, uuid.NewString())
	}
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(r)
}
