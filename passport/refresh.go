package passport

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Refresh exchanges refreshToken for a new token pair using the OAuth2
// refresh_token grant. When the response carries no new refresh token the
// old one is kept.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	const op = "refresh"
	if refreshToken == "" {
		return TokenPair{}, invalidToken(op, 0, errors.New("empty refresh token"))
	}

	tokenURL, err := c.tokenEndpoint(ctx)
	if err != nil {
		return TokenPair{}, err
	}

	conf := &oauth2.Config{
		ClientID: c.clientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return TokenPair{}, refreshError(ctx, err)
	}

	pair := TokenPair{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	c.logger.Debug().Msg("token pair refreshed")
	return pair, nil
}

// tokenEndpoint resolves the refresh endpoint: the configured URL wins,
// otherwise the issuer's discovery document is consulted once and cached.
func (c *Client) tokenEndpoint(ctx context.Context) (string, error) {
	if c.refreshURL != "" {
		return c.refreshURL, nil
	}
	if c.issuer == "" {
		return "", ErrRefreshUnsupported
	}

	c.endpointLock.Lock()
	defer c.endpointLock.Unlock()
	if c.tokenURL != "" {
		return c.tokenURL, nil
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, c.httpClient), c.issuer)
	if err != nil {
		c.logger.Warn().Err(err).Str("issuer", c.issuer).Msg("discovery failed")
		return "", unreachable("discovery", err)
	}
	tokenURL := provider.Endpoint().TokenURL
	if tokenURL == "" {
		return "", fmt.Errorf("%w: issuer %s advertises no token endpoint", ErrRefreshUnsupported, c.issuer)
	}
	c.tokenURL = tokenURL
	return tokenURL, nil
}

func refreshError(ctx context.Context, err error) error {
	const op = "refresh"
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		// RFC 6749 answers a revoked or expired refresh token with 400 invalid_grant.
		if status == http.StatusBadRequest || status == http.StatusUnauthorized {
			return invalidToken(op, status, err)
		}
		return serverError(op, status, err)
	}
	if ctx.Err() != nil {
		return unreachable(op, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return unreachable(op, err)
	}
	// Malformed token responses surface as plain errors from oauth2.
	return serverError(op, 0, err)
}
