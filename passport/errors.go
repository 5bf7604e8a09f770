package passport

import (
	"errors"
	"fmt"
)

// Outcome kinds. Every failure returned by Client wraps exactly one of the
// first three, so callers can branch with errors.Is.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnreachable  = errors.New("auth service unreachable")
	ErrServerError  = errors.New("auth service error")

	// ErrRefreshUnsupported is returned by Refresh when neither a refresh URL
	// nor an issuer for discovery is configured.
	ErrRefreshUnsupported = errors.New("token refresh endpoint not configured")
)

// AuthError is the typed outcome of a failed remote call.
type AuthError struct {
	Op     string // verify, logout, refresh, discovery
	Kind   error  // ErrInvalidToken, ErrUnreachable or ErrServerError
	Status int    // HTTP status, zero when no response was received
	Err    error  // underlying cause, may be nil
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("passport %s: %v", e.Op, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsRetriable reports whether err is a transport or server failure the caller
// may retry. Invalid tokens are never retriable.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrServerError)
}

// StatusCode returns the HTTP status carried by err, or zero.
func StatusCode(err error) int {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Status
	}
	return 0
}

func invalidToken(op string, status int, cause error) error {
	return &AuthError{Op: op, Kind: ErrInvalidToken, Status: status, Err: cause}
}

func unreachable(op string, cause error) error {
	return &AuthError{Op: op, Kind: ErrUnreachable, Err: cause}
}

func serverError(op string, status int, cause error) error {
	return &AuthError{Op: op, Kind: ErrServerError, Status: status, Err: cause}
}
