package session

import "errors"

var (
	// ErrNoCallback means the callback carried no token pair: nothing to do.
	ErrNoCallback = errors.New("callback carries no token pair")

	// ErrBusy rejects an operation while a login or refresh is in flight.
	ErrBusy = errors.New("session operation already in progress")

	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrSignedOut is returned by an operation whose result was discarded
	// because SignOut ran while it was outstanding.
	ErrSignedOut = errors.New("session signed out while operation was in flight")

	// ErrIdentityChanged is logged when re-verification returns another user.
	ErrIdentityChanged = errors.New("verified user differs from session user")
)
