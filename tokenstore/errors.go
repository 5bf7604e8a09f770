package tokenstore

import "errors"

var (
	// ErrStorageUnavailable reports that a tier's storage failed and the tier
	// now runs memory-only. It is never fatal: the write was completed in memory.
	ErrStorageUnavailable = errors.New("token storage unavailable")

	// ErrPartialTokens rejects a save that carries only one of the two tokens.
	ErrPartialTokens = errors.New("access and refresh tokens must be saved together")

	ErrUnknownTier = errors.New("unknown storage tier")
)
