package tokenstore

import (
	"context"
	"errors"
)

// Fixed keys written into every tier.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
)

// ErrNotFound is returned by Repo.Get when the key has never been written or
// has been deleted.
var ErrNotFound = errors.New("key not found")

// Repo is the key/value persistence behind a single storage tier.
// Implementations must treat Delete of a missing key as a success.
type Repo interface {
	Get(ctx context.Context, key string) (string, error)
	Upsert(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
