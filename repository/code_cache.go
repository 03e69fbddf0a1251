package repository

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by CodeCache.Get when the code is not cached.
var ErrCacheMiss = errors.New("code cache miss")

// CodeCache maps live codes to membership ids. It only shortens lookups; the
// membership store stays the authority for resolution and uniqueness.
type CodeCache interface {
	Get(ctx context.Context, code string) (string, error)
	Set(ctx context.Context, code, membershipID string) error
	Delete(ctx context.Context, codes ...string) error
}
