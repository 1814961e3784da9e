package repository

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Store.Get for absent or expired keys.
	ErrNotFound = errors.New("state key not found")
	// ErrCorrupt is returned by Store.Get when the stored record cannot be read.
	ErrCorrupt = errors.New("state record is corrupt")
)

// Store is the raw key/value layer under StateRepo. A zero ttl means the
// value never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
