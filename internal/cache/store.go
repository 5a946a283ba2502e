// Package cache is a small key/value store with TTLs. The sync process uses
// it for the cycle lock and for the cached token list served over HTTP.
package cache

import (
	"context"
	"time"
)

type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// DeleteIfEquals removes key only while it still holds value.
	DeleteIfEquals(ctx context.Context, key string, value []byte) (bool, error)
	// ExpireIfEquals resets the TTL of key only while it still holds value.
	ExpireIfEquals(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}
