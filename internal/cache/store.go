package cache

import (
	"context"
	"time"
)

// Store is a TTL key-value backend. Implementations must never return an
// entry after its expiry; expired entries read as a miss.
type Store interface {
	// Get returns the value for key and whether it was found and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set replaces the value for key wholesale. ttl is always positive.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// ScanPrefix returns every unexpired value whose key starts with prefix,
	// ordered by key.
	ScanPrefix(ctx context.Context, prefix string) ([][]byte, error)
	// Clear removes every entry owned by the store.
	Clear(ctx context.Context) error
	Close() error
}

// Sweeper is implemented by stores that keep expired rows until they are
// explicitly purged. Stores with native expiry (redis, badger) do not need it.
type Sweeper interface {
	DeleteExpired(ctx context.Context) (int, error)
}
