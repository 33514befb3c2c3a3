// Package cache is the TTL result cache that sits in front of provider calls.
//
// Cache wraps a Store backend and owns the failure policy: a backend error on
// read is a miss and a backend error on write is a no-op, so a broken cache
// can slow a search down but never fail it.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Cache is the JSON-typed facade over a Store.
type Cache struct {
	store Store
}

// New wraps store.
func New(store Store) *Cache {
	return &Cache{store: store}
}

// Store returns the underlying backend.
func (c *Cache) Store() Store {
	return c.store
}

// Get loads key into dst. It reports false on a miss, an expired entry, a
// backend failure, or a payload that no longer decodes into dst.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		zap.L().Warn("cache: get failed, treating as miss",
			zap.String("cache_key", keyPrefix(key)),
			zap.Error(err),
		)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		zap.L().Warn("cache: undecodable entry, treating as miss",
			zap.String("cache_key", keyPrefix(key)),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Set stores value under key for ttl. A non-positive ttl removes the key so a
// following Get misses. Failures are logged and dropped.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		if err := c.store.Delete(ctx, key); err != nil {
			zap.L().Warn("cache: delete failed", zap.String("cache_key", keyPrefix(key)), zap.Error(err))
		}
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		zap.L().Warn("cache: marshal failed, not caching", zap.String("cache_key", keyPrefix(key)), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		zap.L().Warn("cache: set failed", zap.String("cache_key", keyPrefix(key)), zap.Error(err))
	}
}

// ScanByPrefix returns the raw payload of every live entry under prefix. A
// backend failure yields an empty result.
func (c *Cache) ScanByPrefix(ctx context.Context, prefix string) [][]byte {
	vals, err := c.store.ScanPrefix(ctx, prefix)
	if err != nil {
		zap.L().Warn("cache: scan failed", zap.String("prefix", prefix), zap.Error(err))
		return nil
	}
	return vals
}

// Scan decodes every live entry under prefix into a T. Entries that fail to
// decode are skipped.
func Scan[T any](ctx context.Context, c *Cache, prefix string) []T {
	raws := c.ScanByPrefix(ctx, prefix)
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			zap.L().Debug("cache: skipping undecodable entry", zap.String("prefix", prefix), zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out
}

// Clear empties the backend. It is an operator action, so unlike the read
// and write paths it reports failure.
func (c *Cache) Clear(ctx context.Context) error {
	return eris.Wrap(c.store.Clear(ctx), "cache: clear")
}

// Sweep purges expired rows on backends that keep them. It returns zero for
// backends with native expiry.
func (c *Cache) Sweep(ctx context.Context) (int, error) {
	sw, ok := c.store.(Sweeper)
	if !ok {
		return 0, nil
	}
	n, err := sw.DeleteExpired(ctx)
	return n, eris.Wrap(err, "cache: sweep")
}

// StartSweeper calls Sweep every interval until ctx is done. It is a no-op
// when interval is not positive or the backend expires entries natively.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	if _, ok := c.store.(Sweeper); !ok {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := c.Sweep(ctx)
				if err != nil {
					zap.L().Warn("cache: sweep failed", zap.Error(err))
					continue
				}
				if n > 0 {
					zap.L().Debug("cache: swept expired entries", zap.Int("removed", n))
				}
			}
		}
	}()
}

// Close releases the backend.
func (c *Cache) Close() error {
	return c.store.Close()
}

// keyPrefix trims a key to its namespace and the start of its hash for logs.
func keyPrefix(key string) string {
	ns, rest, ok := strings.Cut(key, ":")
	if !ok {
		return key
	}
	if len(rest) > 12 {
		rest = rest[:12]
	}
	return ns + ":" + rest
}
