package cache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

const redisScanCount = 200

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Namespace is prepended to every key so several deployments can share
	// one redis database.
	Namespace string
}

// RedisStore is a Store backed by redis, shared across instances and
// surviving restarts. Expiry uses native key TTLs.
type RedisStore struct {
	client redis.UniversalClient
	ns     string
}

// NewRedis connects to redis and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrapf(err, "redis: ping %s", opts.Addr)
	}
	return NewRedisFromClient(client, opts.Namespace), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client redis.UniversalClient, namespace string) *RedisStore {
	return &RedisStore{client: client, ns: namespace}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.ns+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "redis: get")
	}
	return val, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return eris.Wrap(r.client.Set(ctx, r.ns+key, value, ttl).Err(), "redis: set")
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return eris.Wrap(r.client.Del(ctx, r.ns+key).Err(), "redis: del")
}

// ScanPrefix walks matching keys with SCAN and fetches them in one MGET.
// Keys that expire between the two round trips are skipped.
func (r *RedisStore) ScanPrefix(ctx context.Context, prefix string) ([][]byte, error) {
	keys, err := r.scanKeys(ctx, globEscape(r.ns+prefix)+"*")
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return [][]byte{}, nil
	}
	sort.Strings(keys)

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, eris.Wrap(err, "redis: mget")
	}
	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			out = append(out, []byte(s))
		}
	}
	return out, nil
}

// Clear deletes every key in the store's namespace.
func (r *RedisStore) Clear(ctx context.Context) error {
	keys, err := r.scanKeys(ctx, globEscape(r.ns)+"*")
	if err != nil {
		return err
	}
	for start := 0; start < len(keys); start += redisScanCount {
		end := min(start+redisScanCount, len(keys))
		if err := r.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return eris.Wrap(err, "redis: clear")
		}
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) scanKeys(ctx context.Context, match string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	seen := make(map[string]bool)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, match, redisScanCount).Result()
		if err != nil {
			return nil, eris.Wrap(err, "redis: scan")
		}
		// SCAN may return a key more than once.
		for _, k := range batch {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// globEscape quotes redis MATCH metacharacters.
func globEscape(s string) string {
	return globReplacer.Replace(s)
}
