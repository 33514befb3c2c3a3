package cache

import (
	"context"

	"github.com/rotisserie/eris"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendBadger   = "badger"
)

// Options selects and configures a backend for Open.
type Options struct {
	Backend     string
	MaxEntries  int
	Redis       RedisOptions
	DatabaseURL string
	Pool        *PoolConfig
	SQLitePath  string
	BadgerPath  string
}

// Open builds the Cache for the configured backend.
func Open(ctx context.Context, opts Options) (*Cache, error) {
	var (
		store Store
		err   error
	)
	switch opts.Backend {
	case "", BackendMemory:
		store = NewMemory(opts.MaxEntries)
	case BackendRedis:
		store, err = NewRedis(ctx, opts.Redis)
	case BackendPostgres:
		store, err = NewPostgres(ctx, opts.DatabaseURL, opts.Pool)
	case BackendSQLite:
		store, err = NewSQLite(ctx, opts.SQLitePath)
	case BackendBadger:
		store, err = OpenBadger(opts.BadgerPath)
	default:
		return nil, eris.Errorf("cache: unknown backend %q", opts.Backend)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cache: open %s", opts.Backend)
	}
	return New(store), nil
}
