package cache

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BadgerStore is an embedded Store on BadgerDB. Entry TTLs are native, with
// one-second resolution.
type BadgerStore struct {
	db *badger.DB
}

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	log *zap.SugaredLogger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, args ...any)   { l.log.Errorf(msg, args...) }
func (l *badgerLogger) Warningf(msg string, args ...any) { l.log.Warnf(msg, args...) }
func (l *badgerLogger) Infof(msg string, args ...any)    { l.log.Debugf(msg, args...) }
func (l *badgerLogger) Debugf(msg string, args ...any)   { l.log.Debugf(msg, args...) }

// OpenBadger opens a BadgerDB at dir, creating it if needed. An empty dir
// opens an in-memory database.
func OpenBadger(dir string) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "badger: create %s", dir)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLogger{log: zap.L().Named("badger").Sugar()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, eris.Wrap(err, "badger: open")
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "badger: get")
	}
	return data, true, nil
}

func (b *BadgerStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), value).WithTTL(ttl))
	})
	return eris.Wrap(err, "badger: set")
}

func (b *BadgerStore) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return eris.Wrap(err, "badger: delete")
}

// ScanPrefix iterates keys under prefix in key order. Badger iterators skip
// expired and deleted entries.
func (b *BadgerStore) ScanPrefix(ctx context.Context, prefix string) ([][]byte, error) {
	out := [][]byte{}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, data)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "badger: scan prefix")
	}
	return out, nil
}

func (b *BadgerStore) Clear(_ context.Context) error {
	return eris.Wrap(b.db.DropAll(), "badger: drop all")
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}
