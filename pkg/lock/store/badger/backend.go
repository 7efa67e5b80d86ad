// Package badger implements a persistent lock.Backend on BadgerDB.
//
// Locks survive a restart of the server process, which lets a rebooted
// single-node server know which clients held state before the crash and
// end the reclaim grace period early once all of them are back.
package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/nfs4state/internal/logger"
	"github.com/marmos91/nfs4state/pkg/lock"
)

// Key layout:
//
//	lock:{objectKey}:{lockID} -> JSON(lock.Lock)
//
// objectKey is hex, so it never contains the ':' separator.
const prefixLock = "lock:"

// Config configures the badger backend.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps the database in RAM (tests).
	InMemory bool

	// IndexCacheSize bounds the in-memory index cache in bytes. Zero keeps
	// badger's default.
	IndexCacheSize int64
}

// Backend stores locks in BadgerDB. The per-object mutex is in-process:
// a badger directory is owned by exactly one server instance.
type Backend struct {
	db      *badgerdb.DB
	mutexes *lock.KeyedMutex
}

var _ lock.Backend = (*Backend)(nil)

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*Backend, error) {
	var opts badgerdb.Options
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger lock backend requires a path")
		}
		opts = badgerdb.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil)
	if cfg.IndexCacheSize > 0 {
		opts = opts.WithIndexCacheSize(cfg.IndexCacheSize)
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug("Opened badger lock backend", "path", cfg.Path, "in_memory", cfg.InMemory)
	return New(db), nil
}

// New wraps an already opened database.
func New(db *badgerdb.DB) *Backend {
	return &Backend{
		db:      db,
		mutexes: lock.NewKeyedMutex(),
	}
}

func objectPrefix(key string) []byte {
	return []byte(prefixLock + key + ":")
}

func lockKey(key, lockID string) []byte {
	return []byte(prefixLock + key + ":" + lockID)
}

// GetLocks returns the locks stored under key.
func (b *Backend) GetLocks(ctx context.Context, key string) ([]*lock.Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var locks []*lock.Lock
	err := b.db.View(func(txn *badgerdb.Txn) error {
		prefix := objectPrefix(key)
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var l lock.Lock
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &l)
			})
			if err != nil {
				return fmt.Errorf("failed to decode lock %s: %w", it.Item().Key(), err)
			}
			locks = append(locks, &l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	lock.SortLocks(locks)
	return locks, nil
}

// AddLock stores l, overwriting an entry with the same ID.
func (b *Backend) AddLock(ctx context.Context, key string, l *lock.Lock) error {
	return b.AddLocks(ctx, key, []*lock.Lock{l})
}

// RemoveLock deletes the entry with l.ID.
func (b *Backend) RemoveLock(ctx context.Context, key string, l *lock.Lock) error {
	return b.RemoveLocks(ctx, key, []*lock.Lock{l})
}

// AddLocks stores ls in one transaction.
func (b *Backend) AddLocks(ctx context.Context, key string, ls []*lock.Lock) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badgerdb.Txn) error {
		for _, l := range ls {
			data, err := json.Marshal(l)
			if err != nil {
				return fmt.Errorf("failed to marshal lock: %w", err)
			}
			if err := txn.Set(lockKey(key, l.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveLocks deletes ls in one transaction.
func (b *Backend) RemoveLocks(ctx context.Context, key string, ls []*lock.Lock) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badgerdb.Txn) error {
		for _, l := range ls {
			if err := txn.Delete(lockKey(key, l.ID)); err != nil && !errors.Is(err, badgerdb.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
}

// Objects returns every object key with at least one lock, sorted.
func (b *Backend) Objects(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := b.db.View(func(txn *badgerdb.Txn) error {
		prefix := []byte(prefixLock)
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var last []byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rest := bytes.TrimPrefix(it.Item().Key(), prefix)
			idx := bytes.IndexByte(rest, ':')
			if idx < 0 {
				continue
			}
			obj := rest[:idx]
			if bytes.Equal(obj, last) {
				continue
			}
			last = append(last[:0], obj...)
			keys = append(keys, string(obj))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// '0'-'9' sort before the ':' separator, so iteration order is not
	// key order.
	sort.Strings(keys)
	return keys, nil
}

// Mutex returns the in-process mutex for key.
func (b *Backend) Mutex(key string) lock.ObjectMutex {
	return b.mutexes.Mutex(key)
}

// Distributed is false: one process owns the database.
func (b *Backend) Distributed() bool { return false }

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}
