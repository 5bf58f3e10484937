package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

// BadgerConfig configures the embedded badger backend.
type BadgerConfig struct {
	// Path to the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM (tests, throwaway runs).
	InMemory bool
}

// BadgerBackend stores entries in an embedded badger database. Entries carry a
// native TTL so badger garbage-collects them; freshness is still decided by
// the Store clock.
type BadgerBackend struct {
	db *badger.DB
}

// NewBadgerBackend opens the database with small memory limits; series
// payloads are a few kilobytes at most.
func NewBadgerBackend(cfg BadgerConfig) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	opts = opts.
		WithLogger(nil).
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(16 << 20).
		WithNumMemtables(2).
		WithBlockCacheSize(8 << 20).
		WithIndexCacheSize(4 << 20).
		WithNumCompactors(2).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

// Get reads the entry for key.
func (b *BadgerBackend) Get(ctx context.Context, key models.CacheKey) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var payload []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(storageKey(key)))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return nil, ErrClosed
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return decodeEntry(key, payload)
}

// Set writes the entry with a native TTL matching e.TTL.
func (b *BadgerBackend) Set(ctx context.Context, key models.CacheKey, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := encodeEntry(key, e)
	if err != nil {
		return err
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(storageKey(key)), payload)
		if e.TTL > 0 {
			entry = entry.WithTTL(e.TTL)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

// Delete removes key.
func (b *BadgerBackend) Delete(ctx context.Context, key models.CacheKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(storageKey(key)))
	})
	if err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// RunGC reclaims value log space. Call periodically for on-disk databases.
func (b *BadgerBackend) RunGC() error {
	err := b.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
		return nil
	}
	return err
}

// Ping reports whether the database is still open.
func (b *BadgerBackend) Ping(context.Context) error {
	if b.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

// Close flushes and closes the database.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
