package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CacheRow is a persisted cache entry.
type CacheRow struct {
	StoredAt time.Time
	Key      string
	Payload  []byte
	TTL      time.Duration
}

// GetCacheEntry loads the entry stored under key. It returns nil when absent;
// freshness is left to the caller.
func (db *DB) GetCacheEntry(ctx context.Context, key string) (*CacheRow, error) {
	query := `SELECT key, payload, stored_at, ttl_ms FROM cache_entries WHERE key = ?`

	var row CacheRow
	var storedAt, ttlMs int64
	err := db.QueryRowContext(ctx, query, key).Scan(&row.Key, &row.Payload, &storedAt, &ttlMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	row.StoredAt = time.UnixMilli(storedAt).UTC()
	row.TTL = time.Duration(ttlMs) * time.Millisecond
	return &row, nil
}

// PutCacheEntry inserts or replaces the entry for row.Key.
func (db *DB) PutCacheEntry(ctx context.Context, row CacheRow) error {
	query := `
		INSERT INTO cache_entries (key, payload, stored_at, ttl_ms, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			stored_at = excluded.stored_at,
			ttl_ms = excluded.ttl_ms,
			expires_at = excluded.expires_at
	`

	storedAt := row.StoredAt.UnixMilli()
	ttlMs := row.TTL.Milliseconds()
	_, err := db.ExecContext(ctx, query, row.Key, row.Payload, storedAt, ttlMs, storedAt+ttlMs)
	if err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

// DeleteCacheEntry removes the entry for key, if any.
func (db *DB) DeleteCacheEntry(ctx context.Context, key string) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// PurgeExpiredCacheEntries deletes every entry that expired before now.
func (db *DB) PurgeExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, "DELETE FROM cache_entries WHERE expires_at <= ?", now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache entries: %w", err)
	}
	return result.RowsAffected()
}

// CountCacheEntries returns the number of stored entries, expired or not.
func (db *DB) CountCacheEntries(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache_entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}
