package cache

import (
	"context"
	"time"

	"github.com/j-veylop/ga4-dashboard-tui/internal/db"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

// SQLiteBackend stores entries in the cache_entries table so they survive
// restarts of the dashboard.
type SQLiteBackend struct {
	db *db.DB
}

// NewSQLiteBackend wraps an open database. The caller keeps ownership of it.
func NewSQLiteBackend(database *db.DB) *SQLiteBackend {
	return &SQLiteBackend{db: database}
}

// Get loads and decodes the entry for key.
func (s *SQLiteBackend) Get(ctx context.Context, key models.CacheKey) (*Entry, error) {
	row, err := s.db.GetCacheEntry(ctx, string(key))
	if err != nil || row == nil {
		return nil, err
	}
	return decodeEntry(key, row.Payload)
}

// Set encodes and upserts the entry.
func (s *SQLiteBackend) Set(ctx context.Context, key models.CacheKey, e Entry) error {
	payload, err := encodeEntry(key, e)
	if err != nil {
		return err
	}
	return s.db.PutCacheEntry(ctx, db.CacheRow{
		Key:      string(key),
		Payload:  payload,
		StoredAt: e.StoredAt,
		TTL:      e.TTL,
	})
}

// Delete removes the row for key.
func (s *SQLiteBackend) Delete(ctx context.Context, key models.CacheKey) error {
	return s.db.DeleteCacheEntry(ctx, string(key))
}

// Purge removes rows that expired before now.
func (s *SQLiteBackend) Purge(ctx context.Context, now time.Time) (int64, error) {
	return s.db.PurgeExpiredCacheEntries(ctx, now)
}

// Ping checks the database connection.
func (s *SQLiteBackend) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close leaves the shared database open.
func (s *SQLiteBackend) Close() error { return nil }
