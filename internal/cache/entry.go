// Package cache stores normalized series under their request key with a TTL
// and collapses concurrent fetches of the same key into one.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

// DefaultTTL is how long a stored series is served before refetching.
const DefaultTTL = 3 * time.Hour

// storageKeyPrefix namespaces hashed keys in shared stores.
const storageKeyPrefix = "ga4:series:"

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("cache backend closed")

// Entry is a stored series. It is fresh while now - StoredAt < TTL.
type Entry struct {
	StoredAt time.Time
	Data     models.NormalizedSeries
	TTL      time.Duration
}

// Fresh reports whether the entry may still be served at now.
func (e *Entry) Fresh(now time.Time) bool {
	return now.Sub(e.StoredAt) < e.TTL
}

// Backend persists entries. Get returns nil, nil for a missing key and never
// judges freshness itself.
type Backend interface {
	Get(ctx context.Context, key models.CacheKey) (*Entry, error)
	Set(ctx context.Context, key models.CacheKey, e Entry) error
	Delete(ctx context.Context, key models.CacheKey) error
	Ping(ctx context.Context) error
	Close() error
}

// record is the serialized form shared by the byte-oriented backends. The full
// key travels with the value so a hashed storage key can never serve another
// request's data.
type record struct {
	Key      string                  `json:"key"`
	StoredAt time.Time               `json:"storedAt"`
	Data     models.NormalizedSeries `json:"data"`
	TTLMs    int64                   `json:"ttlMs"`
}

func encodeEntry(key models.CacheKey, e Entry) ([]byte, error) {
	b, err := json.Marshal(record{
		Key:      string(key),
		StoredAt: e.StoredAt.UTC(),
		TTLMs:    e.TTL.Milliseconds(),
		Data:     e.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return b, nil
}

// decodeEntry returns nil when the payload belongs to a different key.
func decodeEntry(key models.CacheKey, b []byte) (*Entry, error) {
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	if rec.Key != string(key) {
		return nil, nil
	}
	return &Entry{
		StoredAt: rec.StoredAt,
		TTL:      time.Duration(rec.TTLMs) * time.Millisecond,
		Data:     rec.Data,
	}, nil
}

// storageKey hashes a cache key into a short fixed-size store key.
func storageKey(key models.CacheKey) string {
	return storageKeyPrefix + strconv.FormatUint(xxhash.Sum64String(string(key)), 16)
}

func cloneSeries(s models.NormalizedSeries) models.NormalizedSeries {
	if s == nil {
		return nil
	}
	out := make(models.NormalizedSeries, len(s))
	for i, row := range s {
		values := make(map[string]float64, len(row.Values))
		for k, v := range row.Values {
			values[k] = v
		}
		out[i] = models.NormalizedRow{Date: row.Date, Values: values}
	}
	return out
}
