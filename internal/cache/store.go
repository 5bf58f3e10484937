package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/j-veylop/ga4-dashboard-tui/internal/clock"
	"github.com/j-veylop/ga4-dashboard-tui/internal/logger"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

// FetchFunc produces a series on a cache miss.
type FetchFunc func(ctx context.Context) (models.NormalizedSeries, error)

// Observer is notified of lookups.
type Observer interface {
	CacheHit()
	CacheMiss()
}

// Stats counts store activity since creation.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Fetches int64 `json:"fetches"`
	Shared  int64 `json:"shared"`
	Errors  int64 `json:"errors"`
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for freshness checks.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithDefaultTTL overrides DefaultTTL.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithObserver registers a lookup observer.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// Store is the series cache. Backend failures degrade to misses; they never
// fail a fetch.
type Store struct {
	backend  Backend
	clock    clock.Clock
	observer Observer
	group    singleflight.Group
	ttl      time.Duration

	hits    atomic.Int64
	misses  atomic.Int64
	fetches atomic.Int64
	shared  atomic.Int64
	errors  atomic.Int64
}

// New creates a store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		clock:   clock.Real{},
		ttl:     DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultTTL returns the TTL applied when callers pass zero.
func (s *Store) DefaultTTL() time.Duration {
	return s.ttl
}

// Get returns the entry for key if it is fresh now.
func (s *Store) Get(ctx context.Context, key models.CacheKey) (*Entry, bool) {
	e, err := s.backend.Get(ctx, key)
	if err != nil {
		s.errors.Add(1)
		logger.Warn("cache read failed", "key", key, "error", err)
	}
	if err != nil || e == nil || !e.Fresh(s.clock.Now()) {
		s.misses.Add(1)
		if s.observer != nil {
			s.observer.CacheMiss()
		}
		return nil, false
	}

	s.hits.Add(1)
	if s.observer != nil {
		s.observer.CacheHit()
	}
	return e, true
}

// Set stores data under key, stamped with the current time. A zero ttl means
// the default.
func (s *Store) Set(ctx context.Context, key models.CacheKey, data models.NormalizedSeries, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	return s.backend.Set(ctx, key, Entry{
		StoredAt: s.clock.Now(),
		TTL:      ttl,
		Data:     data,
	})
}

// Invalidate drops key.
func (s *Store) Invalidate(ctx context.Context, key models.CacheKey) error {
	return s.backend.Delete(ctx, key)
}

// GetOrFetch serves key from the cache or runs fetch. Concurrent callers for
// the same key share one fetch; the cache is re-checked inside the flight so a
// caller arriving just after a store does not refetch. Failed fetches are
// never stored.
//
// A flight runs under the context of the caller that started it. When that
// context ends the flight fails, and waiters whose own context is still live
// join or start a new flight instead of inheriting the cancellation.
func (s *Store) GetOrFetch(ctx context.Context, key models.CacheKey, ttl time.Duration, fetch FetchFunc) (models.NormalizedSeries, error) {
	if e, ok := s.Get(ctx, key); ok {
		logger.Debug("cache hit", "key", key)
		return e.Data, nil
	}

	for {
		data, shared, led, err := s.flight(ctx, key, ttl, fetch)
		if err != nil {
			if !led && isContextErr(err) && ctx.Err() == nil {
				logger.Debug("shared fetch cancelled by its leader, retrying", "key", key)
				continue
			}
			return nil, err
		}
		if shared {
			s.shared.Add(1)
		}
		return cloneSeries(data), nil
	}
}

// flight joins or starts the fetch for key. led reports whether this call ran
// the fetch itself.
func (s *Store) flight(ctx context.Context, key models.CacheKey, ttl time.Duration, fetch FetchFunc) (models.NormalizedSeries, bool, bool, error) {
	var led bool
	ch := s.group.DoChan(string(key), func() (any, error) {
		led = true
		if e, ok := s.Get(ctx, key); ok {
			return e.Data, nil
		}

		s.fetches.Add(1)
		data, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		if err := s.Set(ctx, key, data, ttl); err != nil {
			s.errors.Add(1)
			logger.Warn("cache write failed", "key", key, "error", err)
		}
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, led, res.Err
		}
		return res.Val.(models.NormalizedSeries), res.Shared, led, nil
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Stats returns a snapshot of the counters.
func (s *Store) Stats() Stats {
	return Stats{
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Fetches: s.fetches.Load(),
		Shared:  s.shared.Load(),
		Errors:  s.errors.Load(),
	}
}

// Ping checks the backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
