package cache

import (
	"context"
	"sync"
	"time"

	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

// MemoryBackend keeps entries in a process-local map.
type MemoryBackend struct {
	entries map[models.CacheKey]Entry
	mu      sync.RWMutex
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[models.CacheKey]Entry)}
}

// Get returns a copy of the stored entry.
func (m *MemoryBackend) Get(_ context.Context, key models.CacheKey) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	e.Data = cloneSeries(e.Data)
	return &e, nil
}

// Set stores a copy of e.
func (m *MemoryBackend) Set(_ context.Context, key models.CacheKey, e Entry) error {
	e.Data = cloneSeries(e.Data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

// Delete removes key.
func (m *MemoryBackend) Delete(_ context.Context, key models.CacheKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Sweep drops entries that are stale at now and returns how many were removed.
func (m *MemoryBackend) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.entries {
		if !e.Fresh(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Ping always succeeds.
func (m *MemoryBackend) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryBackend) Close() error { return nil }
