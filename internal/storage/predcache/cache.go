// Package predcache holds the most recent prediction per symbol under the key
// prediction_value:{SYMBOL}. Entries expire after their TTL and an expired
// entry is never returned.
package predcache

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/foresight/internal/domain"
)

var _ domain.PredictionCache = (*MemoryStore)(nil)

type entry struct {
	record  domain.PredictionRecord
	expires time.Time
}

// MemoryStore is an in-process prediction cache with an injectable clock
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// Option configures a MemoryStore
type Option func(*MemoryStore)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *MemoryStore) {
		m.now = now
	}
}

// NewMemoryStore creates an empty cache
func NewMemoryStore(opts ...Option) *MemoryStore {
	m := &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the live record for symbol. Expired entries are evicted lazily.
func (m *MemoryStore) Get(_ context.Context, symbol string) (domain.PredictionRecord, bool, error) {
	key := domain.PredictionKey(symbol)

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return domain.PredictionRecord{}, false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return domain.PredictionRecord{}, false, nil
	}
	return e.record, true, nil
}

// Set stores value for symbol, replacing any previous entry
func (m *MemoryStore) Set(_ context.Context, symbol string, value float64, ttl time.Duration) error {
	now := m.now()
	rec := domain.PredictionRecord{Symbol: symbol, Value: value, ProducedAt: now, TTL: ttl}

	m.mu.Lock()
	m.entries[domain.PredictionKey(symbol)] = entry{record: rec, expires: now.Add(ttl)}
	m.mu.Unlock()
	return nil
}
