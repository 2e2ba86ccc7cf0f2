// Package blob stores trained model artifacts by logical name
// ({MARKET}_{SYMBOL}). Writes overwrite unconditionally and no history is kept.
package blob

import (
	"context"
	"sync"

	"github.com/aristath/foresight/internal/domain"
)

var _ domain.BlobStore = (*MemoryStore)(nil)

// MemoryStore is an in-process blob store used in tests and local runs
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Get returns a copy of the stored bytes
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

// Set stores a copy of data under key
func (m *MemoryStore) Set(_ context.Context, key string, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)
	m.mu.Lock()
	m.blobs[key] = stored
	m.mu.Unlock()
	return nil
}

// Exists reports whether key is stored
func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[key]
	return ok, nil
}

// Len returns the number of stored artifacts
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
