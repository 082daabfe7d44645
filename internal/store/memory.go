package store

import (
	"context"
	"sync"
)

// MemoryStateStore is a StateStore held in process memory. State does not
// survive a restart.
type MemoryStateStore struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

var _ StateStore = (*MemoryStateStore)(nil)

// NewMemoryStateStore returns an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{data: make(map[string]map[string]string)}
}

func (m *MemoryStateStore) GetState(_ context.Context, collection, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[collection][key]
	return v, ok, nil
}

func (m *MemoryStateStore) SetState(_ context.Context, collection, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(collection, key, value)
	return nil
}

func (m *MemoryStateStore) DeleteState(_ context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[collection], key)
	return nil
}

func (m *MemoryStateStore) InsertStateIfAbsent(_ context.Context, collection, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[collection][key]; ok {
		return false, nil
	}
	m.set(collection, key, value)
	return true, nil
}

func (m *MemoryStateStore) set(collection, key, value string) {
	c, ok := m.data[collection]
	if !ok {
		c = make(map[string]string)
		m.data[collection] = c
	}
	c[key] = value
}
