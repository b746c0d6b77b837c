package settings

import (
	"context"
	"sync"
)

// MemoryStore keeps values in process. Useful for tests and one-shot runs.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]any
	// Err, when set, is returned by Get.
	Err error
}

func NewMemoryStore(values map[string]any) *MemoryStore {
	m := &MemoryStore{values: make(map[string]any)}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

func (m *MemoryStore) Get(_ context.Context, keys ...string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := m.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *MemoryStore) Set(_ context.Context, values map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}
