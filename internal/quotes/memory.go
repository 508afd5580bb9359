package quotes

import (
	"context"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

type MemoryStore struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{quotes: make(map[string]Quote)}
}

func (m *MemoryStore) Get(_ context.Context, symbols []string) (map[string]Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Quote, len(symbols))
	for _, s := range symbols {
		if q, ok := m.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

func (m *MemoryStore) Put(_ context.Context, quotes []Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range quotes {
		m.quotes[q.Symbol] = q
	}
	return nil
}
