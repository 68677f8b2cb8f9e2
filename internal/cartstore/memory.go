package cartstore

import (
	"context"
	"sync"

	"github.com/example/checkout-engine/internal/cart"
)

// MemoryStore keeps session carts in memory. Suitable for tests and
// single-process development.
type MemoryStore struct {
	mu    sync.RWMutex
	carts map[string][]cart.LineItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string][]cart.LineItem)}
}

func (m *MemoryStore) Load(ctx context.Context, sessionID string) ([]cart.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lines, ok := m.carts[sessionID]
	if !ok {
		return nil, nil
	}
	out := make([]cart.LineItem, len(lines))
	copy(out, lines)
	return out, nil
}

func (m *MemoryStore) Save(ctx context.Context, sessionID string, lines []cart.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make([]cart.LineItem, len(lines))
	copy(snapshot, lines)
	m.carts[sessionID] = snapshot
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, sessionID)
	return nil
}
