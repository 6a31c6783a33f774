package store

import (
	"context"
	"sync"

	"pricefeed/internal/model"
)

// Memory keeps the last snapshot per symbol in process memory.
type Memory struct {
	mu   sync.RWMutex
	rows map[string]model.PriceSnapshot
}

func NewMemory() *Memory {
	return &Memory{rows: make(map[string]model.PriceSnapshot)}
}

func (m *Memory) Upsert(_ context.Context, snapshot model.PriceSnapshot) error {
	m.mu.Lock()
	m.rows[snapshot.Symbol] = snapshot
	m.mu.Unlock()
	return nil
}

func (m *Memory) LastPrice(_ context.Context, symbol string) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.rows[symbol]
	if !ok {
		return 0, false, nil
	}
	return s.Price, true, nil
}

// Get returns the stored snapshot of a symbol.
func (m *Memory) Get(symbol string) (model.PriceSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.rows[symbol]
	return s, ok
}
