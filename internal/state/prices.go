package state

import (
	"sort"
	"sync"
	"time"

	"pricefeed/internal/model/enum"
	"pricefeed/pkg/exception"

	"github.com/yanun0323/errors"
)

// Entry is the last committed price of a symbol.
type Entry struct {
	Symbol    string          `json:"symbol"`
	Class     enum.AssetClass `json:"class"`
	Price     float64         `json:"price"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Prices holds the latest committed price per symbol.
// It never holds two asset classes under one symbol.
type Prices struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewPrices creates an empty price store.
func NewPrices() *Prices {
	return &Prices{entries: make(map[string]Entry)}
}

// Apply stores the price for a symbol and returns the previous entry, if any.
func (p *Prices) Apply(symbol string, class enum.AssetClass, price float64, at time.Time) (Entry, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev, ok := p.entries[symbol]
	if ok && prev.Class != class {
		return prev, ok, errors.Wrapf(exception.ErrClassConflict, "symbol: %s, have: %s, got: %s", symbol, prev.Class, class)
	}
	p.entries[symbol] = Entry{Symbol: symbol, Class: class, Price: price, UpdatedAt: at}
	return prev, ok, nil
}

// Get returns the current entry for a symbol.
func (p *Prices) Get(symbol string) (Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[symbol]
	return e, ok
}

// Count returns the number of tracked symbols.
func (p *Prices) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Entries returns every entry sorted by symbol.
func (p *Prices) Entries() []Entry {
	p.mu.RLock()
	out := make([]Entry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
