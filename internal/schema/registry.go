package schema

import (
	"context"
	"strings"
	"sync"

	"pricefeed/internal/model"
	"pricefeed/internal/model/enum"
	"pricefeed/pkg/exception"

	"github.com/yanun0323/errors"
)

// Source lists the instruments that should be tracked for an asset class.
type Source interface {
	Active(ctx context.Context, class enum.AssetClass) ([]model.Instrument, error)
}

type wireKey struct {
	class enum.AssetClass
	wire  string
}

// Registry stores instruments indexed by canonical symbol and by wire identifier.
type Registry struct {
	mu          sync.RWMutex
	instruments []model.Instrument
	bySymbol    map[string]int
	byWire      map[wireKey]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bySymbol: make(map[string]int),
		byWire:   make(map[wireKey]int),
	}
}

// AddInstrument registers an instrument, filling default wire and REST identifiers.
func (r *Registry) AddInstrument(inst model.Instrument) error {
	inst.Symbol = strings.ToUpper(strings.TrimSpace(inst.Symbol))
	if inst.Symbol == "" {
		return exception.ErrEmptySymbol
	}
	if !inst.Class.IsAvailable() {
		return errors.Wrapf(exception.ErrUnknownAssetClass, "symbol: %s", inst.Symbol)
	}
	if inst.WireID == "" {
		inst.WireID = DefaultWireID(inst.Symbol, inst.Class)
	}
	if inst.RestTicker == "" {
		inst.RestTicker = DefaultRestTicker(inst.Symbol, inst.Class)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySymbol[inst.Symbol]; ok {
		return errors.Wrapf(exception.ErrDuplicateSymbol, "symbol: %s", inst.Symbol)
	}
	key := wireKey{class: inst.Class, wire: inst.WireID}
	if _, ok := r.byWire[key]; ok {
		return errors.Wrapf(exception.ErrDuplicateWireID, "wire: %s", inst.WireID)
	}
	idx := len(r.instruments)
	r.instruments = append(r.instruments, inst)
	r.bySymbol[inst.Symbol] = idx
	r.byWire[key] = idx
	return nil
}

// Lookup returns the instrument for a canonical symbol.
func (r *Registry) Lookup(symbol string) (model.Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.bySymbol[symbol]
	if !ok {
		return model.Instrument{}, false
	}
	return r.instruments[idx], true
}

// ByWire returns the instrument registered under a wire identifier for a class.
func (r *Registry) ByWire(class enum.AssetClass, wire string) (model.Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byWire[wireKey{class: class, wire: wire}]
	if !ok {
		return model.Instrument{}, false
	}
	return r.instruments[idx], true
}

// Active returns the active instruments of a class in registration order.
func (r *Registry) Active(_ context.Context, class enum.AssetClass) ([]model.Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Instrument, 0, len(r.instruments))
	for _, inst := range r.instruments {
		if inst.Class == class && inst.Active {
			out = append(out, inst)
		}
	}
	return out, nil
}

// Count returns the number of registered instruments.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instruments)
}

// DefaultWireID is the stream identifier: BTC-USD for crypto, EUR/USD for forex,
// the bare ticker otherwise.
func DefaultWireID(symbol string, class enum.AssetClass) string {
	switch class {
	case enum.AssetClassCrypto:
		return strings.ReplaceAll(symbol, "/", "-")
	default:
		return symbol
	}
}

// DefaultRestTicker is the REST identifier: X:BTCUSD, C:EURUSD, I:SPX or the bare ticker.
func DefaultRestTicker(symbol string, class enum.AssetClass) string {
	compact := strings.ReplaceAll(symbol, "/", "")
	switch class {
	case enum.AssetClassCrypto:
		return "X:" + compact
	case enum.AssetClassForex:
		return "C:" + compact
	case enum.AssetClassIndex:
		if strings.HasPrefix(symbol, "I:") {
			return symbol
		}
		return "I:" + symbol
	default:
		return symbol
	}
}
