package mdg

import (
	"time"

	"pricefeed/internal/markethours"
	"pricefeed/internal/model"
	"pricefeed/internal/model/enum"
	"pricefeed/pkg/exception"

	"github.com/yanun0323/errors"
)

// SymbolResolver maps wire identifiers to canonical symbols.
type SymbolResolver interface {
	Resolve(wire string, class enum.AssetClass) (string, bool)
}

// Normalizer maps decoded stream records to price snapshots.
type Normalizer struct {
	resolver SymbolResolver
	now      func() time.Time
}

// NewNormalizer creates a normalizer. now may be nil.
func NewNormalizer(resolver SymbolResolver, now func() time.Time) *Normalizer {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Normalizer{resolver: resolver, now: now}
}

// Normalize resolves the symbol, applies the market-hours gate and builds a snapshot.
// Change fields are left for the dispatcher to derive.
func (n *Normalizer) Normalize(raw model.RawUpdate) (model.PriceSnapshot, error) {
	if raw.Price <= 0 {
		return model.PriceSnapshot{}, errors.Wrapf(exception.ErrInvalidSnapshot, "wire: %s", raw.WireID)
	}
	symbol, ok := n.resolver.Resolve(raw.WireID, raw.Class)
	if !ok {
		return model.PriceSnapshot{}, errors.Wrapf(exception.ErrResolutionFailure, "wire: %s, class: %s", raw.WireID, raw.Class)
	}
	now := n.now()
	if !markethours.IsOpen(raw.Class, now) {
		return model.PriceSnapshot{}, errors.Wrapf(exception.ErrMarketClosed, "symbol: %s", symbol)
	}

	ts := raw.Timestamp
	if ts.IsZero() {
		ts = now
	}
	high, low := raw.High, raw.Low
	if high <= 0 {
		high = raw.Price
	}
	if low <= 0 {
		low = raw.Price
	}
	return model.PriceSnapshot{
		Symbol:    symbol,
		Class:     raw.Class,
		Price:     raw.Price,
		High24h:   high,
		Low24h:    low,
		Volume:    raw.Volume,
		Status:    enum.MarketStatusOpen,
		Source:    enum.SourceStream,
		Timestamp: ts,
	}, nil
}
