package schema

import (
	"strings"

	"pricefeed/internal/model/enum"
)

// cryptoQuotes is checked in order; the first matching suffix decides the split.
var cryptoQuotes = []string{"USD", "USDT", "USDC", "BTC", "ETH"}

// Resolver maps upstream wire identifiers to canonical symbols.
type Resolver struct {
	reg *Registry
}

// NewResolver creates a resolver backed by a registry.
func NewResolver(reg *Registry) *Resolver {
	return &Resolver{reg: reg}
}

// Resolve returns the canonical symbol for a wire identifier.
// A heuristic guess is only returned when the registry confirms it.
func (r *Resolver) Resolve(wire string, class enum.AssetClass) (string, bool) {
	if r == nil || r.reg == nil || wire == "" {
		return "", false
	}
	if inst, ok := r.reg.ByWire(class, wire); ok {
		return inst.Symbol, true
	}
	if inst, ok := r.reg.Lookup(strings.ToUpper(wire)); ok && inst.Class == class {
		return inst.Symbol, true
	}

	candidate, ok := guess(wire, class)
	if !ok {
		return "", false
	}
	inst, ok := r.reg.Lookup(candidate)
	if !ok || inst.Class != class {
		return "", false
	}
	return inst.Symbol, true
}

func guess(wire string, class enum.AssetClass) (string, bool) {
	core := compact(wire)
	switch class {
	case enum.AssetClassCrypto:
		for _, quote := range cryptoQuotes {
			if len(core) > len(quote) && strings.HasSuffix(core, quote) {
				return core[:len(core)-len(quote)] + "/" + quote, true
			}
		}
		return "", false
	case enum.AssetClassForex:
		if len(core) != 6 {
			return "", false
		}
		return core[:3] + "/" + core[3:], true
	case enum.AssetClassStock, enum.AssetClassIndex:
		return core, core != ""
	default:
		return "", false
	}
}

// compact drops channel and market prefixes (XA., X:, C:, I:) and pair separators.
func compact(wire string) string {
	if i := strings.LastIndexAny(wire, ".:"); i >= 0 {
		wire = wire[i+1:]
	}
	wire = strings.ReplaceAll(wire, "-", "")
	wire = strings.ReplaceAll(wire, "/", "")
	return strings.ToUpper(strings.TrimSpace(wire))
}
