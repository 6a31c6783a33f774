package enum

import "strings"

type AssetClass uint8

const (
	_assetClass_beg AssetClass = iota
	AssetClassCrypto
	AssetClassForex
	AssetClassStock
	AssetClassIndex
	_assetClass_end
)

func (c AssetClass) IsAvailable() bool {
	return c > _assetClass_beg && c < _assetClass_end
}

func (c AssetClass) String() string {
	switch c {
	case AssetClassCrypto:
		return "crypto"
	case AssetClassForex:
		return "forex"
	case AssetClassStock:
		return "stock"
	case AssetClassIndex:
		return "index"
	default:
		return "unknown"
	}
}

// Streamable reports whether the class has a live feed upstream.
func (c AssetClass) Streamable() bool {
	return c == AssetClassCrypto || c == AssetClassForex
}

// AssetClasses returns every available class in declaration order.
func AssetClasses() []AssetClass {
	out := make([]AssetClass, 0, int(_assetClass_end)-1)
	for c := _assetClass_beg + 1; c < _assetClass_end; c++ {
		out = append(out, c)
	}
	return out
}

// ParseAssetClass accepts the lowercase class name, with "stocks" and "indices" as aliases.
func ParseAssetClass(s string) (AssetClass, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "crypto":
		return AssetClassCrypto, true
	case "forex", "fx":
		return AssetClassForex, true
	case "stock", "stocks":
		return AssetClassStock, true
	case "index", "indices":
		return AssetClassIndex, true
	default:
		return 0, false
	}
}
