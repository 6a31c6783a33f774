// Package markethours decides whether an asset class is trading at a given instant.
package markethours

import (
	"time"

	"pricefeed/internal/model/enum"
)

// IsOpen reports whether class trades at now, evaluated on the UTC weekday.
// Crypto never closes. Forex is closed on Saturday only. Stocks and indices
// trade Monday through Friday; intraday session hours are not modelled.
func IsOpen(class enum.AssetClass, now time.Time) bool {
	day := now.UTC().Weekday()
	switch class {
	case enum.AssetClassCrypto:
		return true
	case enum.AssetClassForex:
		return day != time.Saturday
	case enum.AssetClassStock, enum.AssetClassIndex:
		return day != time.Saturday && day != time.Sunday
	default:
		return false
	}
}

// Status maps IsOpen onto a MarketStatus.
func Status(class enum.AssetClass, now time.Time) enum.MarketStatus {
	if IsOpen(class, now) {
		return enum.MarketStatusOpen
	}
	return enum.MarketStatusClosed
}
