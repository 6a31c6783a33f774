package model

import "pricefeed/internal/model/enum"

// Instrument is a tracked symbol as the asset registry describes it.
type Instrument struct {
	Symbol     string          `json:"symbol"`
	Class      enum.AssetClass `json:"class"`
	WireID     string          `json:"wireId"`
	RestTicker string          `json:"restTicker"`
	BasePrice  float64         `json:"basePrice"`
	Volatility float64         `json:"volatility"`
	Active     bool            `json:"active"`
}
