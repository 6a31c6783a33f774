package model

import (
	"math"
	"time"

	"pricefeed/internal/model/enum"

	"github.com/shopspring/decimal"
)

// PriceSnapshot is one observation of an instrument's price.
// HasDelta is false when Change and ChangePercent still need to be derived
// from the prior committed price.
type PriceSnapshot struct {
	Symbol        string            `json:"symbol"`
	Class         enum.AssetClass   `json:"-"`
	Price         float64           `json:"price"`
	Change        float64           `json:"change"`
	ChangePercent float64           `json:"changePercent"`
	High24h       float64           `json:"high24h"`
	Low24h        float64           `json:"low24h"`
	Volume        float64           `json:"volume"`
	Status        enum.MarketStatus `json:"-"`
	Source        enum.Source       `json:"-"`
	Timestamp     time.Time         `json:"timestamp"`
	HasDelta      bool              `json:"-"`
}

// Valid reports whether the snapshot carries a usable price.
func (s PriceSnapshot) Valid() bool {
	return s.Symbol != "" && s.Price > 0 && !math.IsNaN(s.Price) && !math.IsInf(s.Price, 0)
}

// WithDelta returns a copy with Change and ChangePercent derived from prev.
func (s PriceSnapshot) WithDelta(prev float64) PriceSnapshot {
	if prev <= 0 {
		s.Change, s.ChangePercent = 0, 0
	} else {
		s.Change = s.Price - prev
		s.ChangePercent = s.Change / prev * 100
	}
	s.HasDelta = true
	return s
}

// Rounded returns a copy with every numeric field rounded for its class.
func (s PriceSnapshot) Rounded() PriceSnapshot {
	s.Price = Round(s.Class, s.Price)
	s.Change = Round(s.Class, s.Change)
	s.ChangePercent = RoundPlaces(s.ChangePercent, 2)
	s.High24h = Round(s.Class, s.High24h)
	s.Low24h = Round(s.Class, s.Low24h)
	s.Volume = RoundPlaces(s.Volume, 2)
	return s
}

// Round rounds v to four places for forex and two for everything else.
func Round(class enum.AssetClass, v float64) float64 {
	if class == enum.AssetClassForex {
		return RoundPlaces(v, 4)
	}
	return RoundPlaces(v, 2)
}

func RoundPlaces(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// RawUpdate is one decoded stream record before symbol resolution.
type RawUpdate struct {
	Channel   string
	WireID    string
	Class     enum.AssetClass
	Price     float64
	Open      float64
	High      float64
	Low       float64
	Volume    float64
	Timestamp time.Time
}
