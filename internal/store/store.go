// Package store holds the persistence and publish collaborators of the dispatcher.
package store

import (
	"context"
	"time"

	"pricefeed/internal/model"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

const (
	keyPrefix     = "price:"
	channelPrefix = "prices."
)

// PriceMessage is the published form of a committed snapshot.
type PriceMessage struct {
	Symbol        string    `json:"symbol"`
	Class         string    `json:"assetClass"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	High24h       float64   `json:"high24h"`
	Low24h        float64   `json:"low24h"`
	Volume        float64   `json:"volume"`
	MarketStatus  string    `json:"marketStatus"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewPriceMessage converts a snapshot into its published form.
func NewPriceMessage(s model.PriceSnapshot) PriceMessage {
	return PriceMessage{
		Symbol:        s.Symbol,
		Class:         s.Class.String(),
		Price:         s.Price,
		Change:        s.Change,
		ChangePercent: s.ChangePercent,
		High24h:       s.High24h,
		Low24h:        s.Low24h,
		Volume:        s.Volume,
		MarketStatus:  s.Status.String(),
		Source:        s.Source.String(),
		Timestamp:     s.Timestamp,
	}
}

func encodeMessage(s model.PriceSnapshot) ([]byte, error) {
	payload, err := sonic.ConfigFastest.Marshal(NewPriceMessage(s))
	if err != nil {
		return nil, errors.Wrap(err, "marshal price message").With("symbol", s.Symbol)
	}
	return payload, nil
}

// Publisher delivers a committed snapshot downstream.
type Publisher interface {
	Publish(ctx context.Context, snapshot model.PriceSnapshot) error
}

// Fanout publishes to every publisher and returns the first error.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, snapshot model.PriceSnapshot) error {
	var first error
	for _, p := range f {
		if err := p.Publish(ctx, snapshot); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Nop discards every snapshot.
type Nop struct{}

func (Nop) Publish(context.Context, model.PriceSnapshot) error { return nil }
