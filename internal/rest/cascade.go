package rest

import (
	"context"
	"time"

	"pricefeed/internal/model"
	"pricefeed/internal/model/enum"

	"github.com/yanun0323/logs"
)

// Cascade tries each strategy of an instrument's class in order and returns
// the first one that yields a valid snapshot.
type Cascade struct {
	client     *Client
	strategies map[enum.AssetClass][]Strategy
	now        func() time.Time
}

// NewCascade creates a cascade with the default strategy lists.
func NewCascade(client *Client) *Cascade {
	c := &Cascade{
		client:     client,
		strategies: make(map[enum.AssetClass][]Strategy),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, class := range enum.AssetClasses() {
		c.strategies[class] = DefaultStrategies(class)
	}
	return c
}

// WithStrategies replaces the strategy list for a class.
func (c *Cascade) WithStrategies(class enum.AssetClass, strategies ...Strategy) *Cascade {
	c.strategies[class] = strategies
	return c
}

// Enabled reports whether the cascade can reach the upstream at all.
func (c *Cascade) Enabled() bool {
	return c != nil && c.client.Enabled()
}

// FetchPrice returns the first successful strategy result. Every failure is
// logged and the next strategy tried; false means all were exhausted.
func (c *Cascade) FetchPrice(ctx context.Context, inst model.Instrument, lastKnown float64) (model.PriceSnapshot, string, bool) {
	if !c.Enabled() {
		return model.PriceSnapshot{}, "", false
	}
	now := c.now()
	for _, s := range c.strategies[inst.Class] {
		if ctx.Err() != nil {
			return model.PriceSnapshot{}, "", false
		}
		path, ok := s.Path(inst, now)
		if !ok {
			continue
		}
		body, err := c.client.Get(ctx, path)
		if err != nil {
			logs.Debugf("rest: %s failed for %s, err: %+v", s.Name, inst.Symbol, err)
			continue
		}
		snap, err := s.Parse(body, inst, lastKnown, now)
		if err != nil {
			logs.Debugf("rest: %s unusable for %s, err: %+v", s.Name, inst.Symbol, err)
			continue
		}
		if !snap.Valid() {
			continue
		}
		return snap, s.Name, true
	}
	return model.PriceSnapshot{}, "", false
}
