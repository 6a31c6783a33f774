package engine

import (
	"context"
	"time"

	"pricefeed/internal/bus"
	"pricefeed/internal/markethours"
	"pricefeed/internal/mdg"
	"pricefeed/internal/model"
	"pricefeed/internal/model/enum"
	"pricefeed/internal/obs"
	"pricefeed/internal/rest"
	"pricefeed/internal/schema"
	"pricefeed/pkg/clock"
	"pricefeed/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultFastInterval = 15 * time.Second
	DefaultSlowInterval = 60 * time.Second

	sweepConcurrency = 4
)

// Sweeper refreshes a set of classes on a fixed interval through the REST
// cascade, falling back to synthetic prices.
type Sweeper struct {
	Name     string
	Interval time.Duration
	Classes  []enum.AssetClass
	// Skip reports whether a class is currently covered by its stream.
	Skip func(class enum.AssetClass) bool

	source     schema.Source
	cascade    *rest.Cascade
	generator  *mdg.Generator
	dispatcher *bus.Dispatcher
	metrics    *obs.Metrics
	clock      clock.Clock
}

// Run sweeps immediately and then once per interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSlowInterval
	}
	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(interval):
		}
	}
}

// Sweep refreshes every active instrument of the sweeper's classes and
// returns the number of committed snapshots.
func (s *Sweeper) Sweep(ctx context.Context) int {
	total := 0
	for _, class := range s.Classes {
		if ctx.Err() != nil {
			break
		}
		if s.Skip != nil && s.Skip(class) {
			continue
		}
		if !markethours.IsOpen(class, s.clock.Now()) {
			logs.Debugf("sweeper %s: %s market closed, skip", s.Name, class)
			continue
		}
		total += s.sweepClass(ctx, class)
	}
	return total
}

func (s *Sweeper) sweepClass(ctx context.Context, class enum.AssetClass) int {
	instruments, err := s.source.Active(ctx, class)
	if err != nil {
		logs.Warnf("sweeper %s: load %s instruments, err: %+v", s.Name, class, err)
		return 0
	}

	committed := make([]bool, len(instruments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for i, inst := range instruments {
		g.Go(func() error {
			snapshot := s.refresh(gctx, inst)
			if _, err := s.dispatcher.Commit(gctx, snapshot); err != nil {
				logs.Warnf("sweeper %s: commit %s, err: %+v", s.Name, inst.Symbol, err)
				return nil
			}
			committed[i] = true
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ok := range committed {
		if ok {
			n++
		}
	}
	logs.Debugf("sweeper %s: %s refreshed %d/%d", s.Name, class, n, len(instruments))
	return n
}

// refresh always yields a snapshot: upstream first, synthetic otherwise.
func (s *Sweeper) refresh(ctx context.Context, inst model.Instrument) model.PriceSnapshot {
	lastKnown := s.dispatcher.PriorPrice(ctx, inst.Symbol)

	if s.cascade.Enabled() {
		snapshot, strategy, ok := s.cascade.FetchPrice(ctx, inst, lastKnown)
		if ok {
			logs.Debugf("sweeper %s: %s via %s", s.Name, inst.Symbol, strategy)
			return snapshot
		}
		s.metrics.IncRESTExhausted()
		logs.Warnf("sweeper %s: use synthetic, err: %+v", s.Name, errors.Wrapf(exception.ErrUpstreamUnavailable, "symbol: %s", inst.Symbol))
	}

	base := lastKnown
	if base <= 0 {
		base = inst.BasePrice
	}
	volatility := inst.Volatility
	if volatility <= 0 {
		volatility = mdg.DefaultVolatility(inst.Class)
	}
	snapshot := s.generator.Simulate(base, volatility)
	snapshot.Symbol = inst.Symbol
	snapshot.Class = inst.Class
	snapshot.Status = enum.MarketStatusOpen
	// The dispatcher derives the delta against the committed prior, not the simulation base.
	snapshot.HasDelta = false
	return snapshot
}
