package ingest

import (
	"context"
	"time"

	"pricefeed/internal/model"
	"pricefeed/internal/model/enum"
	"pricefeed/internal/obs"
	"pricefeed/internal/schema"
	"pricefeed/pkg/clock"
	"pricefeed/pkg/websocket"

	"github.com/yanun0323/logs"
)

const requestBuffer = 16

// Reopener is the part of a Feed the reconnector drives.
type Reopener interface {
	Class() enum.AssetClass
	Attempts() int
	Instruments() []model.Instrument
	Open(ctx context.Context, instruments []model.Instrument) error
}

// Reconnector schedules feed re-opens with backoff. Each feed is idle,
// scheduled or opening; requests for a feed that is already scheduled collapse.
type Reconnector struct {
	clock    clock.Clock
	backoff  websocket.Backoff
	source   schema.Source
	metrics  *obs.Metrics
	feeds    map[enum.AssetClass]Reopener
	requests chan enum.AssetClass
}

// NewReconnector creates a reconnector. source supplies the instrument set for each re-open.
func NewReconnector(clk clock.Clock, backoff websocket.Backoff, source schema.Source, metrics *obs.Metrics) *Reconnector {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Reconnector{
		clock:    clk,
		backoff:  backoff,
		source:   source,
		metrics:  metrics,
		feeds:    make(map[enum.AssetClass]Reopener),
		requests: make(chan enum.AssetClass, requestBuffer),
	}
}

// Register adds a feed. It must be called before Run.
func (r *Reconnector) Register(feed Reopener) {
	r.feeds[feed.Class()] = feed
}

// Request asks for a feed to be re-opened. It never blocks.
func (r *Reconnector) Request(class enum.AssetClass) {
	select {
	case r.requests <- class:
	default:
		logs.Warnf("reconnector: request queue full, drop %s", class)
	}
}

// Run processes requests until ctx is done.
func (r *Reconnector) Run(ctx context.Context) error {
	pending := make(map[enum.AssetClass]bool)
	fired := make(chan enum.AssetClass, len(r.feeds)+1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case class := <-r.requests:
			feed, ok := r.feeds[class]
			if !ok || pending[class] {
				continue
			}
			pending[class] = true
			delay := r.backoff.Next(feed.Attempts())
			r.metrics.IncReconnect()
			logs.Infof("reconnector: %s reconnect in %s", class, delay)
			timer := r.clock.After(delay)
			go func() {
				select {
				case <-ctx.Done():
				case <-timer:
					select {
					case fired <- class:
					case <-ctx.Done():
					}
				}
			}()
		case class := <-fired:
			delete(pending, class)
			go r.reopen(ctx, r.feeds[class])
		}
	}
}

func (r *Reconnector) reopen(ctx context.Context, feed Reopener) {
	instruments := feed.Instruments()
	if r.source != nil {
		active, err := r.source.Active(ctx, feed.Class())
		switch {
		case err != nil:
			logs.Warnf("reconnector: reload %s instruments, reuse previous set, err: %+v", feed.Class(), err)
		case len(active) == 0:
			logs.Warnf("reconnector: no active %s instruments, reuse previous set", feed.Class())
		default:
			instruments = active
		}
	}
	if err := feed.Open(ctx, instruments); err != nil {
		logs.Warnf("reconnector: open %s, err: %+v", feed.Class(), err)
	}
}

// Delay reports the delay the next schedule of class would use.
func (r *Reconnector) Delay(class enum.AssetClass) time.Duration {
	feed, ok := r.feeds[class]
	if !ok {
		return 0
	}
	return r.backoff.Next(feed.Attempts())
}
