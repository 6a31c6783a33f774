package bus

import (
	"context"
	"sync"
	"time"

	"pricefeed/internal/model"
	"pricefeed/internal/model/enum"
	"pricefeed/internal/obs"
	"pricefeed/internal/state"
	"pricefeed/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Persistence stores committed snapshots and recalls the last stored price.
type Persistence interface {
	Upsert(ctx context.Context, snapshot model.PriceSnapshot) error
	LastPrice(ctx context.Context, symbol string) (float64, bool, error)
}

// Publisher delivers committed snapshots to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, snapshot model.PriceSnapshot) error
}

// Dispatcher commits snapshots: it derives deltas against the prior price,
// updates the price store, persists and enqueues for publishing.
// Commits to one symbol are serialized; different symbols proceed in parallel.
type Dispatcher struct {
	prices  *state.Prices
	store   Persistence
	queue   *Queue
	metrics *obs.Metrics
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDispatcher creates a dispatcher. store, queue and metrics may be nil.
func NewDispatcher(prices *state.Prices, store Persistence, queue *Queue, metrics *obs.Metrics) *Dispatcher {
	return &Dispatcher{
		prices:  prices,
		store:   store,
		queue:   queue,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
		locks:   make(map[string]*sync.Mutex),
	}
}

// Commit applies snapshot and returns the committed value with its derived fields.
// Persistence and publish failures are logged and counted but do not fail the commit.
func (d *Dispatcher) Commit(ctx context.Context, snapshot model.PriceSnapshot) (model.PriceSnapshot, error) {
	if d == nil || d.prices == nil {
		return model.PriceSnapshot{}, exception.ErrNilInstance
	}
	if !snapshot.Valid() {
		return model.PriceSnapshot{}, errors.Wrapf(exception.ErrInvalidSnapshot, "symbol: %s", snapshot.Symbol)
	}

	lock := d.lockFor(snapshot.Symbol)
	lock.Lock()
	defer lock.Unlock()

	// Round before deriving so Change is exactly committed minus prior.
	snapshot = snapshot.Rounded()
	if !snapshot.HasDelta {
		snapshot = snapshot.WithDelta(d.PriorPrice(ctx, snapshot.Symbol)).Rounded()
	}
	if !snapshot.Status.IsAvailable() {
		snapshot.Status = enum.MarketStatusOpen
	}
	committedAt := d.now()
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = committedAt
	}

	if _, _, err := d.prices.Apply(snapshot.Symbol, snapshot.Class, snapshot.Price, snapshot.Timestamp); err != nil {
		return model.PriceSnapshot{}, err
	}

	if d.store != nil {
		if err := d.store.Upsert(ctx, snapshot); err != nil {
			d.metrics.IncPersistFailure()
			logs.Errorf("dispatcher: persist %s, err: %+v", snapshot.Symbol, err)
		}
	}

	if d.queue != nil {
		switch err := d.queue.TryPublish(Event{Snapshot: snapshot}); err {
		case nil:
		case ErrQueueFull:
			d.metrics.IncQueueDrop()
		case ErrQueueClosed:
			d.metrics.IncQueueClosed()
		}
	}

	d.metrics.ObserveCommit(snapshot.Source, snapshot.Timestamp, committedAt)
	return snapshot, nil
}

// PriorPrice reads the in-memory price, falling back to the persisted one.
// Zero means no prior price is known.
func (d *Dispatcher) PriorPrice(ctx context.Context, symbol string) float64 {
	if e, ok := d.prices.Get(symbol); ok {
		return e.Price
	}
	if d.store == nil {
		return 0
	}
	price, ok, err := d.store.LastPrice(ctx, symbol)
	if err != nil {
		logs.Warnf("dispatcher: last price of %s, err: %+v", symbol, err)
		return 0
	}
	if !ok {
		return 0
	}
	return price
}

func (d *Dispatcher) lockFor(symbol string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		d.locks[symbol] = l
	}
	return l
}

// PublishLoop drains the queue into pub until ctx is done.
func PublishLoop(ctx context.Context, q *Queue, pub Publisher, metrics *obs.Metrics) {
	handle := func(e Event) {
		if err := pub.Publish(ctx, e.Snapshot); err != nil {
			metrics.IncPublishFailure()
			logs.Warnf("publish: %s, err: %+v", e.Snapshot.Symbol, err)
		}
	}
	q.Run(ctx, handle)
}
