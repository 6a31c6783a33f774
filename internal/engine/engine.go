package engine

import (
	"context"
	"errors"
	"os"
	"time"

	"pricefeed/internal/bus"
	"pricefeed/internal/ingest"
	"pricefeed/internal/mdg"
	"pricefeed/internal/model"
	"pricefeed/internal/model/enum"
	"pricefeed/internal/obs"
	"pricefeed/internal/rest"
	"pricefeed/internal/schema"
	"pricefeed/internal/state"
	"pricefeed/internal/store"
	"pricefeed/pkg/clock"
	"pricefeed/pkg/exception"
	"pricefeed/pkg/websocket"

	yerrors "github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"
)

const (
	defaultQueueSize = 1024
	drainTimeout     = 5 * time.Second
)

// Config wires an Engine. Registry is required; everything else has a default.
type Config struct {
	Registry *schema.Registry
	// Source reloads instruments for sweeps and reconnects. Defaults to Registry.
	Source    schema.Source
	Store     bus.Persistence
	Publisher bus.Publisher
	QueueSize int

	StreamKey string
	Dialers   map[enum.AssetClass]websocket.Dialer
	Channels  map[enum.AssetClass][]string
	BatchSize int
	BatchPace time.Duration
	Backoff   websocket.Backoff

	Cascade   *rest.Cascade
	Generator *mdg.Generator

	FastInterval time.Duration
	SlowInterval time.Duration

	// SnapshotPath seeds prices at start and receives them at shutdown.
	SnapshotPath string

	Clock   clock.Clock
	Metrics *obs.Metrics
}

// Engine runs the feeds, the reconnector, the sweeps and the publish worker.
type Engine struct {
	cfg         Config
	prices      *state.Prices
	queue       *bus.Queue
	dispatcher  *bus.Dispatcher
	normalizer  *mdg.Normalizer
	reconnector *ingest.Reconnector
	feeds       map[enum.AssetClass]*ingest.Feed
	sweepers    []*Sweeper
}

// New validates cfg and builds an idle engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, yerrors.Wrap(exception.ErrNilInstance, "registry")
	}
	if cfg.Source == nil {
		cfg.Source = cfg.Registry
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Backoff == (websocket.Backoff{}) {
		cfg.Backoff = websocket.DefaultBackoff()
	}
	if cfg.Generator == nil {
		cfg.Generator = mdg.NewGenerator(nil)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = obs.NewMetrics()
	}
	if cfg.FastInterval <= 0 {
		cfg.FastInterval = DefaultFastInterval
	}
	if cfg.SlowInterval <= 0 {
		cfg.SlowInterval = DefaultSlowInterval
	}

	e := &Engine{
		cfg:    cfg,
		prices: state.NewPrices(),
		queue:  bus.NewQueue(cfg.QueueSize),
		feeds:  make(map[enum.AssetClass]*ingest.Feed),
	}
	e.restore()
	e.dispatcher = bus.NewDispatcher(e.prices, cfg.Store, e.queue, cfg.Metrics)
	e.normalizer = mdg.NewNormalizer(schema.NewResolver(cfg.Registry), cfg.Clock.Now)
	e.reconnector = ingest.NewReconnector(cfg.Clock, cfg.Backoff, cfg.Source, cfg.Metrics)

	if cfg.StreamKey == "" {
		logs.Warnf("engine: no stream key, crypto and forex use the fast sweep only")
	} else {
		batcher := ingest.NewBatcher(cfg.BatchSize, cfg.BatchPace, cfg.Clock)
		for _, class := range []enum.AssetClass{enum.AssetClassCrypto, enum.AssetClassForex} {
			dialer, ok := cfg.Dialers[class]
			if !ok {
				continue
			}
			feed, err := ingest.NewFeed(ingest.FeedConfig{
				Class:     class,
				APIKey:    cfg.StreamKey,
				Channels:  cfg.Channels[class],
				Dialer:    dialer,
				Batcher:   batcher,
				Metrics:   cfg.Metrics,
				Reconnect: e.reconnector.Request,
				Hooks: ingest.Hooks{
					OnUpdate: e.onUpdate,
				},
			})
			if err != nil {
				return nil, yerrors.Wrapf(err, "feed %s", class)
			}
			e.feeds[class] = feed
			e.reconnector.Register(feed)
		}
	}

	e.sweepers = []*Sweeper{
		e.newSweeper("fast", cfg.FastInterval, []enum.AssetClass{enum.AssetClassCrypto, enum.AssetClassForex}, e.streaming),
		e.newSweeper("slow", cfg.SlowInterval, []enum.AssetClass{enum.AssetClassStock, enum.AssetClassIndex}, nil),
	}
	return e, nil
}

func (e *Engine) newSweeper(name string, interval time.Duration, classes []enum.AssetClass, skip func(enum.AssetClass) bool) *Sweeper {
	return &Sweeper{
		Name:       name,
		Interval:   interval,
		Classes:    classes,
		Skip:       skip,
		source:     e.cfg.Source,
		cascade:    e.cfg.Cascade,
		generator:  e.cfg.Generator,
		dispatcher: e.dispatcher,
		metrics:    e.cfg.Metrics,
		clock:      e.cfg.Clock,
	}
}

// streaming reports whether a class is covered by a subscribed feed.
func (e *Engine) streaming(class enum.AssetClass) bool {
	feed, ok := e.feeds[class]
	return ok && feed.Subscribed()
}

func (e *Engine) onUpdate(ctx context.Context, update model.RawUpdate) {
	snapshot, err := e.normalizer.Normalize(update)
	switch {
	case err == nil:
	case errors.Is(err, exception.ErrResolutionFailure):
		e.cfg.Metrics.IncResolutionFailure()
		logs.Debugf("engine: %+v", err)
		return
	case errors.Is(err, exception.ErrMarketClosed):
		e.cfg.Metrics.IncClosedMarketDrop()
		return
	default:
		logs.Debugf("engine: drop update, err: %+v", err)
		return
	}
	if _, err := e.dispatcher.Commit(ctx, snapshot); err != nil {
		logs.Warnf("engine: commit %s, err: %+v", snapshot.Symbol, err)
	}
}

// Run blocks until ctx is done, then closes the feeds, drains the publish
// queue and writes the price snapshot.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.reconnector.Run(gctx) })
	for _, feed := range e.feeds {
		g.Go(func() error {
			e.openFeed(gctx, feed)
			return nil
		})
	}
	for _, s := range e.sweepers {
		g.Go(func() error { return s.Run(gctx) })
	}
	g.Go(func() error {
		bus.PublishLoop(gctx, e.queue, e.publisher(), e.cfg.Metrics)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		for _, feed := range e.feeds {
			feed.Close()
		}
		return nil
	})

	err := g.Wait()
	e.drain()
	e.persist()
	logs.Info("engine: stopped")
	return err
}

func (e *Engine) openFeed(ctx context.Context, feed *ingest.Feed) {
	instruments, err := e.cfg.Source.Active(ctx, feed.Class())
	if err != nil {
		logs.Warnf("engine: load %s instruments from source, use registry, err: %+v", feed.Class(), err)
		instruments, _ = e.cfg.Registry.Active(ctx, feed.Class())
	}
	if len(instruments) == 0 {
		logs.Warnf("engine: no active %s instruments, feed not opened", feed.Class())
		return
	}
	if err := feed.Open(ctx, instruments); err != nil {
		logs.Warnf("engine: open %s feed, err: %+v", feed.Class(), err)
	}
}

func (e *Engine) publisher() bus.Publisher {
	if e.cfg.Publisher == nil {
		return store.Nop{}
	}
	return e.cfg.Publisher
}

func (e *Engine) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	pub := e.publisher()
	n := e.queue.Drain(func(ev bus.Event) {
		if ctx.Err() != nil {
			return
		}
		if err := pub.Publish(ctx, ev.Snapshot); err != nil {
			e.cfg.Metrics.IncPublishFailure()
		}
	})
	if n > 0 {
		logs.Infof("engine: drained %d queued updates", n)
	}
}

func (e *Engine) restore() {
	if e.cfg.SnapshotPath == "" {
		return
	}
	snap, err := state.ReadSnapshot(e.cfg.SnapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logs.Warnf("engine: read snapshot %s, err: %+v", e.cfg.SnapshotPath, err)
		}
		return
	}
	logs.Infof("engine: restored %d prices from %s", e.prices.Restore(snap), e.cfg.SnapshotPath)
}

func (e *Engine) persist() {
	if e.cfg.SnapshotPath == "" {
		return
	}
	if err := state.WriteSnapshot(e.cfg.SnapshotPath, e.prices.Snapshot()); err != nil {
		logs.Errorf("engine: write snapshot %s, err: %+v", e.cfg.SnapshotPath, err)
	}
}

// Prices exposes the committed price store.
func (e *Engine) Prices() *state.Prices { return e.prices }

// Dispatcher exposes the commit path.
func (e *Engine) Dispatcher() *bus.Dispatcher { return e.dispatcher }
