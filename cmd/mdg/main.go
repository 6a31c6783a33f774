package main

import (
	"context"
	"flag"
	"io"
	"os"
	"sync"
	"time"

	"pricefeed/internal/bus"
	"pricefeed/internal/mdg"
	"pricefeed/internal/model"
	"pricefeed/internal/model/enum"
	"pricefeed/internal/obs"
	"pricefeed/internal/ops"
	"pricefeed/internal/schema"
	"pricefeed/internal/state"
	"pricefeed/internal/store"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("mdg: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to yaml/json config")
	ticks := flag.Int("ticks", 10, "Number of rounds to generate")
	interval := flag.Duration("interval", 0, "Delay between rounds")
	out := flag.String("out", "", "Write the final price snapshot to this file")
	flag.Parse()

	if *ticks <= 0 {
		return errors.New("ticks must be > 0")
	}

	registry, err := loadRegistry(*configPath)
	if err != nil {
		return errors.Wrap(err, "load registry")
	}

	ctx := context.Background()
	prices := state.NewPrices()
	queue := bus.NewQueue(1024)
	metrics := obs.NewMetrics()
	dispatcher := bus.NewDispatcher(prices, store.NewMemory(), queue, metrics)
	generator := mdg.NewGenerator(nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		bus.PublishLoop(ctx, queue, lineWriter{w: os.Stdout}, metrics)
	}()

	for i := 0; i < *ticks; i++ {
		for _, class := range enum.AssetClasses() {
			instruments, _ := registry.Active(ctx, class)
			for _, inst := range instruments {
				base := inst.BasePrice
				if e, ok := prices.Get(inst.Symbol); ok {
					base = e.Price
				}
				volatility := inst.Volatility
				if volatility <= 0 {
					volatility = mdg.DefaultVolatility(class)
				}
				snapshot := generator.Simulate(base, volatility)
				snapshot.Symbol = inst.Symbol
				snapshot.Class = inst.Class
				if _, err := dispatcher.Commit(ctx, snapshot); err != nil {
					queue.Close()
					wg.Wait()
					return errors.Wrapf(err, "commit %s", inst.Symbol)
				}
			}
		}
		if *interval > 0 && i < *ticks-1 {
			time.Sleep(*interval)
		}
	}

	queue.Close()
	wg.Wait()

	if *out != "" {
		if err := state.WriteSnapshot(*out, prices.Snapshot()); err != nil {
			return errors.Wrap(err, "write snapshot")
		}
	}
	snapshot := metrics.Snapshot()
	logs.Infof("metrics: commits=%v drops=%d publish_failures=%d", snapshot.Commits, snapshot.QueueDrops, snapshot.PublishFailures)
	return nil
}

// lineWriter publishes one JSON line per snapshot.
type lineWriter struct {
	w io.Writer
}

func (l lineWriter) Publish(_ context.Context, s model.PriceSnapshot) error {
	line, err := sonic.ConfigStd.Marshal(store.NewPriceMessage(s))
	if err != nil {
		return err
	}
	_, err = l.w.Write(append(line, '\n'))
	return err
}

func loadRegistry(path string) (*schema.Registry, error) {
	if path == "" {
		return defaultRegistry()
	}
	loaded, err := ops.Load(path)
	if err != nil {
		return nil, err
	}
	return loaded.Registry, nil
}

func defaultRegistry() (*schema.Registry, error) {
	reg := schema.NewRegistry()
	for _, inst := range []model.Instrument{
		{Symbol: "TEST/USD", Class: enum.AssetClassCrypto, BasePrice: 100, Active: true},
		{Symbol: "TEST", Class: enum.AssetClassStock, BasePrice: 100, Active: true},
	} {
		if err := reg.AddInstrument(inst); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
