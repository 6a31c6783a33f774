package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"pricefeed/internal/bus"
	"pricefeed/internal/engine"
	"pricefeed/internal/ingest"
	"pricefeed/internal/model/enum"
	"pricefeed/internal/ops"
	"pricefeed/internal/rest"
	"pricefeed/internal/schema"
	"pricefeed/internal/store"
	"pricefeed/pkg/conn"
	"pricefeed/pkg/websocket"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("ingest: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("PRICEFEED_CONFIG"), "Path to yaml/json config (optional)")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		select {
		case <-sys.Shutdown():
			stop()
		case <-ctx.Done():
		}
	}()

	if addr := loaded.Profiling.ServerAddress; addr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: loaded.Profiling.AppName,
			ServerAddress:   addr,
			Logger:          profilerLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return errors.Wrap(err, "start profiler")
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	persistence, source, closeStore, err := openStore(ctx, loaded)
	if err != nil {
		return err
	}
	defer closeStore()

	publisher, closePublisher, err := openPublisher(loaded.Publish)
	if err != nil {
		return err
	}
	defer closePublisher()

	cascade := rest.NewCascade(rest.NewClient(rest.Config{
		BaseURL: loaded.Upstream.RESTBaseURL,
		APIKey:  loaded.Upstream.RESTAPIKey,
		Timeout: loaded.Upstream.RESTTimeout,
	}, nil))
	if !cascade.Enabled() {
		logs.Warnf("ingest: %s not set, sweeps use synthetic prices", ops.EnvRESTAPIKey)
	}

	eng, err := engine.New(engine.Config{
		Registry:  loaded.Registry,
		Source:    source,
		Store:     persistence,
		Publisher: publisher,
		QueueSize: loaded.Publish.QueueSize,
		StreamKey: loaded.Upstream.WSAPIKey,
		Dialers: map[enum.AssetClass]websocket.Dialer{
			enum.AssetClassCrypto: websocket.NewDialer(loaded.Upstream.CryptoURL, http.Header{}),
			enum.AssetClassForex:  websocket.NewDialer(loaded.Upstream.ForexURL, http.Header{}),
		},
		Channels:     channels(loaded.Feeds),
		BatchSize:    loaded.Feeds.BatchSize,
		BatchPace:    loaded.Feeds.BatchPace,
		Backoff:      loaded.Backoff,
		Cascade:      cascade,
		FastInterval: loaded.Sweep.Fast,
		SlowInterval: loaded.Sweep.Slow,
		SnapshotPath: loaded.SnapshotPath,
	})
	if err != nil {
		return errors.Wrap(err, "build engine")
	}
	server := ops.NewServer(loaded.HTTP.Addr, eng)

	logs.Infof("ingest: %d instruments, store %s, publish %s, registry %s",
		loaded.Registry.Count(), loaded.Store.Driver, loaded.Publish.Driver, loaded.Source)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })
	return g.Wait()
}

// openStore returns the persistence collaborator and the instrument source.
// With the postgres registry the in-memory registry is seeded from the table
// so stream identifiers resolve.
func openStore(ctx context.Context, loaded ops.Loaded) (bus.Persistence, schema.Source, func(), error) {
	if loaded.Store.Driver != ops.StorePostgres {
		return store.NewMemory(), loaded.Registry, func() {}, nil
	}

	pg := loaded.Store.Postgres
	client, err := conn.New(conn.Option{
		Host:            pg.Host,
		Port:            pg.Port,
		User:            pg.User,
		Password:        pg.Password,
		Database:        pg.Database,
		SSLMode:         pg.SSLMode,
		ConnString:      pg.DSN,
		MaxOpenConns:    pg.MaxOpenConns,
		MaxIdleConns:    pg.MaxIdleConns,
		ConnMaxLifetime: pg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "open postgres")
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logs.Warnf("ingest: close postgres, err: %+v", err)
		}
	}
	if err := client.Ping(ctx); err != nil {
		closeFn()
		return nil, nil, nil, errors.Wrap(err, "ping postgres")
	}

	db := store.NewPostgres(client.DB())
	if err := db.Migrate(ctx); err != nil {
		closeFn()
		return nil, nil, nil, errors.Wrap(err, "migrate postgres")
	}
	if loaded.Source != ops.RegistryPostgresSource {
		return db, loaded.Registry, closeFn, nil
	}

	for _, class := range enum.AssetClasses() {
		instruments, err := db.Active(ctx, class)
		if err != nil {
			closeFn()
			return nil, nil, nil, errors.Wrapf(err, "load %s instruments", class)
		}
		for _, inst := range instruments {
			if err := loaded.Registry.AddInstrument(inst); err != nil {
				logs.Warnf("ingest: skip instrument %s, err: %+v", inst.Symbol, err)
			}
		}
	}
	return db, db, closeFn, nil
}

// openPublisher builds one publisher per configured driver and fans out when
// more than one is named.
func openPublisher(cfg ops.PublishConfig) (bus.Publisher, func(), error) {
	var (
		publishers store.Fanout
		closers    []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	for _, driver := range cfg.Drivers() {
		switch driver {
		case ops.PublishRedis:
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			publishers = append(publishers, store.NewRedis(client, cfg.Redis.TTL))
			closers = append(closers, func() { _ = client.Close() })
		case ops.PublishKafka:
			k := store.NewKafka(store.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
			publishers = append(publishers, k)
			closers = append(closers, func() {
				if err := k.Close(); err != nil {
					logs.Warnf("ingest: close kafka writer, err: %+v", err)
				}
			})
		case ops.PublishNone:
		default:
			closeAll()
			return nil, nil, errors.Errorf("unknown publish driver: %s", driver)
		}
	}

	switch len(publishers) {
	case 0:
		return store.Nop{}, closeAll, nil
	case 1:
		return publishers[0], closeAll, nil
	default:
		return publishers, closeAll, nil
	}
}

func channels(cfg ops.FeedsConfig) map[enum.AssetClass][]string {
	out := map[enum.AssetClass][]string{
		enum.AssetClassCrypto: ingest.DefaultChannels(enum.AssetClassCrypto),
		enum.AssetClassForex:  ingest.DefaultChannels(enum.AssetClassForex),
	}
	if len(cfg.CryptoChannels) > 0 {
		out[enum.AssetClassCrypto] = cfg.CryptoChannels
	}
	if len(cfg.ForexChannels) > 0 {
		out[enum.AssetClassForex] = cfg.ForexChannels
	}
	return out
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...interface{})  { logs.Debugf(format, args...) }
func (profilerLogger) Debugf(format string, args ...interface{}) { logs.Debugf(format, args...) }
func (profilerLogger) Errorf(format string, args ...interface{}) { logs.Errorf(format, args...) }
