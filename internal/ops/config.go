package ops

import (
	"strings"
	"time"

	"pricefeed/internal/model"
	"pricefeed/internal/model/enum"
	"pricefeed/internal/schema"
	"pricefeed/pkg/exception"
	"pricefeed/pkg/websocket"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	EnvPrefix     = "PRICEFEED"
	EnvRESTAPIKey = "POLYGON_REST_API_KEY"
	EnvWSAPIKey   = "POLYGON_WS_API_KEY"

	StoreMemory   = "memory"
	StorePostgres = "postgres"

	PublishNone  = "none"
	PublishRedis = "redis"
	PublishKafka = "kafka"

	RegistryConfigSource   = "config"
	RegistryPostgresSource = "postgres"
)

// FileConfig mirrors the config file layout.
type FileConfig struct {
	Upstream     UpstreamConfig  `mapstructure:"upstream"`
	Feeds        FeedsConfig     `mapstructure:"feeds"`
	Backoff      BackoffConfig   `mapstructure:"backoff"`
	Sweep        SweepConfig     `mapstructure:"sweep"`
	Store        StoreConfig     `mapstructure:"store"`
	Publish      PublishConfig   `mapstructure:"publish"`
	Registry     RegistryConfig  `mapstructure:"registry"`
	HTTP         HTTPConfig      `mapstructure:"http"`
	Profiling    ProfilingConfig `mapstructure:"profiling"`
	SnapshotPath string          `mapstructure:"snapshot_path"`
}

// UpstreamConfig locates the market data provider.
type UpstreamConfig struct {
	RESTBaseURL string        `mapstructure:"rest_base_url"`
	RESTAPIKey  string        `mapstructure:"rest_api_key"`
	RESTTimeout time.Duration `mapstructure:"rest_timeout"`
	WSAPIKey    string        `mapstructure:"ws_api_key"`
	CryptoURL   string        `mapstructure:"crypto_url"`
	ForexURL    string        `mapstructure:"forex_url"`
}

// FeedsConfig tunes the streaming subscriptions.
type FeedsConfig struct {
	BatchSize      int           `mapstructure:"batch_size"`
	BatchPace      time.Duration `mapstructure:"batch_pace"`
	CryptoChannels []string      `mapstructure:"crypto_channels"`
	ForexChannels  []string      `mapstructure:"forex_channels"`
}

type BackoffConfig struct {
	Min    time.Duration `mapstructure:"min"`
	Max    time.Duration `mapstructure:"max"`
	Factor float64       `mapstructure:"factor"`
	Jitter float64       `mapstructure:"jitter"`
}

type SweepConfig struct {
	Fast time.Duration `mapstructure:"fast"`
	Slow time.Duration `mapstructure:"slow"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// PublishConfig selects where committed prices are relayed.
type PublishConfig struct {
	Driver    string      `mapstructure:"driver"`
	QueueSize int         `mapstructure:"queue_size"`
	Redis     RedisConfig `mapstructure:"redis"`
	Kafka     KafkaConfig `mapstructure:"kafka"`
}

// Drivers splits Driver on commas, e.g. "redis,kafka" publishes to both.
func (c PublishConfig) Drivers() []string {
	var out []string
	for _, d := range strings.Split(c.Driver, ",") {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			out = append(out, d)
		}
	}
	return out
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// RegistryConfig defines where instruments come from.
type RegistryConfig struct {
	Source      string             `mapstructure:"source"`
	Instruments []InstrumentConfig `mapstructure:"instruments"`
}

// InstrumentConfig describes an instrument entry.
type InstrumentConfig struct {
	Symbol     string  `mapstructure:"symbol"`
	Class      string  `mapstructure:"class"`
	WireID     string  `mapstructure:"wire_id"`
	RestTicker string  `mapstructure:"rest_ticker"`
	BasePrice  float64 `mapstructure:"base_price"`
	Volatility float64 `mapstructure:"volatility"`
	Active     *bool   `mapstructure:"active"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type ProfilingConfig struct {
	ServerAddress string `mapstructure:"server_address"`
	AppName       string `mapstructure:"app_name"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Registry     *schema.Registry
	Upstream     UpstreamConfig
	Feeds        FeedsConfig
	Backoff      websocket.Backoff
	Sweep        SweepConfig
	Store        StoreConfig
	Publish      PublishConfig
	Source       string
	HTTP         HTTPConfig
	Profiling    ProfilingConfig
	SnapshotPath string
}

// Load reads .env, the optional config file at path and PRICEFEED_* env
// overrides, then validates the result and builds the registry.
func Load(path string) (Loaded, error) {
	if err := godotenv.Load(); err != nil {
		logs.Debugf("config: no .env loaded, err: %+v", err)
	}

	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Loaded{}, errors.Wrapf(err, "read config %s", path)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return Loaded{}, err
	}

	var cfg FileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "decode config")
	}
	return resolve(cfg)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("upstream.rest_base_url", "https://api.polygon.io")
	v.SetDefault("upstream.rest_timeout", "8s")
	v.SetDefault("upstream.crypto_url", "wss://socket.polygon.io/crypto")
	v.SetDefault("upstream.forex_url", "wss://socket.polygon.io/forex")

	v.SetDefault("feeds.batch_size", 50)
	v.SetDefault("feeds.batch_pace", "500ms")

	v.SetDefault("backoff.min", "1s")
	v.SetDefault("backoff.max", "30s")
	v.SetDefault("backoff.factor", 1.5)

	v.SetDefault("sweep.fast", "15s")
	v.SetDefault("sweep.slow", "60s")

	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.sslmode", "disable")
	v.SetDefault("store.postgres.max_open_conns", 10)
	v.SetDefault("store.postgres.max_idle_conns", 5)
	v.SetDefault("store.postgres.conn_max_lifetime", "30m")

	v.SetDefault("publish.driver", PublishNone)
	v.SetDefault("publish.queue_size", 1024)
	v.SetDefault("publish.redis.addr", "localhost:6379")
	v.SetDefault("publish.redis.ttl", "10m")
	v.SetDefault("publish.kafka.topic", "prices")

	v.SetDefault("registry.source", RegistryConfigSource)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("profiling.app_name", "pricefeed")
}

// bindEnv maps flat env vars onto nested keys. The provider keys are also
// read under their conventional names.
func bindEnv(v *viper.Viper) error {
	if err := v.BindEnv("upstream.rest_api_key", EnvPrefix+"_UPSTREAM_REST_API_KEY", EnvRESTAPIKey); err != nil {
		return errors.Wrap(err, "bind rest key")
	}
	if err := v.BindEnv("upstream.ws_api_key", EnvPrefix+"_UPSTREAM_WS_API_KEY", EnvWSAPIKey); err != nil {
		return errors.Wrap(err, "bind ws key")
	}
	for _, key := range []string{
		"store.driver", "store.postgres.dsn", "store.postgres.password",
		"publish.driver", "publish.redis.addr", "publish.redis.password", "publish.kafka.brokers",
		"http.addr", "profiling.server_address", "snapshot_path",
	} {
		if err := v.BindEnv(key); err != nil {
			return errors.Wrapf(err, "bind %s", key)
		}
	}
	return nil
}

func resolve(cfg FileConfig) (Loaded, error) {
	if err := validate(cfg); err != nil {
		return Loaded{}, err
	}
	registry, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}
	return Loaded{
		Registry: registry,
		Upstream: cfg.Upstream,
		Feeds:    cfg.Feeds,
		Backoff: websocket.Backoff{
			Min:    cfg.Backoff.Min,
			Max:    cfg.Backoff.Max,
			Factor: cfg.Backoff.Factor,
			Jitter: cfg.Backoff.Jitter,
		},
		Sweep:        cfg.Sweep,
		Store:        cfg.Store,
		Publish:      cfg.Publish,
		Source:       cfg.Registry.Source,
		HTTP:         cfg.HTTP,
		Profiling:    cfg.Profiling,
		SnapshotPath: cfg.SnapshotPath,
	}, nil
}

func validate(cfg FileConfig) error {
	switch cfg.Store.Driver {
	case StoreMemory, StorePostgres:
	default:
		return errors.Wrapf(exception.ErrInvalidConfig, "store driver: %q", cfg.Store.Driver)
	}
	drivers := cfg.Publish.Drivers()
	if len(drivers) == 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "publish driver is empty")
	}
	for _, driver := range drivers {
		switch driver {
		case PublishRedis:
		case PublishNone:
			if len(drivers) > 1 {
				return errors.Wrapf(exception.ErrInvalidConfig, "publish driver %q cannot be combined", PublishNone)
			}
		case PublishKafka:
			if len(cfg.Publish.Kafka.Brokers) == 0 || cfg.Publish.Kafka.Topic == "" {
				return errors.Wrap(exception.ErrInvalidConfig, "kafka publish needs brokers and topic")
			}
		default:
			return errors.Wrapf(exception.ErrInvalidConfig, "publish driver: %q", driver)
		}
	}
	switch cfg.Registry.Source {
	case RegistryConfigSource:
	case RegistryPostgresSource:
		if cfg.Store.Driver != StorePostgres {
			return errors.Wrap(exception.ErrInvalidConfig, "postgres registry needs the postgres store")
		}
	default:
		return errors.Wrapf(exception.ErrInvalidConfig, "registry source: %q", cfg.Registry.Source)
	}
	if cfg.Backoff.Min <= 0 || cfg.Backoff.Max < cfg.Backoff.Min {
		return errors.Wrapf(exception.ErrInvalidConfig, "backoff range: %s-%s", cfg.Backoff.Min, cfg.Backoff.Max)
	}
	if cfg.Backoff.Factor < 1 {
		return errors.Wrapf(exception.ErrInvalidConfig, "backoff factor must be >= 1, got %v", cfg.Backoff.Factor)
	}
	if cfg.Backoff.Jitter < 0 || cfg.Backoff.Jitter > 1 {
		return errors.Wrapf(exception.ErrInvalidConfig, "backoff jitter must be in [0, 1], got %v", cfg.Backoff.Jitter)
	}
	if cfg.Sweep.Fast <= 0 || cfg.Sweep.Slow <= 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "sweep intervals must be > 0")
	}
	if cfg.Feeds.BatchSize <= 0 {
		return errors.Wrapf(exception.ErrInvalidConfig, "batch size must be > 0, got %d", cfg.Feeds.BatchSize)
	}
	return nil
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	for i, entry := range cfg.Instruments {
		inst, err := resolveInstrument(entry)
		if err != nil {
			return nil, errors.Wrapf(err, "instrument %d", i)
		}
		if err := reg.AddInstrument(inst); err != nil {
			return nil, errors.Wrapf(err, "instrument %d", i)
		}
	}
	return reg, nil
}

func resolveInstrument(cfg InstrumentConfig) (model.Instrument, error) {
	class, ok := enum.ParseAssetClass(cfg.Class)
	if !ok {
		return model.Instrument{}, errors.Wrapf(exception.ErrUnknownAssetClass, "symbol: %s, class: %q", cfg.Symbol, cfg.Class)
	}
	if cfg.BasePrice < 0 {
		return model.Instrument{}, errors.Wrapf(exception.ErrInvalidConfig, "symbol: %s, base price must be >= 0", cfg.Symbol)
	}
	if cfg.Volatility < 0 {
		return model.Instrument{}, errors.Wrapf(exception.ErrInvalidConfig, "symbol: %s, volatility must be >= 0", cfg.Symbol)
	}
	active := true
	if cfg.Active != nil {
		active = *cfg.Active
	}
	return model.Instrument{
		Symbol:     cfg.Symbol,
		Class:      class,
		WireID:     cfg.WireID,
		RestTicker: cfg.RestTicker,
		BasePrice:  cfg.BasePrice,
		Volatility: cfg.Volatility,
		Active:     active,
	}, nil
}
