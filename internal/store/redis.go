package store

import (
	"context"
	"errors"
	"time"

	"pricefeed/internal/model"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	yerrors "github.com/yanun0323/errors"
)

// DefaultRedisTTL bounds how long a cached price outlives its last update.
const DefaultRedisTTL = time.Hour

// Redis caches the last price under price:<symbol> and fans updates out on prices.<symbol>.
type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedis(client redis.Cmdable, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Publish sets the cache key and publishes on the symbol channel in one pipeline.
func (r *Redis) Publish(ctx context.Context, snapshot model.PriceSnapshot) error {
	payload, err := encodeMessage(snapshot)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, keyPrefix+snapshot.Symbol, payload, r.ttl)
	pipe.Publish(ctx, channelPrefix+snapshot.Symbol, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return yerrors.Wrap(err, "redis pipeline").With("symbol", snapshot.Symbol)
	}
	return nil
}

// Upsert only refreshes the cache key.
func (r *Redis) Upsert(ctx context.Context, snapshot model.PriceSnapshot) error {
	payload, err := encodeMessage(snapshot)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, keyPrefix+snapshot.Symbol, payload, r.ttl).Err(); err != nil {
		return yerrors.Wrap(err, "redis set").With("symbol", snapshot.Symbol)
	}
	return nil
}

func (r *Redis) LastPrice(ctx context.Context, symbol string) (float64, bool, error) {
	raw, err := r.client.Get(ctx, keyPrefix+symbol).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, yerrors.Wrap(err, "redis get").With("symbol", symbol)
	}
	var msg PriceMessage
	if err := sonic.ConfigFastest.Unmarshal(raw, &msg); err != nil {
		return 0, false, yerrors.Wrap(err, "decode cached price").With("symbol", symbol)
	}
	return msg.Price, msg.Price > 0, nil
}
