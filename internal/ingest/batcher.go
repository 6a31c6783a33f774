package ingest

import (
	"context"
	"time"

	"pricefeed/internal/ingest/polygon"
	"pricefeed/pkg/clock"
	"pricefeed/pkg/websocket"

	"github.com/yanun0323/logs"
)

const (
	DefaultBatchSize = 50
	DefaultBatchPace = 500 * time.Millisecond
)

// Batcher splits a subscription set into fixed-size batches and sends one
// request per batch and channel, pacing consecutive sends.
type Batcher struct {
	size  int
	pace  time.Duration
	clock clock.Clock
}

// NewBatcher creates a batcher. Non-positive size falls back to the default;
// a zero pace sends back to back.
func NewBatcher(size int, pace time.Duration, clk clock.Clock) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if pace < 0 {
		pace = 0
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Batcher{size: size, pace: pace, clock: clk}
}

// Subscribe sends every batch in batch-major, channel-minor order and returns
// the number of requests that were written. A failed send is logged and skipped.
func (b *Batcher) Subscribe(ctx context.Context, w websocket.Writer, wireIDs []string, channels []string) int {
	sent := 0
	first := true
	for start := 0; start < len(wireIDs); start += b.size {
		end := min(start+b.size, len(wireIDs))
		batch := wireIDs[start:end]
		for _, channel := range channels {
			if !first && !b.wait(ctx) {
				return sent
			}
			first = false

			typ, payload, err := polygon.EncodeSubscribe(channel, batch)
			if err != nil {
				logs.Warnf("batcher: encode %s batch at %d, err: %+v", channel, start, err)
				continue
			}
			if err := w.Write(ctx, typ, payload); err != nil {
				logs.Warnf("batcher: send %s batch at %d, err: %+v", channel, start, err)
				continue
			}
			sent++
		}
	}
	return sent
}

// Requests returns how many subscribe requests a full pass over count wire ids sends.
func (b *Batcher) Requests(count, channels int) int {
	if count <= 0 || channels <= 0 {
		return 0
	}
	return (count + b.size - 1) / b.size * channels
}

func (b *Batcher) wait(ctx context.Context) bool {
	if b.pace <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-b.clock.After(b.pace):
		return true
	}
}
