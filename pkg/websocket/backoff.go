package websocket

import (
	"math"
	"math/rand"
	"time"
)

// DefaultBackoff returns the upstream reconnect schedule: 1s growing by 1.5x, capped at 30s.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:    time.Second,
		Max:    30 * time.Second,
		Factor: 1.5,
	}
}

// Next returns the delay after the given number of consecutive failures.
// Zero failures yields Min.
func (b Backoff) Next(failures int) time.Duration {
	if failures < 0 {
		failures = 0
	}
	min := b.Min
	if min <= 0 {
		min = time.Second
	}
	max := b.Max
	if max <= 0 {
		max = 30 * time.Second
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1.5
	}

	raw := float64(min) * math.Pow(factor, float64(failures))
	wait := max
	if raw < float64(max) {
		wait = time.Duration(raw)
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := b.Jitter
	if jitter > 1 {
		jitter = 1
	}
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}
