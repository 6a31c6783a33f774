package mdg

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"pricefeed/internal/model"
	"pricefeed/internal/model/enum"
)

const (
	defaultBasePrice = 100.0
	maxVolatility    = 99.0
	rangeBand        = 0.02
	minVolume        = 1_000.0
	volumeSpan       = 999_000.0
)

// Rand is the randomness a Generator draws from. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Generator simulates price movement when no upstream data is available.
type Generator struct {
	mu  sync.Mutex
	rng Rand
	now func() time.Time
}

// NewGenerator creates a generator. A nil rng seeds one from the wall clock.
func NewGenerator(rng Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rng: rng, now: func() time.Time { return time.Now().UTC() }}
}

// Simulate moves base by a uniform percentage in [-volatility, +volatility]
// and derives a surrounding high/low band and a volume. It never fails:
// a non-positive or non-finite base falls back to 100.
func (g *Generator) Simulate(base, volatility float64) model.PriceSnapshot {
	if base <= 0 || math.IsNaN(base) || math.IsInf(base, 0) {
		base = defaultBasePrice
	}
	if volatility < 0 || math.IsNaN(volatility) {
		volatility = 0
	}
	volatility = math.Min(volatility, maxVolatility)

	g.mu.Lock()
	pct := (g.rng.Float64()*2 - 1) * volatility
	up := g.rng.Float64() * rangeBand
	down := g.rng.Float64() * rangeBand
	vol := minVolume + g.rng.Float64()*volumeSpan
	g.mu.Unlock()

	price := base * (1 + pct/100)
	return model.PriceSnapshot{
		Price:         price,
		Change:        price - base,
		ChangePercent: pct,
		High24h:       price * (1 + up),
		Low24h:        price * (1 - down),
		Volume:        vol,
		Source:        enum.SourceSynthetic,
		Timestamp:     g.now(),
		HasDelta:      true,
	}
}

// DefaultVolatility is the percent swing used when an instrument does not set one.
func DefaultVolatility(class enum.AssetClass) float64 {
	switch class {
	case enum.AssetClassCrypto:
		return 2
	case enum.AssetClassForex:
		return 0.3
	case enum.AssetClassStock:
		return 1
	case enum.AssetClassIndex:
		return 0.5
	default:
		return 1
	}
}
