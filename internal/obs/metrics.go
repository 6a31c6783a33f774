package obs

import (
	"sync/atomic"
	"time"

	"pricefeed/internal/model/enum"
)

const maxSource = int(enum.SourceSynthetic)

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	commits            [maxSource + 1]uint64
	reconnects         uint64
	authFailures       uint64
	decodeErrors       uint64
	resolutionFailures uint64
	closedDrops        uint64
	restExhausted      uint64
	persistFailures    uint64
	publishFailures    uint64
	queueDrops         uint64
	queueClosed        uint64

	commitLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64        `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Commits            map[string]uint64 `json:"commits"`
	Reconnects         uint64            `json:"reconnects"`
	AuthFailures       uint64            `json:"authFailures"`
	DecodeErrors       uint64            `json:"decodeErrors"`
	ResolutionFailures uint64            `json:"resolutionFailures"`
	ClosedMarketDrops  uint64            `json:"closedMarketDrops"`
	RESTExhausted      uint64            `json:"restExhausted"`
	PersistFailures    uint64            `json:"persistFailures"`
	PublishFailures    uint64            `json:"publishFailures"`
	QueueDrops         uint64            `json:"queueDrops"`
	QueueClosed        uint64            `json:"queueClosed"`
	CommitLatency      LatencySnapshot   `json:"commitLatency"`
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveCommit counts a committed snapshot and how long after its event time it landed.
func (m *Metrics) ObserveCommit(source enum.Source, eventTime, committed time.Time) {
	if m == nil {
		return
	}
	idx := int(source)
	if idx >= 0 && idx < len(m.commits) {
		atomic.AddUint64(&m.commits[idx], 1)
	}
	if !eventTime.IsZero() {
		if d := committed.Sub(eventTime); d >= 0 {
			m.commitLatency.Observe(d)
		}
	}
}

func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.reconnects, 1)
}

func (m *Metrics) IncAuthFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.authFailures, 1)
}

func (m *Metrics) IncDecodeError() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.decodeErrors, 1)
}

func (m *Metrics) IncResolutionFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.resolutionFailures, 1)
}

// IncClosedMarketDrop records a stream update dropped by the market-hours gate.
func (m *Metrics) IncClosedMarketDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.closedDrops, 1)
}

func (m *Metrics) IncRESTExhausted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.restExhausted, 1)
}

func (m *Metrics) IncPersistFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.persistFailures, 1)
}

func (m *Metrics) IncPublishFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.publishFailures, 1)
}

// IncQueueDrop records a queue drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncQueueClosed records a closed-queue publish attempt.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueClosed, 1)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	commits := make(map[string]uint64)
	for i := range m.commits {
		if v := atomic.LoadUint64(&m.commits[i]); v > 0 {
			commits[enum.Source(i).String()] = v
		}
	}
	return Snapshot{
		Commits:            commits,
		Reconnects:         atomic.LoadUint64(&m.reconnects),
		AuthFailures:       atomic.LoadUint64(&m.authFailures),
		DecodeErrors:       atomic.LoadUint64(&m.decodeErrors),
		ResolutionFailures: atomic.LoadUint64(&m.resolutionFailures),
		ClosedMarketDrops:  atomic.LoadUint64(&m.closedDrops),
		RESTExhausted:      atomic.LoadUint64(&m.restExhausted),
		PersistFailures:    atomic.LoadUint64(&m.persistFailures),
		PublishFailures:    atomic.LoadUint64(&m.publishFailures),
		QueueDrops:         atomic.LoadUint64(&m.queueDrops),
		QueueClosed:        atomic.LoadUint64(&m.queueClosed),
		CommitLatency:      m.commitLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
