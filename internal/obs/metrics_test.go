package obs

import (
	"testing"
	"time"

	"pricefeed/internal/model/enum"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	now := time.Unix(100, 0)
	m.ObserveCommit(enum.SourceStream, now.Add(-20*time.Millisecond), now)
	m.ObserveCommit(enum.SourceStream, now.Add(-10*time.Millisecond), now)
	m.ObserveCommit(enum.SourceSynthetic, time.Time{}, now)
	m.IncReconnect()
	m.IncQueueDrop()
	m.IncQueueDrop()

	s := m.Snapshot()
	assert.Equal(t, map[string]uint64{"stream": 2, "synthetic": 1}, s.Commits)
	assert.Equal(t, uint64(1), s.Reconnects)
	assert.Equal(t, uint64(2), s.QueueDrops)
	assert.Equal(t, uint64(2), s.CommitLatency.Count)
	assert.Equal(t, 10*time.Millisecond, s.CommitLatency.Min)
	assert.Equal(t, 20*time.Millisecond, s.CommitLatency.Max)
	assert.Equal(t, 15*time.Millisecond, s.CommitLatency.Avg)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncDecodeError()
	m.ObserveCommit(enum.SourceREST, time.Now(), time.Now())
	assert.Equal(t, Snapshot{}, m.Snapshot())
}
