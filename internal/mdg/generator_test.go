package mdg

import (
	"math"
	"math/rand"
	"testing"

	"pricefeed/internal/model/enum"

	"github.com/stretchr/testify/assert"
)

type fixedRand struct {
	values []float64
	i      int
}

func (f *fixedRand) Float64() float64 {
	v := f.values[f.i%len(f.values)]
	f.i++
	return v
}

func TestSimulateBounds(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewSource(42)))
	for range 1000 {
		s := g.Simulate(200, 5)
		assert.GreaterOrEqual(t, s.Price, 190.0)
		assert.LessOrEqual(t, s.Price, 210.0)
		assert.GreaterOrEqual(t, s.High24h, s.Price)
		assert.LessOrEqual(t, s.Low24h, s.Price)
		assert.GreaterOrEqual(t, s.Volume, minVolume)
		assert.Equal(t, enum.SourceSynthetic, s.Source)
		assert.True(t, s.HasDelta)
	}
}

func TestSimulateExtremes(t *testing.T) {
	g := NewGenerator(&fixedRand{values: []float64{1, 1, 1, 1}})
	s := g.Simulate(100, 10)
	assert.InDelta(t, 110, s.Price, 1e-9)
	assert.InDelta(t, 10, s.Change, 1e-9)
	assert.InDelta(t, 110*1.02, s.High24h, 1e-9)

	g = NewGenerator(&fixedRand{values: []float64{0, 0, 0, 0}})
	s = g.Simulate(100, 10)
	assert.InDelta(t, 90, s.Price, 1e-9)
	assert.InDelta(t, -10, s.ChangePercent, 1e-9)
}

func TestSimulateInvalidBase(t *testing.T) {
	g := NewGenerator(&fixedRand{values: []float64{0.5}})
	for _, base := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		s := g.Simulate(base, 3)
		assert.InDelta(t, 100, s.Price, 1e-9)
		assert.False(t, math.IsNaN(s.Price))
	}
}

func TestSimulateNeverNegative(t *testing.T) {
	g := NewGenerator(&fixedRand{values: []float64{0}})
	s := g.Simulate(1, 500)
	assert.Greater(t, s.Price, 0.0)
}
