package mdg

import (
	"testing"
	"time"

	"pricefeed/internal/model"
	"pricefeed/internal/model/enum"
	"pricefeed/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapResolver map[string]string

func (m mapResolver) Resolve(wire string, _ enum.AssetClass) (string, bool) {
	s, ok := m[wire]
	return s, ok
}

func TestNormalize(t *testing.T) {
	saturday := time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC)
	n := NewNormalizer(mapResolver{"BTC-USD": "BTC/USD", "EUR/USD": "EUR/USD"}, func() time.Time { return saturday })

	snap, err := n.Normalize(model.RawUpdate{WireID: "BTC-USD", Class: enum.AssetClassCrypto, Price: 65000, High: 65500, Volume: 3})
	require.NoError(t, err)
	assert.Equal(t, "BTC/USD", snap.Symbol)
	assert.Equal(t, 65500.0, snap.High24h)
	assert.Equal(t, 65000.0, snap.Low24h)
	assert.Equal(t, saturday, snap.Timestamp)
	assert.Equal(t, enum.SourceStream, snap.Source)
	assert.False(t, snap.HasDelta)

	_, err = n.Normalize(model.RawUpdate{WireID: "EUR/USD", Class: enum.AssetClassForex, Price: 1.08})
	assert.ErrorIs(t, err, exception.ErrMarketClosed)

	_, err = n.Normalize(model.RawUpdate{WireID: "DOGE-USD", Class: enum.AssetClassCrypto, Price: 1})
	assert.ErrorIs(t, err, exception.ErrResolutionFailure)

	_, err = n.Normalize(model.RawUpdate{WireID: "BTC-USD", Class: enum.AssetClassCrypto})
	assert.ErrorIs(t, err, exception.ErrInvalidSnapshot)
}
