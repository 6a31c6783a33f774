package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pricefeed/internal/model"
	"pricefeed/internal/model/enum"
	"pricefeed/internal/obs"
	"pricefeed/internal/state"
	"pricefeed/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	last     map[string]float64
	upserts  []model.PriceSnapshot
	failNext bool
}

func (f *fakeStore) Upsert(_ context.Context, s model.PriceSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("db down")
	}
	f.upserts = append(f.upserts, s)
	return nil
}

func (f *fakeStore) LastPrice(_ context.Context, symbol string) (float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.last[symbol]
	return p, ok, nil
}

func snap(symbol string, class enum.AssetClass, price float64) model.PriceSnapshot {
	return model.PriceSnapshot{
		Symbol:    symbol,
		Class:     class,
		Price:     price,
		Source:    enum.SourceStream,
		Timestamp: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC),
	}
}

func TestCommitDerivesDelta(t *testing.T) {
	prices := state.NewPrices()
	d := NewDispatcher(prices, nil, nil, obs.NewMetrics())

	first, err := d.Commit(t.Context(), snap("BTC/USD", enum.AssetClassCrypto, 100))
	require.NoError(t, err)
	assert.Zero(t, first.Change)

	got, ok := prices.Get("BTC/USD")
	require.True(t, ok)
	assert.Equal(t, 100.0, got.Price)

	second, err := d.Commit(t.Context(), snap("BTC/USD", enum.AssetClassCrypto, 104.5))
	require.NoError(t, err)
	assert.Equal(t, 4.5, second.Change)
	assert.Equal(t, 4.5, second.ChangePercent)
	assert.Equal(t, enum.MarketStatusOpen, second.Status)

	got, _ = prices.Get("BTC/USD")
	assert.Equal(t, 104.5, got.Price)
}

func TestCommitDeltaUsesRoundedPrices(t *testing.T) {
	d := NewDispatcher(state.NewPrices(), nil, nil, nil)

	_, err := d.Commit(t.Context(), snap("BTC/USD", enum.AssetClassCrypto, 100))
	require.NoError(t, err)
	out, err := d.Commit(t.Context(), snap("BTC/USD", enum.AssetClassCrypto, 101.005))
	require.NoError(t, err)
	assert.Equal(t, 101.01, out.Price)
	assert.Equal(t, 1.01, out.Change)
	assert.Equal(t, 1.01, out.ChangePercent)

	fx, err := d.Commit(t.Context(), snap("EUR/USD", enum.AssetClassForex, 1.08))
	require.NoError(t, err)
	assert.Zero(t, fx.Change)
	fx, err = d.Commit(t.Context(), snap("EUR/USD", enum.AssetClassForex, 1.08125))
	require.NoError(t, err)
	assert.Equal(t, 1.0813, fx.Price)
	assert.Equal(t, 0.0013, fx.Change)
}

func TestCommitFallsBackToPersistedPrice(t *testing.T) {
	store := &fakeStore{last: map[string]float64{"AAPL": 200}}
	d := NewDispatcher(state.NewPrices(), store, nil, nil)

	out, err := d.Commit(t.Context(), snap("AAPL", enum.AssetClassStock, 210))
	require.NoError(t, err)
	assert.Equal(t, 10.0, out.Change)
	assert.Equal(t, 5.0, out.ChangePercent)
	require.Len(t, store.upserts, 1)
	assert.Equal(t, 210.0, store.upserts[0].Price)
}

func TestCommitKeepsProvidedDelta(t *testing.T) {
	d := NewDispatcher(state.NewPrices(), nil, nil, nil)
	s := snap("EUR/USD", enum.AssetClassForex, 1.08123).WithDelta(1.07)
	out, err := d.Commit(t.Context(), s)
	require.NoError(t, err)
	assert.Equal(t, 1.0812, out.Price)
	assert.Equal(t, 0.0112, out.Change)
}

func TestCommitPersistFailureIsNotFatal(t *testing.T) {
	store := &fakeStore{failNext: true}
	m := obs.NewMetrics()
	q := NewQueue(4)
	prices := state.NewPrices()
	d := NewDispatcher(prices, store, q, m)

	_, err := d.Commit(t.Context(), snap("SPX", enum.AssetClassIndex, 5000))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.Snapshot().PersistFailures)
	assert.Equal(t, 1, q.Len())
	_, ok := prices.Get("SPX")
	assert.True(t, ok)
}

func TestCommitQueueFullIsCounted(t *testing.T) {
	m := obs.NewMetrics()
	q := NewQueue(1)
	d := NewDispatcher(state.NewPrices(), nil, q, m)

	_, err := d.Commit(t.Context(), snap("BTC/USD", enum.AssetClassCrypto, 1))
	require.NoError(t, err)
	_, err = d.Commit(t.Context(), snap("BTC/USD", enum.AssetClassCrypto, 2))
	require.NoError(t, err)
	q.Close()
	_, err = d.Commit(t.Context(), snap("BTC/USD", enum.AssetClassCrypto, 3))
	require.NoError(t, err)

	s := m.Snapshot()
	assert.Equal(t, uint64(1), s.QueueDrops)
	assert.Equal(t, uint64(1), s.QueueClosed)
	assert.Equal(t, uint64(3), s.Commits["stream"])
}

func TestCommitRejects(t *testing.T) {
	d := NewDispatcher(state.NewPrices(), nil, nil, nil)

	_, err := d.Commit(t.Context(), snap("BTC/USD", enum.AssetClassCrypto, 0))
	assert.ErrorIs(t, err, exception.ErrInvalidSnapshot)

	_, err = d.Commit(t.Context(), snap("X", enum.AssetClassStock, 1))
	require.NoError(t, err)
	_, err = d.Commit(t.Context(), snap("X", enum.AssetClassCrypto, 1))
	assert.ErrorIs(t, err, exception.ErrClassConflict)
}

func TestCommitSerializesPerSymbol(t *testing.T) {
	prices := state.NewPrices()
	store := &fakeStore{}
	d := NewDispatcher(prices, store, nil, nil)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = d.Commit(context.Background(), snap("ETH/USD", enum.AssetClassCrypto, float64(100+i)))
		}(i)
	}
	wg.Wait()

	require.Len(t, store.upserts, 50)
	last := store.upserts[len(store.upserts)-1]
	got, _ := prices.Get("ETH/USD")
	assert.Equal(t, last.Price, got.Price)
	for i := 1; i < len(store.upserts); i++ {
		prev, cur := store.upserts[i-1], store.upserts[i]
		assert.InDelta(t, cur.Price-prev.Price, cur.Change, 1e-6)
	}
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []string
}

func (r *recordingPublisher) Publish(_ context.Context, s model.PriceSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, s.Symbol)
	return nil
}

func TestPublishLoop(t *testing.T) {
	q := NewQueue(8)
	pub := &recordingPublisher{}
	require.NoError(t, q.TryPublish(Event{Snapshot: snap("A", enum.AssetClassStock, 1)}))
	require.NoError(t, q.TryPublish(Event{Snapshot: snap("B", enum.AssetClassStock, 1)}))
	q.Close()

	PublishLoop(t.Context(), q, pub, nil)
	assert.Equal(t, []string{"A", "B"}, pub.got)
	assert.ErrorIs(t, q.TryPublish(Event{}), ErrQueueClosed)
}
