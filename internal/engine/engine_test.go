package engine

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pricefeed/internal/mdg"
	"pricefeed/internal/model"
	"pricefeed/internal/model/enum"
	"pricefeed/internal/obs"
	"pricefeed/internal/rest"
	"pricefeed/internal/schema"
	"pricefeed/internal/state"
	"pricefeed/internal/store"
	"pricefeed/pkg/clock"
	"pricefeed/pkg/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	wednesday = time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)
	saturday  = time.Date(2024, 3, 16, 15, 0, 0, 0, time.UTC)
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	for _, inst := range []model.Instrument{
		{Symbol: "BTC/USD", Class: enum.AssetClassCrypto, BasePrice: 60000, Active: true},
		{Symbol: "EUR/USD", Class: enum.AssetClassForex, BasePrice: 1.08, Active: true},
		{Symbol: "AAPL", Class: enum.AssetClassStock, BasePrice: 150, Volatility: 1, Active: true},
		{Symbol: "SPX", Class: enum.AssetClassIndex, BasePrice: 5000, Active: true},
		{Symbol: "TSLA", Class: enum.AssetClassStock, BasePrice: 200, Active: false},
	} {
		require.NoError(t, reg.AddInstrument(inst))
	}
	return reg
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.Registry == nil {
		cfg.Registry = testRegistry(t)
	}
	if cfg.Generator == nil {
		cfg.Generator = mdg.NewGenerator(rand.New(rand.NewSource(7)))
	}
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

func TestSweepSynthetic(t *testing.T) {
	metrics := obs.NewMetrics()
	e := newTestEngine(t, Config{Clock: clock.NewManual(wednesday), Metrics: metrics})
	slow := e.sweepers[1]

	assert.Equal(t, 2, slow.Sweep(t.Context()))

	entry, ok := e.Prices().Get("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 150, entry.Price, 1.5)
	_, ok = e.Prices().Get("TSLA")
	assert.False(t, ok, "inactive instruments are not swept")

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(2), snap.Commits[enum.SourceSynthetic.String()])
	assert.Zero(t, snap.RESTExhausted)
}

func TestSweepSkipsClosedMarkets(t *testing.T) {
	e := newTestEngine(t, Config{Clock: clock.NewManual(saturday)})

	assert.Zero(t, e.sweepers[1].Sweep(t.Context()))
	// crypto trades on saturday, forex does not
	assert.Equal(t, 1, e.sweepers[0].Sweep(t.Context()))
	_, ok := e.Prices().Get("BTC/USD")
	assert.True(t, ok)
	_, ok = e.Prices().Get("EUR/USD")
	assert.False(t, ok)
}

func TestSweepSkipsStreamedClasses(t *testing.T) {
	e := newTestEngine(t, Config{Clock: clock.NewManual(wednesday)})
	fast := e.sweepers[0]
	fast.Skip = func(class enum.AssetClass) bool { return class == enum.AssetClassCrypto }

	assert.Equal(t, 1, fast.Sweep(t.Context()))
	_, ok := e.Prices().Get("BTC/USD")
	assert.False(t, ok)
}

func TestSweepUsesCascadeThenSynthetic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/aggs/ticker/AAPL/prev" {
			_, _ = w.Write([]byte(`{"status":"OK","results":[{"T":"AAPL","o":170,"h":175,"l":168,"c":172.5,"v":1000,"t":1710338400000}]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	metrics := obs.NewMetrics()
	cascade := rest.NewCascade(rest.NewClient(rest.Config{BaseURL: srv.URL, APIKey: "k"}, srv.Client()))
	e := newTestEngine(t, Config{Clock: clock.NewManual(wednesday), Metrics: metrics, Cascade: cascade})

	assert.Equal(t, 2, e.sweepers[1].Sweep(t.Context()))

	aapl, ok := e.Prices().Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, 172.5, aapl.Price)

	spx, ok := e.Prices().Get("SPX")
	require.True(t, ok)
	assert.InDelta(t, 5000, spx.Price, 5000*mdg.DefaultVolatility(enum.AssetClassIndex)/100)

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.Commits[enum.SourceREST.String()])
	assert.Equal(t, uint64(1), snap.Commits[enum.SourceSynthetic.String()])
	assert.Equal(t, uint64(1), snap.RESTExhausted)
}

func TestSyntheticBaseFollowsLastPrice(t *testing.T) {
	e := newTestEngine(t, Config{Clock: clock.NewManual(wednesday)})
	_, err := e.Dispatcher().Commit(t.Context(), model.PriceSnapshot{
		Symbol: "AAPL",
		Class:  enum.AssetClassStock,
		Price:  300,
		Source: enum.SourceStream,
	})
	require.NoError(t, err)

	e.sweepers[1].Sweep(t.Context())
	entry, _ := e.Prices().Get("AAPL")
	assert.InDelta(t, 300, entry.Price, 3)
}

func TestSweepAfterRestartFollowsPersistedPrice(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.Upsert(t.Context(), model.PriceSnapshot{
		Symbol: "AAPL",
		Class:  enum.AssetClassStock,
		Price:  300,
		Source: enum.SourceStream,
	}))
	e := newTestEngine(t, Config{Clock: clock.NewManual(wednesday), Store: mem})

	e.sweepers[1].Sweep(t.Context())

	entry, ok := e.Prices().Get("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 300, entry.Price, 3)

	committed, ok := mem.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, entry.Price, committed.Price)
	assert.InDelta(t, committed.Price-300, committed.Change, 1e-9)
	assert.InDelta(t, committed.Change/300*100, committed.ChangePercent, 0.01)
}

func TestSweepFallbackFollowsPersistedPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	mem := store.NewMemory()
	require.NoError(t, mem.Upsert(t.Context(), model.PriceSnapshot{
		Symbol: "SPX",
		Class:  enum.AssetClassIndex,
		Price:  4000,
		Source: enum.SourceStream,
	}))
	cascade := rest.NewCascade(rest.NewClient(rest.Config{BaseURL: srv.URL, APIKey: "k"}, srv.Client()))
	e := newTestEngine(t, Config{Clock: clock.NewManual(wednesday), Store: mem, Cascade: cascade})

	e.sweepers[1].Sweep(t.Context())

	spx, ok := e.Prices().Get("SPX")
	require.True(t, ok)
	assert.InDelta(t, 4000, spx.Price, 4000*mdg.DefaultVolatility(enum.AssetClassIndex)/100)
}

func TestOnUpdateCountsDrops(t *testing.T) {
	metrics := obs.NewMetrics()
	e := newTestEngine(t, Config{Clock: clock.NewManual(saturday), Metrics: metrics})

	e.onUpdate(t.Context(), model.RawUpdate{WireID: "DOGE-USD", Class: enum.AssetClassCrypto, Price: 0.1})
	e.onUpdate(t.Context(), model.RawUpdate{WireID: "EUR/USD", Class: enum.AssetClassForex, Price: 1.1})
	e.onUpdate(t.Context(), model.RawUpdate{WireID: "BTC-USD", Class: enum.AssetClassCrypto, Price: 61000.126})

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.ResolutionFailures)
	assert.Equal(t, uint64(1), snap.ClosedMarketDrops)

	entry, ok := e.Prices().Get("BTC/USD")
	require.True(t, ok)
	assert.Equal(t, 61000.13, entry.Price)
}

type recordingPublisher struct {
	mu      sync.Mutex
	symbols []string
}

func (r *recordingPublisher) Publish(_ context.Context, s model.PriceSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbols = append(r.symbols, s.Symbol)
	return nil
}

func (r *recordingPublisher) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.symbols)
}

func TestRunWithoutStreamKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	pub := &recordingPublisher{}
	e := newTestEngine(t, Config{
		Clock:        clock.NewManual(wednesday),
		Publisher:    pub,
		SnapshotPath: path,
		Dialers: map[enum.AssetClass]websocket.Dialer{
			enum.AssetClassCrypto: websocket.DialerFunc(func(context.Context) (websocket.Conn, error) {
				t.Fatal("no stream key, no dial")
				return nil, nil
			}),
		},
	})
	assert.Empty(t, e.Status().Feeds)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return e.Prices().Count() == 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}

	assert.Equal(t, 4, pub.Len())
	snap, err := state.ReadSnapshot(path)
	require.NoError(t, err)
	assert.Len(t, snap.Entries, 4)

	restored := newTestEngine(t, Config{Clock: clock.NewManual(wednesday), SnapshotPath: path})
	assert.True(t, restored.Ready())
	assert.Equal(t, 4, restored.Prices().Count())
}

func TestStatusListsFeeds(t *testing.T) {
	dialer := websocket.DialerFunc(func(ctx context.Context) (websocket.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e := newTestEngine(t, Config{
		Clock:     clock.NewManual(wednesday),
		StreamKey: "ws-key",
		Dialers: map[enum.AssetClass]websocket.Dialer{
			enum.AssetClassCrypto: dialer,
			enum.AssetClassForex:  dialer,
			enum.AssetClassStock:  dialer,
		},
	})

	st := e.Status()
	require.Len(t, st.Feeds, 2)
	assert.Equal(t, "crypto", st.Feeds[0].Class)
	assert.Equal(t, "forex", st.Feeds[1].Class)
	assert.Equal(t, "disconnected", st.Feeds[0].Phase)
	assert.False(t, e.streaming(enum.AssetClassCrypto))
	assert.False(t, e.Ready())
}

func TestNewRequiresRegistry(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
