package rest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pricefeed/internal/model"
	"pricefeed/internal/model/enum"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstream struct {
	mu    sync.Mutex
	hits  []string
	paths map[string]string
}

func newUpstream(t *testing.T, paths map[string]string) (*upstream, *httptest.Server) {
	t.Helper()
	u := &upstream{paths: paths}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.hits = append(u.hits, r.URL.Path)
		u.mu.Unlock()
		if r.URL.Query().Get("apiKey") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, ok := u.paths[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return u, srv
}

func (u *upstream) Hits() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.hits...)
}

var btc = model.Instrument{Symbol: "BTC/USD", Class: enum.AssetClassCrypto, RestTicker: "X:BTCUSD"}

func TestCascadeFirstSuccessWins(t *testing.T) {
	u, srv := newUpstream(t, map[string]string{
		"/v2/aggs/ticker/X:BTC-USD/prev": `{"status":"OK","results":[{"T":"X:BTC-USD","o":100,"h":120,"l":90,"c":110,"v":5,"t":1700000000000}]}`,
		"/v1/last/crypto/BTC/USD":        `{"status":"success","last":{"price":999}}`,
		"/v3/reference/tickers/X:BTCUSD": `{"status":"OK","results":{"ticker":"X:BTCUSD","active":true}}`,
	})
	c := NewCascade(NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, srv.Client()))

	snap, name, ok := c.FetchPrice(t.Context(), btc, 0)
	require.True(t, ok)
	assert.Equal(t, "alt-prev-agg", name)
	assert.Equal(t, 110.0, snap.Price)
	assert.Equal(t, 10.0, snap.Change)
	assert.Equal(t, 10.0, snap.ChangePercent)
	assert.Equal(t, 120.0, snap.High24h)
	assert.Equal(t, 90.0, snap.Low24h)
	assert.Equal(t, enum.SourceREST, snap.Source)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), snap.Timestamp)
	assert.True(t, snap.HasDelta)

	assert.Equal(t, []string{"/v2/aggs/ticker/X:BTCUSD/prev", "/v2/aggs/ticker/X:BTC-USD/prev"}, u.Hits())
}

func TestCascadeSkipsMalformedAndEmpty(t *testing.T) {
	_, srv := newUpstream(t, map[string]string{
		"/v2/aggs/ticker/X:BTCUSD/prev":  `{"status":"OK","results":[]}`,
		"/v2/aggs/ticker/X:BTC-USD/prev": `not json`,
		"/v1/last/crypto/BTC/USD":        `{"status":"success","last":{"price":105.257,"timestamp":1700000000000}}`,
	})
	c := NewCascade(NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, srv.Client()))

	snap, name, ok := c.FetchPrice(t.Context(), btc, 100)
	require.True(t, ok)
	assert.Equal(t, "last-trade", name)
	assert.Equal(t, 105.26, snap.Price)
	assert.Equal(t, 5.26, snap.Change)
}

func TestCascadeForexMidQuote(t *testing.T) {
	_, srv := newUpstream(t, map[string]string{
		"/v1/last_quote/currencies/EUR/USD": `{"status":"success","last":{"ask":1.1002,"bid":1.0998}}`,
	})
	c := NewCascade(NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, srv.Client()))
	eur := model.Instrument{Symbol: "EUR/USD", Class: enum.AssetClassForex, RestTicker: "C:EURUSD"}

	snap, _, ok := c.FetchPrice(t.Context(), eur, 0)
	require.True(t, ok)
	assert.Equal(t, 1.1, snap.Price)
	assert.False(t, snap.HasDelta)
}

func TestCascadeReferenceReusesLastKnown(t *testing.T) {
	_, srv := newUpstream(t, map[string]string{
		"/v3/reference/tickers/AAPL": `{"status":"OK","results":{"ticker":"AAPL","active":true}}`,
	})
	c := NewCascade(NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, srv.Client()))
	aapl := model.Instrument{Symbol: "AAPL", Class: enum.AssetClassStock, RestTicker: "AAPL"}

	snap, name, ok := c.FetchPrice(t.Context(), aapl, 190.12)
	require.True(t, ok)
	assert.Equal(t, "reference", name)
	assert.Equal(t, 190.12, snap.Price)
	assert.Zero(t, snap.Change)

	_, _, ok = c.FetchPrice(t.Context(), aapl, 0)
	assert.False(t, ok)
}

func TestCascadeAllFail(t *testing.T) {
	u, srv := newUpstream(t, map[string]string{})
	c := NewCascade(NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, srv.Client()))

	_, _, ok := c.FetchPrice(t.Context(), btc, 100)
	assert.False(t, ok)
	assert.Len(t, u.Hits(), 5)
}

func TestCascadeDisabledWithoutKey(t *testing.T) {
	u, srv := newUpstream(t, map[string]string{})
	c := NewCascade(NewClient(Config{BaseURL: srv.URL}, srv.Client()))

	assert.False(t, c.Enabled())
	_, _, ok := c.FetchPrice(t.Context(), btc, 100)
	assert.False(t, ok)
	assert.Empty(t, u.Hits())
}

func TestCascadeCustomStrategies(t *testing.T) {
	_, srv := newUpstream(t, map[string]string{"/one": `{}`, "/two": `{}`})
	c := NewCascade(NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, srv.Client()))

	var order []string
	mk := func(name, path string, price float64) Strategy {
		return Strategy{
			Name: name,
			Path: func(model.Instrument, time.Time) (string, bool) { return path, true },
			Parse: func(_ []byte, inst model.Instrument, last float64, now time.Time) (model.PriceSnapshot, error) {
				order = append(order, name)
				return quote{price: price}.snapshot(inst, last, now)
			},
		}
	}
	c.WithStrategies(enum.AssetClassCrypto, mk("zero", "/one", 0), mk("good", "/two", 42), mk("later", "/two", 7))

	snap, name, ok := c.FetchPrice(t.Context(), btc, 0)
	require.True(t, ok)
	assert.Equal(t, "good", name)
	assert.Equal(t, 42.0, snap.Price)
	assert.Equal(t, []string{"zero", "good"}, order)
}
