package ops

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pricefeed/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	ready  bool
	status engine.Status
}

func (s stubProvider) Status() engine.Status { return s.status }
func (s stubProvider) Ready() bool           { return s.ready }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServerRoutes(t *testing.T) {
	provider := stubProvider{status: engine.Status{
		Feeds:  []engine.FeedStatus{{Class: "crypto", Phase: "subscribed", Subscribed: 3}},
		Prices: []engine.PriceStatus{{Symbol: "BTC/USD", Class: "crypto", Price: 65000.5}},
	}}
	h := NewServer(":0", provider).Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/readyz").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/missing").Code)

	rec := get(t, h, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var body engine.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, provider.status.Feeds, body.Feeds)
	require.Len(t, body.Prices, 1)
	assert.Equal(t, 65000.5, body.Prices[0].Price)

	provider.ready = true
	h = NewServer(":0", provider).Handler()
	assert.Equal(t, http.StatusOK, get(t, h, "/readyz").Code)
}

func TestServerRunStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := NewServer(addr, stubProvider{ready: true})
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second * 6):
		t.Fatal("server did not stop")
	}
}
