package adaptive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveTakesMinOfBaseAndProvided(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(response{HFMax: 1.02, GapCapBps: 40})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, nil, 1.5)
	got := c.Resolve(context.Background(), 42161, "arbitrum", "WETH/USDC", Thresholds{HFMax: 1.05, GapCapBps: 50}, 20, "WETH", "USDC")

	assert.Equal(t, 1.02, got.HFMax)
	assert.Equal(t, 40.0, got.GapCapBps)
}

func TestResolveFallsBackOnProviderOutage(t *testing.T) {
	c := New("", time.Second, nil, 1.5)
	got := c.Resolve(context.Background(), 42161, "arbitrum", "WETH/USDC", Thresholds{HFMax: 1.05, GapCapBps: 50}, 20, "WETH", "USDC")

	assert.Equal(t, 1.05, got.HFMax)
	assert.Equal(t, 50.0, got.GapCapBps)
}

func TestResolveFallsBackOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, nil, 1.5)
	got := c.Resolve(context.Background(), 10, "optimism", "WETH/USDC", Thresholds{HFMax: 1.05, GapCapBps: 50}, 20, "WETH", "USDC")

	assert.Equal(t, 1.05, got.HFMax)
	assert.Equal(t, 50.0, got.GapCapBps)
}

func TestIsPeggedPairWidensGapCapBeforeProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		json.NewDecoder(r.Body).Decode(&req)
		// provider returns the widened base verbatim, proving it received it.
		json.NewEncoder(w).Encode(response{HFMax: req.BaseHFMax, GapCapBps: req.BaseGapCapBps})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, []string{"wstETH/WETH"}, 2.0)
	assert.True(t, c.IsPeggedPair("wstETH", "WETH"))
	assert.True(t, c.IsPeggedPair("WETH", "wstETH"))

	got := c.Resolve(context.Background(), 1, "mainnet", "wstETH/WETH", Thresholds{HFMax: 1.05, GapCapBps: 50}, 20, "wstETH", "WETH")
	assert.Equal(t, 100.0, got.GapCapBps)
}
