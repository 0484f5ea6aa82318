package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blackhole-labs/liquidationd/internal/market"
)

func writeGraphQLJSON(t *testing.T, w http.ResponseWriter, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"data":` + string(raw) + `}`))
}

func TestSubgraphPollerFetchesAndEmitsCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphqlRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		if _, ok := req.Variables["ids"]; ok {
			writeGraphQLJSON(t, w, userReservesData{
				Users: []subgraphUserReserves{
					{
						ID: "0xb0b",
						Reserves: []subgraphUserReserve{
							{
								Reserve:          subgraphReserveToken{UnderlyingAsset: "0xdebt", Symbol: "USDC", Decimals: 6},
								CurrentTotalDebt: "500000000",
							},
							{
								Reserve:              subgraphReserveToken{UnderlyingAsset: "0xcoll", Symbol: "WETH", Decimals: 18},
								CurrentATokenBalance: "300000000000000000",
							},
						},
					},
				},
			})
			return
		}

		writeGraphQLJSON(t, w, borrowerIDsData{
			Users: []subgraphUserID{{ID: "0xb0b"}},
		})
	}))
	defer srv.Close()

	chain := &market.Chain{ChainID: 42161}
	poller := NewSubgraphPoller(zap.NewNop(), chain, SubgraphPollerConfig{
		Endpoints:       []string{srv.URL},
		PollInterval:    time.Hour,
		RateLimitPerSec: 100,
		RateLimitBurst:  10,
	}, 4)

	poller.poll(context.Background())

	select {
	case c := <-poller.Out():
		assert.Equal(t, "USDC", c.Debt.Symbol)
		assert.Equal(t, "WETH", c.Collateral.Symbol)
		assert.Equal(t, market.SourceSubgraph, c.Source)
	default:
		t.Fatal("expected a candidate to be emitted")
	}
}

func TestSubgraphPollerBacksOffAndRotatesEndpointOnFailure(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeGraphQLJSON(t, w, borrowerIDsData{})
	}))
	defer good.Close()

	chain := &market.Chain{ChainID: 10}
	poller := NewSubgraphPoller(zap.NewNop(), chain, SubgraphPollerConfig{
		Endpoints:       []string{bad.URL, good.URL},
		PollInterval:    time.Hour,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      2 * time.Millisecond,
		RateLimitPerSec: 100,
		RateLimitBurst:  10,
	}, 4)

	poller.poll(context.Background())
	assert.Equal(t, 1, poller.backoff.ConsecutiveFailures())
	assert.Equal(t, 1, poller.endpointIdx)
}

func TestPollBackoffDoublesUpToMax(t *testing.T) {
	b := newPollBackoff(5*time.Second, 20*time.Second)
	assert.Equal(t, 5*time.Second, b.Fail())
	assert.Equal(t, 10*time.Second, b.Fail())
	assert.Equal(t, 20*time.Second, b.Fail())
	assert.Equal(t, 20*time.Second, b.Fail())
	b.Reset()
	assert.Equal(t, 0, b.ConsecutiveFailures())
}
