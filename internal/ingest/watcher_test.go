package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blackhole-labs/liquidationd/internal/market"
	"github.com/blackhole-labs/liquidationd/internal/precommit"
	"github.com/blackhole-labs/liquidationd/internal/pricecache"
)

type fakeResolver struct {
	borrowerResult market.Candidate
	borrowerOK     bool
	borrowerErr    error
	chainWide      []market.Candidate
	chainWideErr   error
}

func (f *fakeResolver) ResolveBorrower(ctx context.Context, borrower common.Address) (market.Candidate, bool, error) {
	return f.borrowerResult, f.borrowerOK, f.borrowerErr
}

func (f *fakeResolver) ResolveChainWide(ctx context.Context) ([]market.Candidate, error) {
	return f.chainWide, f.chainWideErr
}

func testWatcher(t *testing.T, resolver PositionResolver, feeds []PriceFeed, feedStates map[common.Address]*precommit.FeedState, cache *pricecache.Cache) *Watcher {
	t.Helper()
	chain := &market.Chain{ChainID: 1, MarketAddr: common.HexToAddress("0xPOOL")}
	return NewWatcher(zap.NewNop(), chain, nil, resolver, []common.Hash{common.HexToHash("0xTOPIC0")}, feeds, feedStates, cache, 8)
}

func TestClassifyWSMessageDisable5MinOnDashed32602(t *testing.T) {
	raw := []byte(`{"error":{"code":-32602,"message":"invalid params"}}`)
	action, _ := classifyWSMessage(raw)
	assert.Equal(t, wsActionDisable5Min, action)
}

func TestClassifyWSMessageResubscribeOnFilterNotFound(t *testing.T) {
	raw := []byte(`{"error":{"code":-32000,"message":"filter not found"},"params":{"subscription":"0xabc"}}`)
	action, subID := classifyWSMessage(raw)
	assert.Equal(t, wsActionResubscribe, action)
	assert.Equal(t, "0xabc", subID)
}

func TestClassifyWSMessageNoneForOrdinaryNotification(t *testing.T) {
	raw := []byte(`{"method":"eth_subscription","params":{"subscription":"0xabc","result":{}}}`)
	action, _ := classifyWSMessage(raw)
	assert.Equal(t, wsActionNone, action)
}

func TestHandlePoolLogDebouncesThenEmitsCandidate(t *testing.T) {
	borrower := common.HexToAddress("0xB0RR0WER")
	cand := testCandidate(market.SourceSubgraph)
	cand.Borrower = borrower

	resolver := &fakeResolver{borrowerResult: cand, borrowerOK: true}
	w := testWatcher(t, resolver, nil, nil, nil)
	w.borrowerDebounce = newDebouncer(5 * time.Millisecond)

	topics := []common.Hash{common.HexToHash("0xEVENT"), common.BytesToHash(borrower.Bytes())}
	w.handlePoolLog(context.Background(), topics)

	select {
	case got := <-w.Out():
		assert.Equal(t, market.SourceRealtime, got.Source)
		assert.Equal(t, borrower, got.Borrower)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected a debounced candidate to be emitted")
	}
}

func TestHandleAnswerUpdatedInvalidatesCacheAndObservesEMA(t *testing.T) {
	feed := common.HexToAddress("0xFEED")
	key := "oracle:" + feed.Hex()
	cache := pricecache.New(24*time.Hour, 15*time.Second, true, zap.NewNop())
	_, firstHit, _ := cache.Get(key, func() (interface{}, error) { return "cached", nil })
	require.False(t, firstHit) // first Get is always a miss that populates the entry

	state := precommit.NewFeedState(0.2)
	feeds := []PriceFeed{{ProxyAddress: feed, CacheKey: key}}
	feedStates := map[common.Address]*precommit.FeedState{feed: state}

	resolver := &fakeResolver{}
	w := testWatcher(t, resolver, feeds, feedStates, cache)
	w.chainDebounce = newDebouncer(5 * time.Millisecond)

	w.handleAnswerUpdated(context.Background(), feed, time.Now())

	_, secondHit, _ := cache.Get(key, func() (interface{}, error) { return "refreshed", nil })
	assert.False(t, secondHit) // Invalidate must have dropped the entry, forcing a fresh fetch

	require.Equal(t, 0, state.Samples()) // first Observe only seeds lastUpdate, no interval yet
}

func TestDispatchNotificationRoutesPoolEventToHandlePoolLog(t *testing.T) {
	borrower := common.HexToAddress("0xB0RR0WER")
	cand := testCandidate(market.SourceSubgraph)
	cand.Borrower = borrower

	resolver := &fakeResolver{borrowerResult: cand, borrowerOK: true}
	w := testWatcher(t, resolver, nil, nil, nil)
	w.borrowerDebounce = newDebouncer(time.Millisecond)

	logPayload, err := json.Marshal(struct {
		Address common.Address `json:"address"`
		Topics  []common.Hash  `json:"topics"`
	}{
		Address: common.HexToAddress("0xPOOL"),
		Topics:  []common.Hash{common.HexToHash("0xEVENT"), common.BytesToHash(borrower.Bytes())},
	})
	require.NoError(t, err)

	notification := struct {
		Method string `json:"method"`
		Params struct {
			Subscription string          `json:"subscription"`
			Result       json.RawMessage `json:"result"`
		} `json:"params"`
	}{Method: "eth_subscription"}
	notification.Params.Subscription = "sub-1"
	notification.Params.Result = logPayload

	raw, err := json.Marshal(notification)
	require.NoError(t, err)

	subs := map[string]subscription{"sub-1": {kind: kindPoolEvents}}
	w.dispatchNotification(context.Background(), raw, subs)

	select {
	case got := <-w.Out():
		assert.Equal(t, borrower, got.Borrower)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected candidate from dispatched notification")
	}
}
