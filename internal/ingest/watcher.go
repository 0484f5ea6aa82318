package ingest

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/blackhole-labs/liquidationd/internal/market"
	"github.com/blackhole-labs/liquidationd/internal/precommit"
	"github.com/blackhole-labs/liquidationd/internal/pricecache"
	"github.com/blackhole-labs/liquidationd/internal/rpcpool"
)

// BorrowerRefetchDebounce is how long Watcher waits after the last pool
// event for a borrower before re-fetching their position, per spec.md
// §4.1.
const BorrowerRefetchDebounce = 750 * time.Millisecond

// ChainWideRefetchDebounce is how long Watcher waits after the last oracle
// update before triggering a full chain-wide candidate refetch.
const ChainWideRefetchDebounce = 60 * time.Second

// PositionResolver turns a watcher-observed address into candidates,
// backed in production by a direct on-chain position read and in tests by
// a canned fake. Resolving a single borrower returns at most one
// candidate (ok=false means the borrower has no open liquidatable
// position); resolving chain-wide returns every currently at-risk
// position, mirroring a fresh subgraph sweep.
type PositionResolver interface {
	ResolveBorrower(ctx context.Context, borrower common.Address) (market.Candidate, bool, error)
	ResolveChainWide(ctx context.Context) ([]market.Candidate, error)
}

// PriceFeed is one Chainlink aggregator-proxy the watcher subscribes to
// AnswerUpdated on, along with the pricecache key its cached reading lives
// under.
type PriceFeed struct {
	ProxyAddress common.Address
	CacheKey     string
}

// Watcher is the per-chain realtime event watcher: pool events drive a
// debounced borrower refetch, Chainlink AnswerUpdated events drive oracle
// cache invalidation, EMA recording and a debounced chain-wide refetch.
// WS is preferred; rpcpool.Pool's health state decides when to fall back
// to HTTP polling instead.
type Watcher struct {
	log      *zap.Logger
	chain    *market.Chain
	pool     *rpcpool.Pool
	resolver PositionResolver

	poolEventTopics []common.Hash
	feeds           []PriceFeed

	feedStates  map[common.Address]*precommit.FeedState
	oracleCache *pricecache.Cache

	borrowerDebounce *debouncer
	chainDebounce    *debouncer

	httpPollInterval time.Duration

	out chan market.Candidate
}

// NewWatcher builds a Watcher for one chain. feedStates should contain one
// *precommit.FeedState per configured feed (shared with the scorer's
// precommit eligibility check); on every AnswerUpdated, oracleCache drops
// the entry stored under that feed's CacheKey.
func NewWatcher(log *zap.Logger, chain *market.Chain, pool *rpcpool.Pool, resolver PositionResolver, poolEventTopics []common.Hash, feeds []PriceFeed, feedStates map[common.Address]*precommit.FeedState, oracleCache *pricecache.Cache, depth int) *Watcher {
	if depth <= 0 {
		depth = DefaultMergedChannelDepth
	}
	return &Watcher{
		log:              log,
		chain:            chain,
		pool:             pool,
		resolver:         resolver,
		poolEventTopics:  poolEventTopics,
		feeds:            feeds,
		feedStates:       feedStates,
		oracleCache:      oracleCache,
		borrowerDebounce: newDebouncer(BorrowerRefetchDebounce),
		chainDebounce:    newDebouncer(ChainWideRefetchDebounce),
		httpPollInterval: 5 * time.Second,
		out:              make(chan market.Candidate, depth),
	}
}

// Out returns the channel Watcher emits refetched candidates on.
func (w *Watcher) Out() <-chan market.Candidate {
	return w.out
}

// Run alternates between the WS subscription loop (while the pool reports
// WS available) and HTTP polling, until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.out)

	for ctx.Err() == nil {
		if w.pool.WSAvailable() {
			w.runWS(ctx)
		} else {
			w.runHTTPFallback(ctx)
		}
	}
}

// runHTTPFallback polls ResolveChainWide on httpPollInterval until WS
// becomes available again or ctx is cancelled.
func (w *Watcher) runHTTPFallback(ctx context.Context) {
	ticker := time.NewTicker(w.httpPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.pool.WSAvailable() {
				return
			}
			w.refetchChainWide(ctx)
		}
	}
}

// runWS dials the pool's WS endpoints, subscribes to pool events and every
// configured Chainlink feed, and dispatches notifications until the
// connection drops or ctx is cancelled, at which point Run's loop decides
// whether to retry WS or fall back to HTTP based on pool state.
func (w *Watcher) runWS(ctx context.Context) {
	conn, err := w.pool.DialWS(ctx)
	if err != nil {
		if w.pool.RecordCloseEvent() {
			w.pool.DisableWSFor(w.pool.NextBackoff())
		}
		return
	}
	defer conn.Close()

	subs, err := w.subscribeAll(conn)
	if err != nil {
		w.log.Warn("ingest: watcher subscribe failed", zap.Error(err))
		conn.Close()
		if w.pool.RecordCloseEvent() {
			w.pool.DisableWSFor(w.pool.NextBackoff())
		}
		return
	}
	w.pool.ResetBackoff()

	for {
		if ctx.Err() != nil {
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if w.pool.RecordCloseEvent() {
				w.pool.DisableWSFor(w.pool.NextBackoff())
			}
			return
		}

		action, subID := classifyWSMessage(raw)
		switch action {
		case wsActionDisable5Min:
			w.pool.DisableWSFor(5 * time.Minute)
			return
		case wsActionResubscribe:
			w.resubscribeOne(conn, subs, subID)
		case wsActionNone:
			w.dispatchNotification(ctx, raw, subs)
		}
	}
}

// subscription records which kind of stream a WS subscription ID
// corresponds to, so notifications can be routed without re-parsing their
// original subscribe request.
type subscription struct {
	kind  subscriptionKind
	feed  common.Address // set only for kindOracle
}

type subscriptionKind int

const (
	kindPoolEvents subscriptionKind = iota
	kindOracle
)

func (w *Watcher) subscribeAll(conn *websocket.Conn) (map[string]subscription, error) {
	subs := make(map[string]subscription)

	id, err := w.subscribeLogs(conn, w.chain.MarketAddr, w.poolEventTopics)
	if err != nil {
		return nil, err
	}
	subs[id] = subscription{kind: kindPoolEvents}

	for _, feed := range w.feeds {
		id, err := w.subscribeLogs(conn, feed.ProxyAddress, []common.Hash{answerUpdatedTopic})
		if err != nil {
			return nil, err
		}
		subs[id] = subscription{kind: kindOracle, feed: feed.ProxyAddress}
	}

	return subs, nil
}

func (w *Watcher) resubscribeOne(conn *websocket.Conn, subs map[string]subscription, staleSubID string) {
	sub, ok := subs[staleSubID]
	if !ok {
		return
	}
	delete(subs, staleSubID)

	var (
		newID string
		err   error
	)
	if sub.kind == kindPoolEvents {
		newID, err = w.subscribeLogs(conn, w.chain.MarketAddr, w.poolEventTopics)
	} else {
		newID, err = w.subscribeLogs(conn, sub.feed, []common.Hash{answerUpdatedTopic})
	}
	if err != nil {
		w.log.Warn("ingest: resubscribe failed", zap.Error(err))
		return
	}
	subs[newID] = sub
}

// answerUpdatedTopic is keccak256("AnswerUpdated(int256,uint256,uint256)").
var answerUpdatedTopic = common.HexToHash("0x0559884fd3a460db3073b7fc896cc77986f16e378210ded43186175bf646fc5f")

type jsonrpcSubscribeRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type logFilterParams struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
}

var wsRequestID int64

func nextWSRequestID() int {
	wsRequestID++
	return int(wsRequestID)
}

func (w *Watcher) subscribeLogs(conn *websocket.Conn, address common.Address, topics []common.Hash) (string, error) {
	req := jsonrpcSubscribeRequest{
		JSONRPC: "2.0",
		ID:      nextWSRequestID(),
		Method:  "eth_subscribe",
		Params:  []interface{}{"logs", logFilterParams{Address: address, Topics: topics}},
	}
	if err := conn.WriteJSON(req); err != nil {
		return "", err
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	var resp struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	return resp.Result, nil
}

type wsAction int

const (
	wsActionNone wsAction = iota
	wsActionResubscribe
	wsActionDisable5Min
)

type jsonrpcNotification struct {
	Method string `json:"method"`
	Params struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// classifyWSMessage inspects one raw WS frame and decides whether it
// represents an error condition the watcher must react to (spec.md
// §4.1's error classification table), returning the subscription id the
// action applies to where relevant.
func classifyWSMessage(raw []byte) (wsAction, string) {
	var msg jsonrpcNotification
	if err := json.Unmarshal(raw, &msg); err != nil {
		return wsActionNone, ""
	}

	if msg.Error != nil {
		lower := strings.ToLower(msg.Error.Message)
		if msg.Error.Code == -32602 {
			return wsActionDisable5Min, ""
		}
		if strings.Contains(lower, "filter not found") {
			return wsActionResubscribe, msg.Params.Subscription
		}
	}

	return wsActionNone, ""
}

func (w *Watcher) dispatchNotification(ctx context.Context, raw []byte, subs map[string]subscription) {
	var msg jsonrpcNotification
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Method != "eth_subscription" {
		return
	}
	sub, ok := subs[msg.Params.Subscription]
	if !ok {
		return
	}

	var log struct {
		Address common.Address `json:"address"`
		Topics  []common.Hash  `json:"topics"`
	}
	if err := json.Unmarshal(msg.Params.Result, &log); err != nil {
		return
	}

	switch sub.kind {
	case kindPoolEvents:
		w.handlePoolLog(ctx, log.Topics)
	case kindOracle:
		w.handleAnswerUpdated(ctx, sub.feed, time.Now())
	}
}

// handlePoolLog extracts the borrower from a pool event's second indexed
// topic (Aave-family events index `user`/`onBehalfOf` in that slot) and
// schedules a debounced refetch.
func (w *Watcher) handlePoolLog(ctx context.Context, topics []common.Hash) {
	if len(topics) < 2 {
		return
	}
	borrower := common.BytesToAddress(topics[1].Bytes())

	w.borrowerDebounce.Trigger(borrower.Hex(), func() {
		candidate, ok, err := w.resolver.ResolveBorrower(ctx, borrower)
		if err != nil {
			if w.log != nil {
				w.log.Warn("ingest: borrower refetch failed", zap.String("borrower", borrower.Hex()), zap.Error(err))
			}
			return
		}
		if !ok {
			return
		}
		candidate.Source = market.SourceRealtime
		select {
		case w.out <- candidate:
		case <-ctx.Done():
		}
	})
}

// handleAnswerUpdated invalidates the feed's cached oracle reading,
// records the inter-update interval in its EMA tracker, and schedules a
// debounced chain-wide refetch.
func (w *Watcher) handleAnswerUpdated(ctx context.Context, feed common.Address, at time.Time) {
	if w.oracleCache != nil {
		for _, f := range w.feeds {
			if f.ProxyAddress == feed {
				w.oracleCache.Invalidate(f.CacheKey)
				break
			}
		}
	}
	if state, ok := w.feedStates[feed]; ok {
		state.Observe(at)
	}

	w.chainDebounce.Trigger("chain-wide", func() {
		w.refetchChainWide(ctx)
	})
}

func (w *Watcher) refetchChainWide(ctx context.Context) {
	candidates, err := w.resolver.ResolveChainWide(ctx)
	if err != nil {
		if w.log != nil {
			w.log.Warn("ingest: chain-wide refetch failed", zap.Int64("chain_id", w.chain.ChainID), zap.Error(err))
		}
		return
	}
	for i := range candidates {
		candidates[i].Source = market.SourceRealtime
		select {
		case w.out <- candidates[i]:
		case <-ctx.Done():
			return
		}
	}
}
