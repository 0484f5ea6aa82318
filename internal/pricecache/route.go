package pricecache

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/blackhole-labs/liquidationd/internal/market"
)

// RouteQuote is a cached route quote: the chosen option and its quoted
// output amount in the collateral/debt pair's smallest unit, as a decimal
// string to keep the cache value type simple and comparable in tests.
type RouteQuote struct {
	Option     market.RouteOption
	AmountOut  string
}

// RouteCache caches route quotes keyed by (chain, collateral, debt, sorted
// option fingerprints), TTL 15s success / 5s failure per §4.4.
type RouteCache struct {
	cache *Cache
}

// NewRouteCache builds a RouteCache with the spec's TTLs.
func NewRouteCache(log *zap.Logger) *RouteCache {
	return &RouteCache{cache: New(15*time.Second, 5*time.Second, false, log)}
}

// RouteKey builds the cache key for a (chain, collateral, debt, options) lookup.
// Options are sorted by fingerprint so caller ordering never fragments the
// cache.
func RouteKey(chainID int64, collateral, debt common.Address, options []market.RouteOption) string {
	fps := make([]string, 0, len(options))
	for _, o := range options {
		fps = append(fps, o.Fingerprint())
	}
	sort.Strings(fps)

	var b strings.Builder
	b.WriteString(strconv.FormatInt(chainID, 10))
	b.WriteByte('|')
	b.WriteString(collateral.Hex())
	b.WriteByte('|')
	b.WriteString(debt.Hex())
	b.WriteByte('|')
	b.WriteString(strings.Join(fps, ","))
	return b.String()
}

// Get returns the cached quote for key, refreshing via fetch on a miss.
func (r *RouteCache) Get(key string, fetch func() (RouteQuote, error)) (RouteQuote, error) {
	v, _, err := r.cache.Get(key, func() (interface{}, error) {
		return fetch()
	})
	if err != nil {
		return RouteQuote{}, err
	}
	return v.(RouteQuote), nil
}

// SequencerCache caches Chainlink L2 sequencer-uptime feed reads, TTL 15s
// success / 5s failure, keyed by (rpc_url, feed).
type SequencerCache struct {
	cache *Cache
}

// NewSequencerCache builds a SequencerCache with the spec's TTLs.
func NewSequencerCache(log *zap.Logger) *SequencerCache {
	return &SequencerCache{cache: New(15*time.Second, 5*time.Second, false, log)}
}

// Get returns the cached sequencer status for (rpcURL, feed), refreshing
// via fetch on a miss.
func (s *SequencerCache) Get(rpcURL string, feed common.Address, fetch func() (market.SequencerStatus, error)) (market.SequencerStatus, error) {
	key := rpcURL + "|" + feed.Hex()
	v, _, err := s.cache.Get(key, func() (interface{}, error) {
		return fetch()
	})
	if err != nil {
		return market.SequencerStatus{}, err
	}
	return v.(market.SequencerStatus), nil
}
