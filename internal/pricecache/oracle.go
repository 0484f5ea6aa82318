package pricecache

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/blackhole-labs/liquidationd/pkg/contractclient"
)

// OracleReading is one Chainlink aggregator read.
type OracleReading struct {
	PriceUSD        decimal.Decimal
	Decimals        uint8
	UpdatedAt       int64
	AnsweredInRound *big.Int
	RoundID         *big.Int
}

// Stale applies the §4.4 stale criterion: age beyond 24h, a non-positive
// answer, a zero updatedAt, or an answeredInRound lagging the round id.
func (r OracleReading) Stale(now time.Time) bool {
	age := now.Sub(time.Unix(r.UpdatedAt, 0))
	if age > 24*time.Hour {
		return true
	}
	if r.PriceUSD.Sign() <= 0 {
		return true
	}
	if r.UpdatedAt == 0 {
		return true
	}
	if r.AnsweredInRound != nil && r.RoundID != nil && r.AnsweredInRound.Cmp(r.RoundID) < 0 {
		return true
	}
	return false
}

// AggregatorReader reads a Chainlink feed's latestRoundData (AggregatorV3),
// falling back to the legacy AggregatorV2 interface when V3 errors.
type AggregatorReader struct {
	client contractclient.Client
	log    *zap.Logger
}

// NewAggregatorReader builds an AggregatorReader bound to one feed's
// ContractClient (pre-loaded with the AggregatorV3Interface ABI).
func NewAggregatorReader(client contractclient.Client, log *zap.Logger) *AggregatorReader {
	return &AggregatorReader{client: client, log: log}
}

// Read performs latestRoundData, falling back to the legacy
// latestAnswer/latestTimestamp pair on error.
func (a *AggregatorReader) Read(ctx context.Context) (OracleReading, error) {
	out, err := a.client.Call(nil, "latestRoundData")
	if err == nil && len(out) == 5 {
		roundID, _ := out[0].(*big.Int)
		answer, _ := out[1].(*big.Int)
		updatedAt, _ := out[3].(*big.Int)
		answeredInRound, _ := out[4].(*big.Int)

		decimals, derr := a.decimals(ctx)
		if derr != nil {
			return OracleReading{}, fmt.Errorf("pricecache: read decimals: %w", derr)
		}

		return OracleReading{
			PriceUSD:        decimal.NewFromBigInt(answer, -int32(decimals)),
			Decimals:        decimals,
			UpdatedAt:       updatedAt.Int64(),
			AnsweredInRound: answeredInRound,
			RoundID:         roundID,
		}, nil
	}

	a.log.Warn("pricecache: latestRoundData failed, falling back to AggregatorV2", zap.Error(err))
	return a.readLegacy(ctx)
}

func (a *AggregatorReader) readLegacy(ctx context.Context) (OracleReading, error) {
	answerOut, err := a.client.Call(nil, "latestAnswer")
	if err != nil {
		return OracleReading{}, fmt.Errorf("pricecache: legacy latestAnswer: %w", err)
	}
	tsOut, err := a.client.Call(nil, "latestTimestamp")
	if err != nil {
		return OracleReading{}, fmt.Errorf("pricecache: legacy latestTimestamp: %w", err)
	}
	decimals, err := a.decimals(ctx)
	if err != nil {
		return OracleReading{}, fmt.Errorf("pricecache: legacy decimals: %w", err)
	}

	answer, _ := answerOut[0].(*big.Int)
	ts, _ := tsOut[0].(*big.Int)

	return OracleReading{
		PriceUSD:        decimal.NewFromBigInt(answer, -int32(decimals)),
		Decimals:        decimals,
		UpdatedAt:       ts.Int64(),
		AnsweredInRound: big.NewInt(1),
		RoundID:         big.NewInt(1),
	}, nil
}

func (a *AggregatorReader) decimals(ctx context.Context) (uint8, error) {
	out, err := a.client.Call(nil, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("pricecache: unexpected decimals() type %T", out[0])
	}
	return d, nil
}

// UnderlyingAggregator resolves a proxy feed's current aggregator address
// via its aggregator() view. Nothing in this module calls it.
func UnderlyingAggregator(ctx context.Context, client contractclient.Client) (common.Address, error) {
	out, err := client.Call(nil, "aggregator")
	if err != nil {
		return common.Address{}, fmt.Errorf("pricecache: aggregator(): %w", err)
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("pricecache: unexpected aggregator() type %T", out[0])
	}
	return addr, nil
}

// AnswerUpdatedSignature is the Chainlink aggregator event signature the
// realtime watcher subscribes to for oracle cache invalidation.
const AnswerUpdatedSignature = "AnswerUpdated(int256,uint256,uint256)"

// lastGoodPrice is the volatility guard's own memory of a feed's last
// accepted reading, kept independently of Cache's TTL entries since the
// guard must compare every fresh RPC read against the last one that passed
// it, not against whatever happens to still be cached.
type lastGoodPrice struct {
	reading OracleReading
	at      time.Time
}

// OracleCache wraps the generic Cache with Chainlink-specific decoding, the
// sticky-on-error policy §4.4 requires for oracle reads, and the §4.2 gate 7
// volatility guard that rejects an implausible single-update price jump.
type OracleCache struct {
	cache   *Cache
	readers map[common.Address]*AggregatorReader
	log     *zap.Logger

	// priceJumpThreshold is the max allowed ratio (either direction) between
	// a fresh reading and the last accepted one within priceJumpWindow.
	// Zero disables the guard.
	priceJumpThreshold float64
	priceJumpWindow    time.Duration

	mu       sync.Mutex
	lastGood map[common.Address]lastGoodPrice
	nowFunc  func() time.Time
}

// NewOracleCache builds an OracleCache with the spec's 24h success / 15s
// failure TTLs. priceJumpThreshold/priceJumpWindow configure gate 7's
// volatility guard (spec.md §8 scenario 5); pass a zero threshold to
// disable it.
func NewOracleCache(priceJumpThreshold float64, priceJumpWindow time.Duration, log *zap.Logger) *OracleCache {
	return &OracleCache{
		cache:              New(24*time.Hour, 15*time.Second, true, log),
		readers:            make(map[common.Address]*AggregatorReader),
		log:                log,
		priceJumpThreshold: priceJumpThreshold,
		priceJumpWindow:    priceJumpWindow,
		lastGood:           make(map[common.Address]lastGoodPrice),
		nowFunc:            time.Now,
	}
}

// Register binds a feed address to the ContractClient used to read it.
func (o *OracleCache) Register(feed common.Address, client contractclient.Client, log *zap.Logger) {
	o.readers[feed] = NewAggregatorReader(client, log)
}

// Get returns the current price reading for feed, refreshing through the
// registered AggregatorReader on a cache miss or TTL expiry and substituting
// the last accepted reading whenever that refresh's own price fails the
// volatility guard.
func (o *OracleCache) Get(ctx context.Context, feed common.Address) (OracleReading, error) {
	reader, ok := o.readers[feed]
	if !ok {
		return OracleReading{}, fmt.Errorf("pricecache: no reader registered for feed %s", feed.Hex())
	}

	v, _, err := o.cache.Get(feed.Hex(), func() (interface{}, error) {
		reading, rerr := reader.Read(ctx)
		if rerr != nil {
			return OracleReading{}, rerr
		}
		return o.guardVolatility(feed, reading), nil
	})
	if err != nil {
		return OracleReading{}, err
	}
	return v.(OracleReading), nil
}

// guardVolatility implements gate 7's volatility guard: a fresh reading
// whose ratio to the last accepted reading exceeds priceJumpThreshold within
// priceJumpWindow is rejected in favor of that last accepted reading, with a
// warning log. Readings that pass (or the first reading ever seen for a
// feed) become the new last-accepted value.
func (o *OracleCache) guardVolatility(feed common.Address, fresh OracleReading) OracleReading {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.nowFunc()
	prev, ok := o.lastGood[feed]

	if ok && o.priceJumpThreshold > 0 && now.Sub(prev.at) <= o.priceJumpWindow && prev.reading.PriceUSD.IsPositive() && fresh.PriceUSD.IsPositive() {
		up := fresh.PriceUSD.Div(prev.reading.PriceUSD)
		down := prev.reading.PriceUSD.Div(fresh.PriceUSD)
		ratio := up
		if down.GreaterThan(ratio) {
			ratio = down
		}
		if ratio.GreaterThan(decimal.NewFromFloat(o.priceJumpThreshold)) {
			o.log.Warn("price-volatility-rejected",
				zap.String("feed", feed.Hex()),
				zap.String("previous", prev.reading.PriceUSD.String()),
				zap.String("rejected", fresh.PriceUSD.String()),
				zap.String("ratio", ratio.StringFixed(2)))
			return prev.reading
		}
	}

	o.lastGood[feed] = lastGoodPrice{reading: fresh, at: now}
	return fresh
}

// Invalidate drops a feed's cached reading, called when the watcher
// observes that feed's AnswerUpdated event.
func (o *OracleCache) Invalidate(feed common.Address) {
	o.cache.Invalidate(feed.Hex())
}
