package wiring

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/blackhole-labs/liquidationd/internal/adaptive"
	"github.com/blackhole-labs/liquidationd/internal/alert"
	"github.com/blackhole-labs/liquidationd/internal/bootenv"
	"github.com/blackhole-labs/liquidationd/internal/chainagent"
	"github.com/blackhole-labs/liquidationd/internal/killswitch"
	"github.com/blackhole-labs/liquidationd/internal/market"
	"github.com/blackhole-labs/liquidationd/internal/precommit"
	"github.com/blackhole-labs/liquidationd/internal/pricecache"
	"github.com/blackhole-labs/liquidationd/internal/rpcpool"
	"github.com/blackhole-labs/liquidationd/internal/scorer"
	"github.com/blackhole-labs/liquidationd/internal/session"
	"github.com/blackhole-labs/liquidationd/internal/throttle"
	"github.com/blackhole-labs/liquidationd/pkg/contractclient"
)

// Runtime holds every lazily-built on-chain reader one chain's scorer.Deps
// closures share: contract clients keyed by address, the oracle cache, and
// the precommit EMA state per debt feed. One Runtime is built per chain;
// nothing here is safe to share across chains since addresses collide.
type Runtime struct {
	Pool *rpcpool.Pool
	log  *zap.Logger

	mu                  sync.Mutex
	quoterClients       map[common.Address]contractclient.Client
	routerClients       map[common.Address]contractclient.Client
	erc20Clients        map[common.Address]contractclient.Client
	aggregatorClients   map[common.Address]contractclient.Client
	aaveClients         map[common.Address]contractclient.Client
	morphoCoreClients   map[common.Address]contractclient.Client
	morphoOracleClients map[common.Address]contractclient.Client

	OracleCache     *pricecache.OracleCache
	registeredFeeds map[common.Address]struct{}

	FeedStates     map[common.Address]*precommit.FeedState
	precommitAlpha float64

	// candidateHints remembers the most recent candidate seen for a
	// borrower, fed by ObserveCandidate right before the same candidate is
	// handed to the scorer. OnChainHF only receives (chainID, borrower) —
	// too narrow to carry a Morpho market id or a CompoundV3 account
	// snapshot — so this is how those two protocols recover the extra
	// context the real contract read (or, for CompoundV3, the absence of
	// one) needs.
	candidateHints map[common.Address]market.Candidate

	// lastIntelHF remembers the health factor last seen for a borrower at
	// throttle-evaluation time (gate 6's "last stored intel"), so a large
	// drop between two throttle checks can bypass the rolling-hour cap.
	lastIntelHF map[common.Address]float64

	liquidatorABIParsed abi.ABI

	adaptive *adaptive.Client
	throttle *throttle.Store

	policies   map[string]scorer.Policy
	denylisted func(symbol string) bool

	nowFunc func() time.Time
}

// NewRuntime builds a Runtime for one chain. policies and denylisted back
// LookupPolicy/IsDenylisted directly (configs.ChainYAML.ToPolicies /
// .Denylisted, resolved once at boot by the caller).
func NewRuntime(
	pool *rpcpool.Pool,
	adaptiveClient *adaptive.Client,
	throttleStore *throttle.Store,
	policies map[string]scorer.Policy,
	denylisted func(symbol string) bool,
	precommitAlpha float64,
	pricing bootenv.PricingTunables,
	log *zap.Logger,
) (*Runtime, error) {
	liquidatorParsed, err := abiJSON(liquidatorABI)
	if err != nil {
		return nil, fmt.Errorf("wiring: parse liquidator abi: %w", err)
	}

	return &Runtime{
		Pool: pool,
		log:  log,

		quoterClients:       make(map[common.Address]contractclient.Client),
		routerClients:       make(map[common.Address]contractclient.Client),
		erc20Clients:        make(map[common.Address]contractclient.Client),
		aggregatorClients:   make(map[common.Address]contractclient.Client),
		aaveClients:         make(map[common.Address]contractclient.Client),
		morphoCoreClients:   make(map[common.Address]contractclient.Client),
		morphoOracleClients: make(map[common.Address]contractclient.Client),

		OracleCache:     pricecache.NewOracleCache(pricing.PriceJumpThreshold, pricing.PriceJumpWindow, log),
		registeredFeeds: make(map[common.Address]struct{}),

		FeedStates:     make(map[common.Address]*precommit.FeedState),
		precommitAlpha: precommitAlpha,

		candidateHints: make(map[common.Address]market.Candidate),
		lastIntelHF:    make(map[common.Address]float64),

		liquidatorABIParsed: liquidatorParsed,

		adaptive: adaptiveClient,
		throttle: throttleStore,

		policies:   policies,
		denylisted: denylisted,
	}, nil
}

func abiJSON(raw string) (abi.ABI, error) {
	return abi.JSON(strings.NewReader(raw))
}

// NewLiquidatorClient builds the contractclient.Client internal/execution's
// Submitter sends real transactions through, sharing the same parsed
// liquidator ABI the dry-run gas estimator packs calls with.
func NewLiquidatorClient(pool *rpcpool.Pool, chain *market.Chain) (contractclient.Client, error) {
	parsed, err := abiJSON(liquidatorABI)
	if err != nil {
		return nil, fmt.Errorf("wiring: parse liquidator abi: %w", err)
	}
	return contractclient.NewContractClient(pool.HTTP(), chain.Liquidator, parsed), nil
}

func (rt *Runtime) now() time.Time {
	if rt.nowFunc != nil {
		return rt.nowFunc()
	}
	return time.Now()
}

func (rt *Runtime) nowUnix() int64 {
	return rt.now().Unix()
}

// ObserveCandidate records c as the most recent sighting of its borrower.
// The caller (cmd/main.go's candidate fan-in) must call this for a candidate
// before handing that same candidate to the scorer, so OnChainHF's Morpho
// and CompoundV3 branches have the context they need by the time gate 10
// runs.
func (rt *Runtime) ObserveCandidate(c market.Candidate) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.candidateHints[c.Borrower] = c
}

// Deps builds chain's scorer.Deps, closing every callback over chain and rt.
func (rt *Runtime) Deps(chain *market.Chain) scorer.Deps {
	return scorer.Deps{
		LookupPolicy: func(chainID int64, debtSymbol string) (scorer.Policy, bool) {
			p, ok := rt.policies[debtSymbol]
			return p, ok
		},
		IsDenylisted: func(chainID int64, symbol string) bool {
			return rt.denylisted(symbol)
		},
		MarketEnabled: func(chainID int64, protocol market.ProtocolKey, debtSymbol, collatSymbol string) bool {
			return rt.marketEnabled(chain, protocol, debtSymbol, collatSymbol)
		},
		SequencerStatus: func(ctx context.Context, chainID int64) (market.SequencerStatus, error) {
			return rt.sequencerStatus(ctx, chain)
		},
		ThrottleAllow: func(ctx context.Context, chainID int64, borrower common.Address, currentHF, bypassThreshold float64) bool {
			return rt.throttleAllow(ctx, chain, borrower, currentHF, bypassThreshold)
		},
		PriceUSD: func(ctx context.Context, chainID int64, token common.Address) (scorer.PriceQuote, error) {
			return rt.priceUSD(ctx, chain, token)
		},
		OracleDexGapBps: func(ctx context.Context, chainID int64, collateral, debt common.Address) (float64, error) {
			return rt.oracleDexGapBps(ctx, chain, collateral, debt)
		},
		MorphoOracleDivergenceBps: func(ctx context.Context, chainID int64, oracle, collateral, debt common.Address) (float64, error) {
			return rt.morphoOracleDivergenceBps(ctx, chain, oracle, collateral, debt)
		},
		AdaptiveThresholds: func(ctx context.Context, chainID int64, assetKey string, baseHFMax, baseGapCapBps, observedGapBps float64) (float64, float64) {
			return rt.adaptiveThresholds(ctx, chain, assetKey, baseHFMax, baseGapCapBps, observedGapBps)
		},
		OnChainHF: func(ctx context.Context, chainID int64, borrower common.Address) (scorer.OnChainAccountData, error) {
			return rt.onChainHF(ctx, chain, borrower)
		},
		PrecommitEligible: func(ctx context.Context, chainID int64, debtToken common.Address, observedGapBps, hf, hfMax float64) bool {
			return rt.precommitEligible(chain, debtToken, observedGapBps, hf, hfMax)
		},
		QuoteRoutes: func(ctx context.Context, chainID int64, collateral, debt common.Address, amountIn decimal.Decimal) []scorer.RouteQuoteResult {
			quotes := rt.quoteRoutes(ctx, chain, collateral, debt, amountIn)
			out := make([]scorer.RouteQuoteResult, 0, len(quotes))
			for _, q := range quotes {
				out = append(out, scorer.RouteQuoteResult{Option: q.Option, AmountOut: q.AmountOut})
			}
			return out
		},
		EstimateGas: func(ctx context.Context, chainID int64, plan market.Plan) scorer.GasEstimate {
			nativeUSD, err := rt.nativeUSD(ctx, chain)
			if err != nil {
				return scorer.GasEstimate{Err: err}
			}
			return rt.estimateGas(ctx, chain, nativeUSD, plan)
		},
		ExecutorDebtBalance: func(ctx context.Context, chainID int64, debtToken common.Address) decimal.Decimal {
			return rt.executorDebtBalance(ctx, chain, debtToken)
		},
		NowUnix: rt.nowUnix,
	}
}

// BuildAgent wires a chainagent.Agent for chain, using rt.Deps(chain) as its
// scorer dependencies.
func BuildAgent(
	chain *market.Chain,
	rt *Runtime,
	cfg chainagent.Config,
	candidates <-chan market.Candidate,
	executor chainagent.Executor,
	recorder chainagent.Recorder,
	sess *session.Counters,
	ks *killswitch.Switch,
	alerter *alert.Throttled,
	log *zap.Logger,
) *chainagent.Agent {
	return chainagent.New(chain, rt.Deps(chain), cfg, candidates, executor, recorder, sess, ks, alerter, log)
}

func (rt *Runtime) marketEnabled(chain *market.Chain, protocol market.ProtocolKey, debtSymbol, collatSymbol string) bool {
	if protocol != chain.Protocol {
		return false
	}
	return chain.TokensBySym[debtSymbol] != nil && chain.TokensBySym[collatSymbol] != nil
}

// throttleAllow evaluates gate 6 against currentHF, diffing it against
// lastIntelHF's previously stored value for borrower to compute the real
// HF-drop bypass, then records currentHF as the new last-stored intel
// regardless of outcome.
func (rt *Runtime) throttleAllow(ctx context.Context, chain *market.Chain, borrower common.Address, currentHF, bypassThreshold float64) bool {
	rt.mu.Lock()
	lastHF, hadIntel := rt.lastIntelHF[borrower]
	rt.lastIntelHF[borrower] = currentHF
	rt.mu.Unlock()

	if bypassThreshold > 0 && hadIntel && lastHF-currentHF >= bypassThreshold {
		return true
	}

	cap := int64(chain.Risk.MaxAttemptsPerHour)
	if cap <= 0 {
		return true
	}
	key := fmt.Sprintf("%d:%s", chain.ChainID, borrower.Hex())
	return rt.throttle.Allow(ctx, key, cap)
}

func (rt *Runtime) adaptiveThresholds(ctx context.Context, chain *market.Chain, assetKey string, baseHFMax, baseGapCapBps, observedGapBps float64) (float64, float64) {
	if rt.adaptive == nil {
		return baseHFMax, baseGapCapBps
	}
	symA, symB := assetKey, ""
	if parts := strings.SplitN(assetKey, "/", 2); len(parts) == 2 {
		symA, symB = parts[0], parts[1]
	}
	th := rt.adaptive.Resolve(ctx, chain.ChainID, chain.Name, assetKey,
		adaptive.Thresholds{HFMax: baseHFMax, GapCapBps: baseGapCapBps}, observedGapBps, symA, symB)
	return th.HFMax, th.GapCapBps
}

// precommitEligible applies §4.5's EMA-based prediction using the feed's
// tracked inter-update interval: eligible once the feed is due for its next
// tick (age has crossed ageFactor * EMA interval), the gap already clears
// half the chain's cap, and the health factor sits just above hfMax rather
// than arbitrarily far above it.
func (rt *Runtime) precommitEligible(chain *market.Chain, debtToken common.Address, observedGapBps, hf, hfMax float64) bool {
	fs := rt.feedState(debtToken)
	return fs.Eligible(rt.now(), precommit.Eligibility{
		MinSamples:   5,
		AgeFactor:    0.8,
		GapBps:       observedGapBps,
		MinGapBps:    float64(chain.Risk.GapCapBpsDefault) / 2,
		HealthFactor: hf,
		HFMax:        hfMax,
		HFMargin:     0.01,
	})
}

func (rt *Runtime) feedState(token common.Address) *precommit.FeedState {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	fs, ok := rt.FeedStates[token]
	if !ok {
		fs = precommit.NewFeedState(rt.precommitAlpha)
		rt.FeedStates[token] = fs
	}
	return fs
}

func (rt *Runtime) executorDebtBalance(ctx context.Context, chain *market.Chain, debtToken common.Address) decimal.Decimal {
	tok := chain.TokenByAddress(debtToken)
	if tok == nil {
		return decimal.Zero
	}
	client, ok := rt.erc20Client(debtToken)
	if !ok {
		return decimal.Zero
	}
	out, err := client.Call(nil, "balanceOf", chain.ExecutorAddr)
	if err != nil {
		return decimal.Zero
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return decimal.Zero
	}
	// Raw token units, the same scale as the plan's repay amount it is
	// compared against.
	return decimal.NewFromBigInt(bal, 0)
}

// nativeWrapperSymbols lists the wrapped-native token symbols this agent
// recognizes for gas-cost USD conversion; a chain must list one of these
// among its tokens for EstimateGas's GasUSD to resolve.
var nativeWrapperSymbols = []string{"WETH", "WMATIC", "WBNB", "WAVAX", "WFTM", "WS"}

func (rt *Runtime) nativeUSD(ctx context.Context, chain *market.Chain) (decimal.Decimal, error) {
	for _, sym := range nativeWrapperSymbols {
		tok, ok := chain.TokensBySym[sym]
		if !ok {
			continue
		}
		q, err := rt.priceUSD(ctx, chain, tok.Address)
		if err == nil {
			return q.PriceUSD, nil
		}
	}
	return decimal.Zero, fmt.Errorf("wiring: no native wrapper token priced for chain %s", chain.Name)
}

// priceUSD resolves token's USD price via its oracle feed, falling back to
// DEX quoting against its configured hub when the feed is unset or stale.
func (rt *Runtime) priceUSD(ctx context.Context, chain *market.Chain, token common.Address) (scorer.PriceQuote, error) {
	tok := chain.TokenByAddress(token)
	if tok == nil {
		return scorer.PriceQuote{}, fmt.Errorf("wiring: unknown token %s", token.Hex())
	}

	if tok.OracleFeed != (common.Address{}) {
		rt.registerOracleFeed(tok.OracleFeed)
		reading, err := rt.OracleCache.Get(ctx, tok.OracleFeed)
		if err == nil && !reading.Stale(rt.now()) {
			price := reading.PriceUSD
			if tok.OracleDenom == market.DenomNative {
				nativeUSD, nerr := rt.nativeUSD(ctx, chain)
				if nerr != nil {
					return scorer.PriceQuote{}, nerr
				}
				price = price.Mul(nativeUSD)
			}
			return scorer.PriceQuote{PriceUSD: price, Decimals: tok.Decimals}, nil
		}
	}

	return rt.dexFallbackPrice(ctx, chain, tok)
}

func (rt *Runtime) dexFallbackPrice(ctx context.Context, chain *market.Chain, tok *market.Token) (scorer.PriceQuote, error) {
	hub := chain.TokenByAddress(tok.FallbackRouteHub)
	if hub == nil || hub.Address == tok.Address {
		return scorer.PriceQuote{}, fmt.Errorf("wiring: no dex fallback route configured for %s", tok.Symbol)
	}
	hubPrice, err := rt.priceUSD(ctx, chain, hub.Address)
	if err != nil {
		return scorer.PriceQuote{}, fmt.Errorf("wiring: dex fallback hub price for %s: %w", tok.Symbol, err)
	}

	amountIn := decimal.New(1, int32(tok.Decimals))
	quotes := rt.quoteRoutes(ctx, chain, tok.Address, hub.Address, amountIn)
	if len(quotes) == 0 {
		return scorer.PriceQuote{}, fmt.Errorf("wiring: no dex quote for %s->%s", tok.Symbol, hub.Symbol)
	}
	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.AmountOut.GreaterThan(best.AmountOut) {
			best = q
		}
	}

	hubAmount := best.AmountOut.Div(decimal.New(1, int32(hub.Decimals)))
	return scorer.PriceQuote{PriceUSD: hubAmount.Mul(hubPrice.PriceUSD), Decimals: tok.Decimals}, nil
}

// oracleDexGapBps compares the oracle-implied collateral/debt price ratio
// against the best quoted DEX ratio for a nominal one-unit swap.
func (rt *Runtime) oracleDexGapBps(ctx context.Context, chain *market.Chain, collateral, debt common.Address) (float64, error) {
	collToken := chain.TokenByAddress(collateral)
	debtToken := chain.TokenByAddress(debt)
	if collToken == nil || debtToken == nil {
		return 0, fmt.Errorf("wiring: unknown token in gap calc")
	}

	collPrice, err := rt.priceUSD(ctx, chain, collateral)
	if err != nil {
		return 0, err
	}
	debtPrice, err := rt.priceUSD(ctx, chain, debt)
	if err != nil {
		return 0, err
	}
	if debtPrice.PriceUSD.IsZero() {
		return 0, fmt.Errorf("wiring: zero debt price")
	}
	oracleRatio := collPrice.PriceUSD.Div(debtPrice.PriceUSD)

	amountIn := decimal.New(1, int32(collToken.Decimals))
	quotes := rt.quoteRoutes(ctx, chain, collateral, debt, amountIn)
	if len(quotes) == 0 {
		return 0, fmt.Errorf("wiring: no dex quote available for gap calc")
	}
	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.AmountOut.GreaterThan(best.AmountOut) {
			best = q
		}
	}

	dexRatio := best.AmountOut.Div(decimal.New(1, int32(debtToken.Decimals)))
	if oracleRatio.IsZero() {
		return 0, fmt.Errorf("wiring: zero oracle ratio")
	}
	gapBps := oracleRatio.Sub(dexRatio).Abs().Div(oracleRatio).Mul(decimal.NewFromInt(10_000))
	return gapBps.InexactFloat64(), nil
}

// morphoOracleDivergenceBps compares a Morpho pre-liquidation offer's own
// oracle ratio against the best quoted DEX ratio (spec.md §4.4's "oracle
// divergence check for Morpho offers", distinct from gate 8's Chainlink-cache
// gap check). The oracle's price() returns a 1e36-scaled ratio following the
// same convention morphoHealthFactor documents: collateralRaw * price / 1e36
// lands directly in the loan asset's raw units.
func (rt *Runtime) morphoOracleDivergenceBps(ctx context.Context, chain *market.Chain, oracle, collateral, debt common.Address) (float64, error) {
	collToken := chain.TokenByAddress(collateral)
	debtToken := chain.TokenByAddress(debt)
	if collToken == nil || debtToken == nil {
		return 0, fmt.Errorf("wiring: unknown token in morpho oracle divergence calc")
	}

	oracleClient, ok := rt.morphoOracleClient(oracle)
	if !ok {
		return 0, fmt.Errorf("wiring: morpho oracle client unavailable")
	}
	priceOut, err := oracleClient.Call(nil, "price")
	if err != nil {
		return 0, fmt.Errorf("wiring: morpho oracle price: %w", err)
	}
	price, ok := priceOut[0].(*big.Int)
	if !ok || price == nil || price.Sign() == 0 {
		return 0, fmt.Errorf("wiring: unusable morpho oracle price")
	}

	oracleScale := new(big.Int).Exp(big.NewInt(10), big.NewInt(36), nil)
	amountIn := decimal.New(1, int32(collToken.Decimals))
	oracleOutRaw := new(big.Int).Div(new(big.Int).Mul(amountIn.BigInt(), price), oracleScale)
	oracleRatio := decimal.NewFromBigInt(oracleOutRaw, -int32(debtToken.Decimals))
	if oracleRatio.IsZero() {
		return 0, fmt.Errorf("wiring: zero morpho oracle ratio")
	}

	quotes := rt.quoteRoutes(ctx, chain, collateral, debt, amountIn)
	if len(quotes) == 0 {
		return 0, fmt.Errorf("wiring: no dex quote available for morpho oracle divergence calc")
	}
	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.AmountOut.GreaterThan(best.AmountOut) {
			best = q
		}
	}
	dexRatio := best.AmountOut.Div(decimal.New(1, int32(debtToken.Decimals)))

	gapBps := oracleRatio.Sub(dexRatio).Abs().Div(oracleRatio).Mul(decimal.NewFromInt(10_000))
	return gapBps.InexactFloat64(), nil
}

func (rt *Runtime) sequencerStatus(ctx context.Context, chain *market.Chain) (market.SequencerStatus, error) {
	if chain.SequencerFeed == (common.Address{}) {
		return market.SequencerOK(), nil
	}

	client, ok := rt.aggregatorClient(chain.SequencerFeed)
	if !ok {
		return market.SequencerStatus{}, fmt.Errorf("wiring: sequencer feed client unavailable")
	}

	out, err := client.Call(nil, "latestRoundData")
	if err != nil {
		return market.SequencerStatus{}, err
	}
	answer, _ := out[1].(*big.Int)
	startedAt, _ := out[2].(*big.Int)

	if answer != nil && answer.Sign() != 0 {
		return market.SequencerDown("sequencer-down", valueOrZero(startedAt)), nil
	}

	const gracePeriodSeconds = 3600
	if startedAt != nil && rt.nowUnix()-startedAt.Int64() < gracePeriodSeconds {
		return market.SequencerDown("grace-period", startedAt.Int64()), nil
	}
	return market.SequencerOK(), nil
}

func valueOrZero(b *big.Int) int64 {
	if b == nil {
		return 0
	}
	return b.Int64()
}

// onChainHF recomputes the borrower's health factor from the chain's
// configured money-market protocol. Morpho Blue and CompoundV3 need more
// context than (chainID, borrower) carries — see candidateHints.
func (rt *Runtime) onChainHF(ctx context.Context, chain *market.Chain, borrower common.Address) (scorer.OnChainAccountData, error) {
	switch chain.Protocol {
	case market.ProtocolMorphoBlue:
		rt.mu.Lock()
		hint, ok := rt.candidateHints[borrower]
		rt.mu.Unlock()
		if !ok || hint.Morpho == nil {
			return scorer.OnChainAccountData{Missing: true}, fmt.Errorf("wiring: no morpho market hint observed for borrower %s", borrower.Hex())
		}
		return rt.morphoHealthFactor(ctx, chain, borrower, *hint.Morpho)

	case market.ProtocolCompoundV3:
		// CompoundV3's account-liquidity view (isLiquidatable / collateral
		// balances per asset) doesn't share Aave v3's getUserAccountData
		// shape, and no reader is wired for it; the last subgraph-reported
		// health factor is trusted instead of a fresh on-chain read.
		rt.mu.Lock()
		hint, ok := rt.candidateHints[borrower]
		rt.mu.Unlock()
		if !ok {
			return scorer.OnChainAccountData{Missing: true}, fmt.Errorf("wiring: no candidate hint observed for borrower %s", borrower.Hex())
		}
		return scorer.OnChainAccountData{HealthFactor: hint.HealthFactor}, nil

	default:
		return rt.aaveHealthFactor(ctx, chain, borrower)
	}
}

func (rt *Runtime) aaveHealthFactor(ctx context.Context, chain *market.Chain, borrower common.Address) (scorer.OnChainAccountData, error) {
	client, ok := rt.aavePoolClient(chain.MarketAddr)
	if !ok {
		return scorer.OnChainAccountData{Missing: true}, fmt.Errorf("wiring: aave pool client unavailable")
	}
	out, err := client.Call(nil, "getUserAccountData", borrower)
	if err != nil {
		return scorer.OnChainAccountData{Missing: true}, err
	}
	hfWad, ok := out[5].(*big.Int)
	if !ok {
		return scorer.OnChainAccountData{Missing: true}, fmt.Errorf("wiring: unexpected healthFactor type %T", out[5])
	}
	return scorer.OnChainAccountData{HealthFactor: decimal.NewFromBigInt(hfWad, -18).InexactFloat64()}, nil
}

// morphoHealthFactor recomputes a Morpho Blue position's health factor from
// its stored shares, the market's current totals, and the market oracle's
// price, following Morpho's own scaling convention: the oracle reports
// price scaled by 1e36 / 10**collateralDecimals / 10**loanDecimals, so
// collateral * price / 1e36 is already a loan-asset-denominated value; LLTV
// is WAD-scaled (1e18).
func (rt *Runtime) morphoHealthFactor(ctx context.Context, chain *market.Chain, borrower common.Address, meta market.MorphoMeta) (scorer.OnChainAccountData, error) {
	core, ok := rt.morphoCoreClient(chain.MarketAddr)
	if !ok {
		return scorer.OnChainAccountData{Missing: true}, fmt.Errorf("wiring: morpho core client unavailable")
	}

	posOut, err := core.Call(nil, "position", meta.MarketID, borrower)
	if err != nil {
		return scorer.OnChainAccountData{Missing: true}, err
	}
	borrowShares, _ := posOut[1].(*big.Int)
	collateral, _ := posOut[2].(*big.Int)

	mktOut, err := core.Call(nil, "market", meta.MarketID)
	if err != nil {
		return scorer.OnChainAccountData{Missing: true}, err
	}
	totalBorrowAssets, _ := mktOut[2].(*big.Int)
	totalBorrowShares, _ := mktOut[3].(*big.Int)

	paramsOut, err := core.Call(nil, "idToMarketParams", meta.MarketID)
	if err != nil {
		return scorer.OnChainAccountData{Missing: true}, err
	}
	oracleAddr, _ := paramsOut[2].(common.Address)
	lltv, _ := paramsOut[4].(*big.Int)

	if borrowShares == nil || borrowShares.Sign() == 0 || totalBorrowShares == nil || totalBorrowShares.Sign() == 0 {
		return scorer.OnChainAccountData{HealthFactor: 1_000_000}, nil // no outstanding debt, never liquidatable
	}

	oracleClient, ok := rt.morphoOracleClient(oracleAddr)
	if !ok {
		return scorer.OnChainAccountData{Missing: true}, fmt.Errorf("wiring: morpho oracle client unavailable")
	}
	priceOut, err := oracleClient.Call(nil, "price")
	if err != nil {
		return scorer.OnChainAccountData{Missing: true}, err
	}
	price, _ := priceOut[0].(*big.Int)

	borrowedAssets := new(big.Int).Div(new(big.Int).Mul(borrowShares, totalBorrowAssets), totalBorrowShares)
	if borrowedAssets.Sign() == 0 {
		return scorer.OnChainAccountData{HealthFactor: 1_000_000}, nil
	}

	oracleScale := new(big.Int).Exp(big.NewInt(10), big.NewInt(36), nil)
	wad := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	collateralValue := new(big.Int).Div(new(big.Int).Mul(collateral, price), oracleScale)
	maxBorrow := new(big.Int).Div(new(big.Int).Mul(collateralValue, lltv), wad)

	hf := decimal.NewFromBigInt(maxBorrow, 0).Div(decimal.NewFromBigInt(borrowedAssets, 0))
	return scorer.OnChainAccountData{HealthFactor: hf.InexactFloat64()}, nil
}

func (rt *Runtime) aavePoolClient(addr common.Address) (contractclient.Client, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if c, ok := rt.aaveClients[addr]; ok {
		return c, true
	}
	parsed, err := abiJSON(aaveV3PoolABI)
	if err != nil {
		rt.log.Error("wiring: parse aave pool abi", zap.Error(err))
		return nil, false
	}
	c := contractclient.NewContractClient(rt.Pool.HTTP(), addr, parsed)
	rt.aaveClients[addr] = c
	return c, true
}

func (rt *Runtime) morphoCoreClient(addr common.Address) (contractclient.Client, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if c, ok := rt.morphoCoreClients[addr]; ok {
		return c, true
	}
	parsed, err := abiJSON(morphoCoreABI)
	if err != nil {
		rt.log.Error("wiring: parse morpho core abi", zap.Error(err))
		return nil, false
	}
	c := contractclient.NewContractClient(rt.Pool.HTTP(), addr, parsed)
	rt.morphoCoreClients[addr] = c
	return c, true
}

func (rt *Runtime) morphoOracleClient(addr common.Address) (contractclient.Client, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if c, ok := rt.morphoOracleClients[addr]; ok {
		return c, true
	}
	parsed, err := abiJSON(morphoOracleABI)
	if err != nil {
		rt.log.Error("wiring: parse morpho oracle abi", zap.Error(err))
		return nil, false
	}
	c := contractclient.NewContractClient(rt.Pool.HTTP(), addr, parsed)
	rt.morphoOracleClients[addr] = c
	return c, true
}

func (rt *Runtime) aggregatorClient(addr common.Address) (contractclient.Client, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if c, ok := rt.aggregatorClients[addr]; ok {
		return c, true
	}
	parsed, err := abiJSON(aggregatorV3ABI)
	if err != nil {
		rt.log.Error("wiring: parse aggregator abi", zap.Error(err))
		return nil, false
	}
	c := contractclient.NewContractClient(rt.Pool.HTTP(), addr, parsed)
	rt.aggregatorClients[addr] = c
	return c, true
}
