// Package scorer implements score(candidate) -> Plan | Rejection, the
// ordered 12-gate cascade of SPEC_FULL.md §4.2. Every external read (policy
// lookup, sequencer status, prices, adaptive thresholds, on-chain health
// factor, route quotes, gas estimation) is taken through a small interface
// so the cascade itself — the part worth testing exhaustively — runs
// without touching a live RPC endpoint, in the same spirit as the teacher's
// own separation between blackholedex.Blackhole (orchestration) and
// pkg/contractclient (the actual RPC boundary).
package scorer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/blackhole-labs/liquidationd/internal/market"
	"github.com/blackhole-labs/liquidationd/internal/revert"
)

// Policy is the per-(chain, debt symbol) configuration gate 2 and the plan
// algorithm consult.
type Policy struct {
	Enabled        bool
	CloseFactorBps int64
	BonusBps       int64
	FloorBps       int64
	MaxRepayUSD    decimal.Decimal
	GasCapUSD      decimal.Decimal
	SlippageBps    int64
	PnlMultMin     decimal.Decimal
	InventoryRefreshMs int64
}

// PriceQuote is one token's USD price, as resolved by gate 7.
type PriceQuote struct {
	PriceUSD decimal.Decimal
	Decimals uint8
}

// OnChainAccountData mirrors the lending pool's getUserAccountData output,
// WAD-scaled values already normalized to plain ratios/USD by the caller.
type OnChainAccountData struct {
	HealthFactor float64
	Missing      bool
}

// RouteQuoteResult is one route option's quoted output, ready for gas
// estimation.
type RouteQuoteResult struct {
	Option    market.RouteOption
	AmountOut decimal.Decimal
}

// GasEstimate is the outcome of gas-estimating one route's execution call.
// GasUSD is resolved by the caller (it needs the chain's native-token USD
// price, which is outside the scorer's concerns) and is what plan
// construction actually budgets against.
type GasEstimate struct {
	GasUnits       uint64
	GasPriceWei    decimal.Decimal
	L1FeeWei       decimal.Decimal
	GasUSD         decimal.Decimal
	Classification revert.Classification
	Err            error
}

// Deps bundles every external read the scorer cascade needs, each call
// already scoped to one chain/candidate by the caller.
type Deps struct {
	// LookupPolicy returns the policy for (chainID, debtSymbol); ok is
	// false when no policy exists (gate 2).
	LookupPolicy func(chainID int64, debtSymbol string) (Policy, bool)

	// IsDenylisted checks both debt and collateral symbols (gate 2).
	IsDenylisted func(chainID int64, symbol string) bool

	// MarketEnabled checks (chain, protocol, debtSymbol, collatSymbol) (gate 4).
	MarketEnabled func(chainID int64, protocol market.ProtocolKey, debtSymbol, collatSymbol string) bool

	// SequencerStatus returns the cached sequencer status for the chain (gate 5).
	SequencerStatus func(ctx context.Context, chainID int64) (market.SequencerStatus, error)

	// ThrottleAllow reports whether the borrower is still under its
	// rolling-hour cap, or the HF-drop bypass applies (gate 6). currentHF is
	// the candidate's own health factor; the drop since the last stored
	// intel is computed internally against whatever store backs this call.
	ThrottleAllow func(ctx context.Context, chainID int64, borrower common.Address, currentHF float64, bypassThreshold float64) bool

	// PriceUSD resolves a token's USD price via the oracle cache, falling
	// back to DEX quoting internally (gate 7).
	PriceUSD func(ctx context.Context, chainID int64, token common.Address) (PriceQuote, error)

	// OracleDexGapBps computes the oracle-vs-DEX gap in bps for the
	// collateral/debt pair (gate 8).
	OracleDexGapBps func(ctx context.Context, chainID int64, collateral, debt common.Address) (float64, error)

	// MorphoOracleDivergenceBps computes |dex_ratio - oracle_ratio| /
	// oracle_ratio in bps between a Morpho pre-liquidation offer's own
	// oracle and the DEX-quoted ratio for (collateral, debt) (gate 11,
	// distinct from gate 8's general oracle-vs-DEX gap).
	MorphoOracleDivergenceBps func(ctx context.Context, chainID int64, oracle, collateral, debt common.Address) (float64, error)

	// AdaptiveThresholds resolves min(base, provider) thresholds (gate 9).
	AdaptiveThresholds func(ctx context.Context, chainID int64, assetKey string, baseHFMax float64, baseGapCapBps float64, observedGapBps float64) (hfMax float64, gapCapBps float64)

	// OnChainHF reads getUserAccountData (gate 10).
	OnChainHF func(ctx context.Context, chainID int64, borrower common.Address) (OnChainAccountData, error)

	// PrecommitEligible evaluates §4.5 eligibility for this candidate.
	PrecommitEligible func(ctx context.Context, chainID int64, debtToken common.Address, observedGapBps float64, hf float64, hfMax float64) bool

	// QuoteRoutes enumerates and quotes every configured route option for a
	// collateral->debt swap of the given amount (gate 12). The executor's
	// allowedRouters view is not consulted.
	QuoteRoutes func(ctx context.Context, chainID int64, collateral, debt common.Address, amountIn decimal.Decimal) []RouteQuoteResult

	// EstimateGas gas-estimates the liquidateWithFlash/liquidateWithFunds
	// call for one quoted route (gate 12).
	EstimateGas func(ctx context.Context, chainID int64, plan market.Plan) GasEstimate

	// ExecutorDebtBalance returns the executor contract's ERC-20 balance in
	// the debt token, used to pick funds-vs-flash mode.
	ExecutorDebtBalance func(ctx context.Context, chainID int64, debtToken common.Address) decimal.Decimal

	// NowUnix returns the current unix time, overridable in tests.
	NowUnix func() int64
}
