package scorer

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackhole-labs/liquidationd/internal/market"
)

func baseChain() *market.Chain {
	return &market.Chain{
		ChainID: 42161,
		Name:    "arbitrum",
		Risk: market.RiskOverrides{
			HFMaxDefault:     1.02,
			GapCapBpsDefault: 150,
		},
	}
}

func baseCandidate() market.Candidate {
	return market.Candidate{
		ChainID:  42161,
		Borrower: common.HexToAddress("0xB0B"),
		Debt: market.TokenPosition{
			Symbol:   "USDC",
			Address:  common.HexToAddress("0xDEBT"),
			Decimals: 6,
			Amount:   big.NewInt(1_000_000000),
		},
		Collateral: market.TokenPosition{
			Symbol:   "WETH",
			Address:  common.HexToAddress("0xCOLL"),
			Decimals: 18,
			Amount:   new(big.Int).Mul(big.NewInt(1), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)),
		},
		HealthFactor: 0.97,
		Protocol:     market.ProtocolAaveV3,
	}
}

func passingPolicy() Policy {
	return Policy{
		Enabled:        true,
		CloseFactorBps: 5000,
		BonusBps:       800,
		FloorBps:       50,
		MaxRepayUSD:    decimal.NewFromInt(1_000_000),
		GasCapUSD:      decimal.NewFromInt(100),
		SlippageBps:    50,
		PnlMultMin:     decimal.NewFromInt(2),
	}
}

// baseDeps wires every gate to pass and a single profitable route, so tests
// can override exactly the one function they want to exercise.
func baseDeps(t *testing.T) Deps {
	t.Helper()
	return Deps{
		LookupPolicy: func(chainID int64, debtSymbol string) (Policy, bool) {
			return passingPolicy(), true
		},
		IsDenylisted: func(chainID int64, symbol string) bool { return false },
		MarketEnabled: func(chainID int64, protocol market.ProtocolKey, debtSymbol, collatSymbol string) bool {
			return true
		},
		SequencerStatus: func(ctx context.Context, chainID int64) (market.SequencerStatus, error) {
			return market.SequencerOK(), nil
		},
		ThrottleAllow: func(ctx context.Context, chainID int64, borrower common.Address, currentHF, bypassThreshold float64) bool {
			return true
		},
		PriceUSD: func(ctx context.Context, chainID int64, token common.Address) (PriceQuote, error) {
			if token == common.HexToAddress("0xDEBT") {
				return PriceQuote{PriceUSD: decimal.NewFromInt(1), Decimals: 6}, nil
			}
			return PriceQuote{PriceUSD: decimal.NewFromInt(2000), Decimals: 18}, nil
		},
		OracleDexGapBps: func(ctx context.Context, chainID int64, collateral, debt common.Address) (float64, error) {
			return 10, nil
		},
		MorphoOracleDivergenceBps: func(ctx context.Context, chainID int64, oracle, collateral, debt common.Address) (float64, error) {
			return 0, nil
		},
		AdaptiveThresholds: func(ctx context.Context, chainID int64, assetKey string, baseHFMax, baseGapCapBps, observedGapBps float64) (float64, float64) {
			return baseHFMax, baseGapCapBps
		},
		OnChainHF: func(ctx context.Context, chainID int64, borrower common.Address) (OnChainAccountData, error) {
			return OnChainAccountData{HealthFactor: 0.97}, nil
		},
		PrecommitEligible: func(ctx context.Context, chainID int64, debtToken common.Address, observedGapBps, hf, hfMax float64) bool {
			return false
		},
		QuoteRoutes: func(ctx context.Context, chainID int64, collateral, debt common.Address, amountIn decimal.Decimal) []RouteQuoteResult {
			return []RouteQuoteResult{
				{
					Option:    market.RouteOption{DexID: "uniswap-v3", Kind: market.RouteUniV3, FeeBps: 500},
					AmountOut: decimal.NewFromInt(550_000000),
				},
			}
		},
		EstimateGas: func(ctx context.Context, chainID int64, plan market.Plan) GasEstimate {
			return GasEstimate{GasUnits: 300_000, GasUSD: decimal.NewFromFloat(2.5)}
		},
		ExecutorDebtBalance: func(ctx context.Context, chainID int64, debtToken common.Address) decimal.Decimal {
			return decimal.Zero
		},
		NowUnix: func() int64 { return 1_700_000_000 },
	}
}

func TestScoreHappyPathProducesPlan(t *testing.T) {
	outcome := Score(context.Background(), baseDeps(t), baseCandidate(), baseChain())
	require.True(t, outcome.IsAccepted(), "expected accepted plan, got rejection %+v", outcome.Rejection)
	assert.Equal(t, market.ModeFlash, outcome.Plan.Mode)
	assert.True(t, outcome.Plan.RepayAmount.Cmp(big.NewInt(0)) > 0)
}

func TestScoreRejectsNilChain(t *testing.T) {
	outcome := Score(context.Background(), baseDeps(t), baseCandidate(), nil)
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejChainDisabled, outcome.Rejection.Reason)
}

func TestScoreRejectsWhenNoPolicy(t *testing.T) {
	d := baseDeps(t)
	d.LookupPolicy = func(chainID int64, debtSymbol string) (Policy, bool) { return Policy{}, false }
	outcome := Score(context.Background(), d, baseCandidate(), baseChain())
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejNoPolicy, outcome.Rejection.Reason)
}

func TestScoreRejectsDenylistedAsset(t *testing.T) {
	d := baseDeps(t)
	d.IsDenylisted = func(chainID int64, symbol string) bool { return symbol == "USDC" }
	outcome := Score(context.Background(), d, baseCandidate(), baseChain())
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejAssetDenylisted, outcome.Rejection.Reason)
}

func TestScoreRejectsZeroExposure(t *testing.T) {
	c := baseCandidate()
	c.Debt.Amount = big.NewInt(0)
	outcome := Score(context.Background(), baseDeps(t), c, baseChain())
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejZeroExposure, outcome.Rejection.Reason)
}

func TestScoreRejectsMarketDisabled(t *testing.T) {
	d := baseDeps(t)
	d.MarketEnabled = func(chainID int64, protocol market.ProtocolKey, debtSymbol, collatSymbol string) bool { return false }
	outcome := Score(context.Background(), d, baseCandidate(), baseChain())
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejMarketDisabled, outcome.Rejection.Reason)
}

func TestScoreRejectsSequencerDown(t *testing.T) {
	d := baseDeps(t)
	d.SequencerStatus = func(ctx context.Context, chainID int64) (market.SequencerStatus, error) {
		return market.SequencerDown("grace-period", 1), nil
	}
	outcome := Score(context.Background(), d, baseCandidate(), baseChain())
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejSequencerDown, outcome.Rejection.Reason)
}

func TestScoreRejectsThrottled(t *testing.T) {
	d := baseDeps(t)
	d.ThrottleAllow = func(ctx context.Context, chainID int64, borrower common.Address, hfDrop, bypass float64) bool { return false }
	outcome := Score(context.Background(), d, baseCandidate(), baseChain())
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejThrottled, outcome.Rejection.Reason)
}

func TestScoreRejectsGapAboveCap(t *testing.T) {
	d := baseDeps(t)
	d.OracleDexGapBps = func(ctx context.Context, chainID int64, collateral, debt common.Address) (float64, error) {
		return 9999, nil
	}
	outcome := Score(context.Background(), d, baseCandidate(), baseChain())
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejGapAboveCap, outcome.Rejection.Reason)
}

func TestScoreRejectsHFAboveOneWithoutPrecommit(t *testing.T) {
	d := baseDeps(t)
	d.OnChainHF = func(ctx context.Context, chainID int64, borrower common.Address) (OnChainAccountData, error) {
		return OnChainAccountData{HealthFactor: 1.01}, nil
	}
	outcome := Score(context.Background(), d, baseCandidate(), baseChain())
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejHFAboveOne, outcome.Rejection.Reason)
}

func TestScoreAllowsHFAboveOneWhenPrecommitEligible(t *testing.T) {
	d := baseDeps(t)
	d.PrecommitEligible = func(ctx context.Context, chainID int64, debtToken common.Address, observedGapBps, hf, hfMax float64) bool {
		return true
	}
	d.OnChainHF = func(ctx context.Context, chainID int64, borrower common.Address) (OnChainAccountData, error) {
		return OnChainAccountData{HealthFactor: 1.03}, nil // above hfMax(1.02), only reachable via precommit
	}
	outcome := Score(context.Background(), d, baseCandidate(), baseChain())
	require.True(t, outcome.IsAccepted())
	assert.True(t, outcome.Plan.Precommit)
}

func TestScoreRejectsExpiredPreLiqOffer(t *testing.T) {
	c := baseCandidate()
	c.Protocol = market.ProtocolMorphoBlue
	c.Morpho = &market.MorphoMeta{
		BorrowShares: "1000000000",
		PreLiqOffer: &market.PreLiqOffer{
			Expiry: 1, // long past NowUnix() in baseDeps
		},
	}
	outcome := Score(context.Background(), baseDeps(t), c, baseChain())
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejOfferExpired, outcome.Rejection.Reason)
}

// morphoPreLiqCandidate bypasses gate 10's HF>=1 rejection via precommit
// eligibility, since a Morpho pre-liquidation offer is only meaningful in
// the (1, preLLTV) band above that cutoff.
func morphoPreLiqCandidate(t *testing.T, offer *market.PreLiqOffer) (market.Candidate, Deps) {
	t.Helper()
	c := baseCandidate()
	c.Protocol = market.ProtocolMorphoBlue
	c.Morpho = &market.MorphoMeta{BorrowShares: "1000000000", PreLiqOffer: offer}

	d := baseDeps(t)
	d.PrecommitEligible = func(ctx context.Context, chainID int64, debtToken common.Address, observedGapBps, hf, hfMax float64) bool {
		return true
	}
	d.OnChainHF = func(ctx context.Context, chainID int64, borrower common.Address) (OnChainAccountData, error) {
		return OnChainAccountData{HealthFactor: 1.03}, nil
	}
	return c, d
}

func TestScoreRejectsIncentiveTooLow(t *testing.T) {
	c, d := morphoPreLiqCandidate(t, &market.PreLiqOffer{
		PreLLTV: 12000, // 1.20
		PreLCF1: 3000, PreLCF2: 3000,
		PreLIF1: 100, PreLIF2: 100, // 100 bps, flat across the interpolation range
	})
	d.NowUnix = func() int64 { return 1_700_000_000 }

	outcome := Score(context.Background(), d, c, baseChain())
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejIncentiveTooLow, outcome.Rejection.Reason)
	assert.Equal(t, "100 bps < 150 bps", outcome.Rejection.Detail)
}

func TestScoreRejectsCloseFactorOutOfRange(t *testing.T) {
	c, d := morphoPreLiqCandidate(t, &market.PreLiqOffer{
		PreLLTV: 12000,
		PreLCF1: 0, PreLCF2: 0, // non-positive close factor everywhere
		PreLIF1: 500, PreLIF2: 500,
	})
	d.NowUnix = func() int64 { return 1_700_000_000 }

	outcome := Score(context.Background(), d, c, baseChain())
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejCloseFactorNonpositive, outcome.Rejection.Reason)
}

func TestScoreRejectsMorphoOracleDivergence(t *testing.T) {
	c, d := morphoPreLiqCandidate(t, &market.PreLiqOffer{
		PreLLTV: 12000,
		PreLCF1: 3000, PreLCF2: 3000,
		PreLIF1: 500, PreLIF2: 500,
		Oracle: common.HexToAddress("0xORACLE"),
	})
	d.NowUnix = func() int64 { return 1_700_000_000 }
	d.MorphoOracleDivergenceBps = func(ctx context.Context, chainID int64, oracle, collateral, debt common.Address) (float64, error) {
		return 500, nil
	}

	chain := baseChain()
	chain.Risk.MaxOracleDivergenceBps = 100

	outcome := Score(context.Background(), d, c, chain)
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejGapAboveCap, outcome.Rejection.Reason)
	assert.Equal(t, "morpho-oracle-divergence", outcome.Rejection.Detail)
}
