package scorer

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackhole-labs/liquidationd/internal/market"
	"github.com/blackhole-labs/liquidationd/internal/revert"
)

func TestConstructPlanCloseFactorNonpositive(t *testing.T) {
	d := baseDeps(t)
	d.LookupPolicy = func(chainID int64, debtSymbol string) (Policy, bool) {
		p := passingPolicy()
		p.CloseFactorBps = 0
		return p, true
	}
	outcome := Score(context.Background(), d, baseCandidate(), baseChain())
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejCloseFactorNonpositive, outcome.Rejection.Reason)
}

func TestConstructPlanMinProfitZero(t *testing.T) {
	d := baseDeps(t)
	d.LookupPolicy = func(chainID int64, debtSymbol string) (Policy, bool) {
		p := passingPolicy()
		p.FloorBps = 0
		return p, true
	}
	outcome := Score(context.Background(), d, baseCandidate(), baseChain())
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejMinProfitZero, outcome.Rejection.Reason)
}

func TestConstructPlanNullWhenNoRoutesQuote(t *testing.T) {
	d := baseDeps(t)
	d.QuoteRoutes = func(ctx context.Context, chainID int64, collateral, debt common.Address, amountIn decimal.Decimal) []RouteQuoteResult {
		return nil
	}
	outcome := Score(context.Background(), d, baseCandidate(), baseChain())
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejPlanNull, outcome.Rejection.Reason)
}

func TestConstructPlanHFRecoveredAbortsCascade(t *testing.T) {
	d := baseDeps(t)
	d.EstimateGas = func(ctx context.Context, chainID int64, plan market.Plan) GasEstimate {
		return GasEstimate{
			Err:            errors.New("execution reverted: HealthFactorNotBelowThreshold"),
			Classification: revert.Classification{Kind: revert.KindHFRecovered},
		}
	}
	outcome := Score(context.Background(), d, baseCandidate(), baseChain())
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejHFRecovered, outcome.Rejection.Reason)
}

func TestConstructPlanSkipsRouteOnOtherRevertThenFallsThroughToNull(t *testing.T) {
	d := baseDeps(t)
	d.EstimateGas = func(ctx context.Context, chainID int64, plan market.Plan) GasEstimate {
		return GasEstimate{
			Err:            errors.New("execution reverted: InsufficientLiquidity"),
			Classification: revert.Classification{Kind: revert.KindContractRevert},
		}
	}
	outcome := Score(context.Background(), d, baseCandidate(), baseChain())
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejPlanNull, outcome.Rejection.Reason)
}

func TestConstructPlanRejectsGasAboveCap(t *testing.T) {
	d := baseDeps(t)
	d.LookupPolicy = func(chainID int64, debtSymbol string) (Policy, bool) {
		p := passingPolicy()
		p.GasCapUSD = decimal.NewFromFloat(0.01)
		return p, true
	}
	outcome := Score(context.Background(), d, baseCandidate(), baseChain())
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejPlanNull, outcome.Rejection.Reason)
}

func TestConstructPlanRejectsNetBelowMin(t *testing.T) {
	d := baseDeps(t)
	d.LookupPolicy = func(chainID int64, debtSymbol string) (Policy, bool) {
		p := passingPolicy()
		p.FloorBps = 100000 // impossibly high bar
		return p, true
	}
	outcome := Score(context.Background(), d, baseCandidate(), baseChain())
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejNetBelowMin, outcome.Rejection.Reason)
}

func TestConstructPlanRejectsPnlMultBelowMin(t *testing.T) {
	d := baseDeps(t)
	d.LookupPolicy = func(chainID int64, debtSymbol string) (Policy, bool) {
		p := passingPolicy()
		p.PnlMultMin = decimal.NewFromInt(1_000_000)
		return p, true
	}
	outcome := Score(context.Background(), d, baseCandidate(), baseChain())
	require.False(t, outcome.IsAccepted())
	assert.Equal(t, market.RejPnlMultBelowMin, outcome.Rejection.Reason)
}

func TestConstructPlanFundsModeWhenExecutorHasBalance(t *testing.T) {
	d := baseDeps(t)
	d.ExecutorDebtBalance = func(ctx context.Context, chainID int64, debtToken common.Address) decimal.Decimal {
		return decimal.NewFromInt(10_000_000000)
	}
	outcome := Score(context.Background(), d, baseCandidate(), baseChain())
	require.True(t, outcome.IsAccepted())
	assert.Equal(t, market.ModeFunds, outcome.Plan.Mode)
}

func TestConstructPlanMorphoRepaySharesClampedToBorrowShares(t *testing.T) {
	d := baseDeps(t)
	c := baseCandidate()
	c.Protocol = market.ProtocolMorphoBlue
	c.Morpho = &market.MorphoMeta{
		MarketID:     [32]byte{7},
		BorrowShares: "400000000", // smaller than repay_raw would imply, so it should clamp
	}

	outcome := Score(context.Background(), d, c, baseChain())
	require.True(t, outcome.IsAccepted())
	assert.True(t, outcome.Plan.MorphoRepayShares.Cmp(big.NewInt(400000000)) <= 0)
	assert.Equal(t, c.Morpho.MarketID, outcome.Plan.MorphoMarketID)
}

func TestConstructPlanSpecExampleHealthyAaveCandidate(t *testing.T) {
	d := baseDeps(t)
	d.QuoteRoutes = func(ctx context.Context, chainID int64, collateral, debt common.Address, amountIn decimal.Decimal) []RouteQuoteResult {
		return []RouteQuoteResult{
			{
				Option:    market.RouteOption{DexID: "uniswap-v3", Kind: market.RouteUniV3, FeeBps: 500},
				AmountOut: decimal.NewFromInt(505_000000),
			},
		}
	}
	d.LookupPolicy = func(chainID int64, debtSymbol string) (Policy, bool) {
		return Policy{
			Enabled:        true,
			CloseFactorBps: 5000,
			BonusBps:       800,
			FloorBps:       50,
			MaxRepayUSD:    decimal.NewFromInt(1_000_000),
			GasCapUSD:      decimal.NewFromInt(100),
			SlippageBps:    50,
			PnlMultMin:     decimal.NewFromFloat(0.1),
		}, true
	}

	outcome := Score(context.Background(), d, baseCandidate(), baseChain())
	require.True(t, outcome.IsAccepted(), "expected accepted plan, got rejection %+v", outcome.Rejection)

	plan := outcome.Plan
	assert.Equal(t, big.NewInt(500_000000), plan.RepayAmount)
	// seize = 540 usd / 2000 usd-per-weth * 1e18 = 0.27e18
	assert.Equal(t, "270000000000000000", plan.SeizeAmount.String())
	assert.True(t, plan.MinProfit.Cmp(big.NewInt(1_500000)) >= 0)
	assert.Equal(t, market.ModeFlash, plan.Mode)
}
