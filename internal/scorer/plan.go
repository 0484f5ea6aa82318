package scorer

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/blackhole-labs/liquidationd/internal/market"
	"github.com/blackhole-labs/liquidationd/internal/revert"
)

var (
	bps10000 = decimal.NewFromInt(10_000)
)

// constructPlan implements gate 12's plan-construction algorithm: clamp the
// repay amount to the policy's max, compute the seize amount at the
// configured bonus, quote every route, gas-estimate the survivors, and pick
// the route with the greatest net USD.
func constructPlan(
	ctx context.Context,
	d Deps,
	c market.Candidate,
	chain *market.Chain,
	policy Policy,
	debtPrice, collPrice PriceQuote,
	healthFactor, hfMax float64,
	precommitEligible bool,
) market.ScoreOutcome {
	debtPow := pow10(debtPrice.Decimals)
	collPow := pow10(collPrice.Decimals)

	debtAmount := decimal.NewFromBigInt(c.Debt.Amount, 0)
	repayRaw := debtAmount.Mul(decimal.NewFromInt(policy.CloseFactorBps)).Div(bps10000).Floor()
	if repayRaw.Sign() <= 0 {
		return market.Rejected(market.RejCloseFactorNonpositive, "", c)
	}

	repayUSD := repayRaw.Div(debtPow).Mul(debtPrice.PriceUSD)

	if !policy.MaxRepayUSD.IsZero() && repayUSD.GreaterThan(policy.MaxRepayUSD) {
		repayRaw = policy.MaxRepayUSD.Div(debtPrice.PriceUSD).Mul(debtPow).Floor()
		repayUSD = repayRaw.Div(debtPow).Mul(debtPrice.PriceUSD)
	}

	bonusMult := decimal.NewFromInt(1).Add(decimal.NewFromInt(policy.BonusBps).Div(bps10000))
	seizeUSD := repayUSD.Mul(bonusMult)
	seizeAmount := seizeUSD.Div(collPrice.PriceUSD).Mul(collPow).Floor()
	collateralAmount := decimal.NewFromBigInt(c.Collateral.Amount, 0)
	if seizeAmount.GreaterThan(collateralAmount) {
		seizeAmount = collateralAmount
	}

	minProfit := repayRaw.Mul(decimal.NewFromInt(policy.FloorBps)).Div(bps10000).Ceil()
	if minProfit.Sign() <= 0 {
		return market.Rejected(market.RejMinProfitZero, "", c)
	}

	deadline := d.NowUnix() + 300

	var morphoRepayShares decimal.Decimal
	var morphoMarketID [32]byte
	if c.Protocol == market.ProtocolMorphoBlue && c.Morpho != nil {
		morphoMarketID = c.Morpho.MarketID
		borrowShares, err := decimal.NewFromString(c.Morpho.BorrowShares)
		if err == nil && !debtAmount.IsZero() {
			morphoRepayShares = repayRaw.Mul(borrowShares).Div(debtAmount).Ceil()
			if morphoRepayShares.GreaterThan(borrowShares) {
				morphoRepayShares = borrowShares
			}
		}
	}

	routes := d.QuoteRoutes(ctx, c.ChainID, c.Collateral.Address, c.Debt.Address, seizeAmount)

	type viable struct {
		route        market.RouteOption
		amountOutMin decimal.Decimal
		netUSD       decimal.Decimal
		gasUSD       decimal.Decimal
		estNetBps    decimal.Decimal
	}

	var best *viable
	for _, rq := range routes {
		amountOutMin := rq.AmountOut.Mul(bps10000.Sub(decimal.NewFromInt(policy.SlippageBps))).Div(bps10000).Floor()

		tentative := buildPlanSkeleton(c, chain, repayRaw, seizeAmount, amountOutMin, rq.Option, deadline, morphoMarketID, morphoRepayShares)

		estimate := d.EstimateGas(ctx, c.ChainID, *tentative)
		if estimate.Err != nil {
			class := estimate.Classification
			if class == (revert.Classification{}) {
				class = revert.Classify(estimate.Err)
			}
			if class.Kind == revert.KindHFRecovered {
				return market.Rejected(market.RejHFRecovered, class.ShortMessage, c)
			}
			// Any other revert or transport failure disqualifies this route
			// only; the next quoted route may still be viable.
			continue
		}

		if !policy.GasCapUSD.IsZero() && estimate.GasUSD.GreaterThan(policy.GasCapUSD) {
			continue
		}

		proceedsUSD := rq.AmountOut.Div(debtPow).Mul(debtPrice.PriceUSD)
		netUSD := proceedsUSD.Sub(repayUSD).Sub(estimate.GasUSD)
		estNetBps := netUSD.Div(repayUSD).Mul(bps10000)

		if best == nil || netUSD.GreaterThan(best.netUSD) {
			best = &viable{
				route:        rq.Option,
				amountOutMin: amountOutMin,
				netUSD:       netUSD,
				gasUSD:       estimate.GasUSD,
				estNetBps:    estNetBps,
			}
		}
	}

	if best == nil {
		return market.Rejected(market.RejPlanNull, "", c)
	}

	if best.estNetBps.LessThan(decimal.NewFromInt(policy.FloorBps)) {
		return market.Rejected(market.RejNetBelowMin, "", c)
	}

	if !policy.PnlMultMin.IsZero() && !best.gasUSD.IsZero() {
		pnlPerGas := best.netUSD.Div(best.gasUSD)
		if pnlPerGas.LessThan(policy.PnlMultMin) {
			return market.Rejected(market.RejPnlMultBelowMin, "", c)
		}
	}

	precommit := precommitEligible && healthFactor >= hfMax

	debtBalance := d.ExecutorDebtBalance(ctx, c.ChainID, c.Debt.Address)
	mode := market.ModeFlash
	if debtBalance.GreaterThanOrEqual(repayRaw) {
		mode = market.ModeFunds
	}

	plan := buildPlanSkeleton(c, chain, repayRaw, seizeAmount, best.amountOutMin, best.route, deadline, morphoMarketID, morphoRepayShares)
	plan.RepayUSD = repayUSD
	plan.EstNetUSD = best.netUSD
	plan.GasUSD = best.gasUSD
	plan.MinProfit = decimalToBigInt(minProfit)
	plan.EstNetBps = best.estNetBps.IntPart()
	plan.Mode = mode
	plan.Precommit = precommit

	if c.Protocol == market.ProtocolMorphoBlue && c.Morpho != nil && c.Morpho.PreLiqOffer != nil {
		plan.PreLiq = &market.PreLiqExecHint{
			OfferAddress:     c.Morpho.PreLiqOffer.OfferAddress,
			CollateralSeized: decimalToBigInt(seizeAmount),
			RepayShares:      decimalToBigInt(morphoRepayShares),
		}
	}

	return market.Accepted(plan, c)
}

func buildPlanSkeleton(
	c market.Candidate,
	chain *market.Chain,
	repayRaw, seizeAmount, amountOutMin decimal.Decimal,
	route market.RouteOption,
	deadline int64,
	morphoMarketID [32]byte,
	morphoRepayShares decimal.Decimal,
) *market.Plan {
	return &market.Plan{
		Protocol:    c.Protocol,
		ChainID:     c.ChainID,
		Borrower:    c.Borrower,
		RepayToken:  c.Debt.Address,
		RepayAmount: decimalToBigInt(repayRaw),
		SeizeToken:  c.Collateral.Address,
		SeizeAmount: decimalToBigInt(seizeAmount),
		Route:       route,
		AmountOutMin: decimalToBigInt(amountOutMin),
		Deadline:     deadline,

		MorphoMarketID:    morphoMarketID,
		MorphoRepayShares: decimalToBigInt(morphoRepayShares),
	}
}

func pow10(decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil), 0)
}

func decimalToBigInt(d decimal.Decimal) *big.Int {
	if d.IsZero() {
		return big.NewInt(0)
	}
	return d.BigInt()
}
