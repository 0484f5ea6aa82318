package scorer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/blackhole-labs/liquidationd/internal/market"
	"github.com/blackhole-labs/liquidationd/internal/preliq"
)

// Score applies the ordered gate cascade of SPEC_FULL.md §4.2 to one
// candidate, returning either a constructed Plan or a typed Rejection.
func Score(ctx context.Context, d Deps, c market.Candidate, chain *market.Chain) market.ScoreOutcome {
	// Gate 1: chain enabled, protocol adapter resolvable.
	if chain == nil {
		return market.Rejected(market.RejChainDisabled, "", c)
	}
	if !protocolResolvable(c.Protocol) {
		return market.Rejected(market.RejProtocolUnresolvable, string(c.Protocol), c)
	}

	// Gate 2: policy lookup + denylist.
	policy, ok := d.LookupPolicy(c.ChainID, c.Debt.Symbol)
	if !ok || !policy.Enabled {
		return market.Rejected(market.RejNoPolicy, c.Debt.Symbol, c)
	}
	if d.IsDenylisted(c.ChainID, c.Debt.Symbol) || d.IsDenylisted(c.ChainID, c.Collateral.Symbol) {
		return market.Rejected(market.RejAssetDenylisted, c.Debt.Symbol+"/"+c.Collateral.Symbol, c)
	}

	// Gate 3: zero exposure.
	if c.Debt.IsZero() || c.Collateral.IsZero() {
		return market.Rejected(market.RejZeroExposure, "", c)
	}

	// Gate 4: market enabled.
	if !d.MarketEnabled(c.ChainID, c.Protocol, c.Debt.Symbol, c.Collateral.Symbol) {
		return market.Rejected(market.RejMarketDisabled, c.Debt.Symbol+"/"+c.Collateral.Symbol, c)
	}

	// Gate 5: sequencer uptime.
	seq, err := d.SequencerStatus(ctx, c.ChainID)
	if err != nil || !seq.OK {
		reason := "unavailable"
		if seq.Reason != "" {
			reason = seq.Reason
		}
		return market.Rejected(market.RejSequencerDown, reason, c)
	}

	// Gate 6: throttle.
	if !d.ThrottleAllow(ctx, c.ChainID, c.Borrower, c.HealthFactor, chain.Risk.ThrottleBypassHFDrop) {
		return market.Rejected(market.RejThrottled, "", c)
	}

	// Gate 7: pricing.
	debtPrice, err := d.PriceUSD(ctx, c.ChainID, c.Debt.Address)
	if err != nil {
		return market.Rejected(market.RejPriceUnavailable, c.Debt.Symbol, c)
	}
	collPrice, err := d.PriceUSD(ctx, c.ChainID, c.Collateral.Address)
	if err != nil {
		return market.Rejected(market.RejPriceUnavailable, c.Collateral.Symbol, c)
	}

	// Gate 8: oracle-vs-DEX gap.
	gapBps, err := d.OracleDexGapBps(ctx, c.ChainID, c.Collateral.Address, c.Debt.Address)
	if err != nil {
		return market.Rejected(market.RejPriceUnavailable, "gap", c)
	}

	// Gate 9: adaptive thresholds.
	assetKey := c.Debt.Symbol + "/" + c.Collateral.Symbol
	hfMax, gapCapBps := d.AdaptiveThresholds(ctx, c.ChainID, assetKey, chain.Risk.HFMaxDefault, float64(chain.Risk.GapCapBpsDefault), gapBps)
	if gapBps > gapCapBps {
		return market.Rejected(market.RejGapAboveCap, "", c)
	}

	// §4.5 precommit eligibility, needed by gate 10's HF exception and by
	// the plan-construction precommit flag.
	precommitEligible := d.PrecommitEligible(ctx, c.ChainID, c.Debt.Address, gapBps, c.HealthFactor, hfMax)

	// Gate 10: on-chain health factor.
	account, err := d.OnChainHF(ctx, c.ChainID, c.Borrower)
	if err != nil || account.Missing {
		return market.Rejected(market.RejHFMissing, "", c)
	}
	if account.HealthFactor >= 1 && !precommitEligible {
		return market.Rejected(market.RejHFAboveOne, "", c)
	}
	if account.HealthFactor >= hfMax && !precommitEligible {
		return market.Rejected(market.RejHFAboveMax, "", c)
	}

	// Gate 11: pre-liquidation validation (Morpho only).
	if c.Protocol == market.ProtocolMorphoBlue && c.Morpho != nil && c.Morpho.PreLiqOffer != nil {
		offer := c.Morpho.PreLiqOffer
		if offer.Expiry > 0 && d.NowUnix() > offer.Expiry {
			return market.Rejected(market.RejOfferExpired, "", c)
		}

		params := preliq.OfferParams{
			PreLLTV: bpsToRatio(offer.PreLLTV),
			PreLCF1: bpsToRatio(offer.PreLCF1),
			PreLCF2: bpsToRatio(offer.PreLCF2),
			PreLIF1: bpsToRatio(offer.PreLIF1),
			PreLIF2: bpsToRatio(offer.PreLIF2),
			Oracle:  offer.Oracle,
			Expiry:  offer.Expiry,
		}
		interp := preliq.Interpolate(params, decimal.NewFromFloat(account.HealthFactor))

		const minIncentiveBps = 150
		if interp.IncentiveBps.LessThan(decimal.NewFromInt(minIncentiveBps)) {
			detail := fmt.Sprintf("%s bps < %d bps", interp.IncentiveBps.StringFixed(0), minIncentiveBps)
			return market.Rejected(market.RejIncentiveTooLow, detail, c)
		}
		if interp.CloseFactor.LessThanOrEqual(decimal.Zero) || interp.CloseFactor.GreaterThan(decimal.NewFromInt(1)) {
			return market.Rejected(market.RejCloseFactorNonpositive, interp.CloseFactor.String(), c)
		}

		if chain.Risk.MaxOracleDivergenceBps > 0 && offer.Oracle != (common.Address{}) {
			divergenceBps, err := d.MorphoOracleDivergenceBps(ctx, c.ChainID, offer.Oracle, c.Collateral.Address, c.Debt.Address)
			if err != nil {
				return market.Rejected(market.RejPriceUnavailable, "morpho-oracle", c)
			}
			if divergenceBps > float64(chain.Risk.MaxOracleDivergenceBps) {
				return market.Rejected(market.RejGapAboveCap, "morpho-oracle-divergence", c)
			}
		}
	}

	// Gate 12: plan construction.
	return constructPlan(ctx, d, c, chain, policy, debtPrice, collPrice, account.HealthFactor, hfMax, precommitEligible)
}

// bpsToRatio inverts preliq.Enrich's toBps conversion so gate 11 can feed a
// market.PreLiqOffer's bps fields back into preliq.Interpolate, which takes
// ratio-scaled decimals.
func bpsToRatio(bps int64) decimal.Decimal {
	return decimal.New(bps, -4)
}

func protocolResolvable(p market.ProtocolKey) bool {
	switch p {
	case market.ProtocolAaveV3, market.ProtocolMorphoBlue, market.ProtocolCompoundV3, market.ProtocolRadiant, market.ProtocolSeamless:
		return true
	default:
		return false
	}
}
