package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ExecMode selects whether the liquidator contract should flash-borrow the
// repay asset or use its own inventory (spec.md §4.2 "mode" field).
type ExecMode string

const (
	ModeFlash ExecMode = "flash"
	ModeFunds ExecMode = "funds"
)

// Plan is a fully-priced, gas-estimated intent to submit one liquidation
// transaction (spec.md §3 "Plan").
type Plan struct {
	Protocol ProtocolKey
	ChainID  int64
	Borrower common.Address

	RepayToken common.Address
	RepayAmount *big.Int
	RepayUSD    decimal.Decimal

	SeizeToken  common.Address
	SeizeAmount *big.Int

	Route        RouteOption
	AmountOutMin *big.Int

	EstNetUSD   decimal.Decimal
	GasUSD      decimal.Decimal
	MinProfit   *big.Int
	EstNetBps   int64

	Mode      ExecMode
	Precommit bool
	Deadline  int64

	// Morpho-only
	MorphoMarketID   [32]byte
	MorphoRepayShares *big.Int

	// Pre-liquidation-only
	PreLiq *PreLiqExecHint
}

// PreLiqExecHint carries the extra fields the Bundler3 path needs.
type PreLiqExecHint struct {
	OfferAddress     common.Address
	CollateralSeized *big.Int
	RepayShares      *big.Int
}

// RejectionReason is a compact, stable reason code used for metrics and audit
// rows (spec.md §4.2 "typed rejection with a compact reason code").
type RejectionReason string

const (
	RejChainDisabled          RejectionReason = "chain-disabled"
	RejProtocolUnresolvable   RejectionReason = "protocol-unresolvable"
	RejAssetDenylisted        RejectionReason = "asset-denylisted"
	RejNoPolicy               RejectionReason = "no-policy"
	RejZeroExposure           RejectionReason = "zero-exposure"
	RejMarketDisabled         RejectionReason = "market-disabled"
	RejSequencerDown          RejectionReason = "sequencer-down"
	RejThrottled              RejectionReason = "throttled"
	RejPriceUnavailable       RejectionReason = "price-unavailable"
	RejPriceVolatile          RejectionReason = "price-volatility-rejected"
	RejGapAboveCap            RejectionReason = "gap-above-cap"
	RejHFMissing              RejectionReason = "hf-missing"
	RejHFAboveOne             RejectionReason = "hf-above-one"
	RejHFAboveMax             RejectionReason = "hf-above-max"
	RejOfferExpired           RejectionReason = "offer-expired"
	RejIncentiveTooLow        RejectionReason = "incentive-too-low"
	RejCloseFactorNonpositive RejectionReason = "close-factor-nonpositive"
	RejPlanNull               RejectionReason = "plan-null"
	RejNetBelowMin            RejectionReason = "net-below-min"
	RejPnlMultBelowMin        RejectionReason = "pnl-mult-below-min"
	RejGasCostTooHigh         RejectionReason = "gas-cost-too-high"
	RejMinProfitZero          RejectionReason = "min-profit-zero"
	RejContractRevert         RejectionReason = "contract-revert"
	RejHFRecovered            RejectionReason = "hf-recovered"
)

// Rejection is the "Rejection" half of the scorer's sum-type outcome.
type Rejection struct {
	Reason RejectionReason
	Detail string
}

func (r Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return string(r.Reason) + ": " + r.Detail
}

// ScoreOutcome is the sum type `Plan | Rejection` from spec.md §9's
// "dynamic typing → tagged variants" directive. Exactly one of Plan/Rejection
// is non-nil.
type ScoreOutcome struct {
	Plan       *Plan
	Rejection  *Rejection
	InputCandidate Candidate
}

func Accepted(p *Plan, c Candidate) ScoreOutcome {
	return ScoreOutcome{Plan: p, InputCandidate: c}
}

func Rejected(reason RejectionReason, detail string, c Candidate) ScoreOutcome {
	return ScoreOutcome{Rejection: &Rejection{Reason: reason, Detail: detail}, InputCandidate: c}
}

func (o ScoreOutcome) IsAccepted() bool { return o.Plan != nil }
