package market

import (
	"github.com/ethereum/go-ethereum/common"
)

// ProtocolKey is the sum type over money-market families the agent understands.
type ProtocolKey string

const (
	ProtocolAaveV3      ProtocolKey = "aavev3"
	ProtocolMorphoBlue  ProtocolKey = "morphoblue"
	ProtocolCompoundV3  ProtocolKey = "compoundv3"
	ProtocolRadiant     ProtocolKey = "radiant"
	ProtocolSeamless    ProtocolKey = "seamless"
)

// SourceTag identifies which ingestion producer emitted a candidate. Carried
// only for logging/metrics — spec.md §4.1 "used only for logging".
type SourceTag string

const (
	SourceSubgraph    SourceTag = "subgraph"
	SourceRealtime    SourceTag = "realtime"
	SourcePredictive  SourceTag = "predictive"
	SourcePolicyRetry SourceTag = "policy_retry"
)

// MorphoMeta carries the Morpho Blue market fivefold and any pre-liquidation
// offer terms filled in by ingest.MorphoPoller's enrichment step
// (preliq.Enrich).
type MorphoMeta struct {
	MarketID      [32]byte
	LoanToken     common.Address
	CollatToken   common.Address
	Oracle        common.Address
	IRM           common.Address
	LLTV          int64 // bps
	BorrowShares  string // arbitrary-precision, kept as decimal string to avoid float loss

	PreLiqOffer *PreLiqOffer // nil unless the pre-liq feature is enabled and an offer exists
}

// PreLiqOffer is the read-only snapshot of a borrower's pre-liquidation authorization.
type PreLiqOffer struct {
	OfferAddress common.Address
	PreLLTV      int64 // bps
	PreLCF1      int64 // bps, close factor at PreLLTV
	PreLCF2      int64 // bps, close factor at LLTV
	PreLIF1      int64 // bps, incentive at PreLLTV
	PreLIF2      int64 // bps, incentive at LLTV
	Oracle       common.Address
	Expiry       int64 // unix seconds
}

// Candidate is a borrower position discovered by ingestion, read-only to the scorer.
type Candidate struct {
	ChainID      int64
	Borrower     common.Address
	Debt         TokenPosition
	Collateral   TokenPosition
	HealthFactor float64 // WAD-derived ratio; < 1.0 is liquidatable
	Protocol     ProtocolKey
	Source       SourceTag
	Morpho       *MorphoMeta // non-nil only for ProtocolMorphoBlue
}

// DedupeKey is the window-dedupe key from spec.md §3's invariants.
type DedupeKey struct {
	ChainID       int64
	Borrower      common.Address
	DebtAddr      common.Address
	CollateralAddr common.Address
}

func (c Candidate) Key() DedupeKey {
	return DedupeKey{
		ChainID:        c.ChainID,
		Borrower:       c.Borrower,
		DebtAddr:       c.Debt.Address,
		CollateralAddr: c.Collateral.Address,
	}
}
