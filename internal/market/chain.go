package market

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
)

// RouterConfig names one DEX router the executor contract is allowed to call,
// along with the extra data a SolidlyV2-style router needs (see REDESIGN
// FLAGS / open question in spec.md §9: the factory can never be derived
// from the router address and must be carried separately).
type RouterConfig struct {
	DexID   string
	Router  common.Address
	Factory common.Address // SolidlyV2 only; zero for UniV3/UniV2
	Quoter  common.Address // UniV3 only; zero for UniV2/SolidlyV2, which quote off the router itself
}

// Chain is the per-chain descriptor assembled once at boot from YAML config.
type Chain struct {
	ChainID       int64
	Name          string
	RPCURL        string
	WSURLs        []string // ordered fallback list
	Liquidator    common.Address
	ExecutorAddr  common.Address
	ExecutorKey   *ecdsa.PrivateKey
	Tokens        map[common.Address]*Token // keyed by address
	TokensBySym   map[string]*Token
	Routers       []RouterConfig
	SequencerFeed common.Address // zero if chain has no sequencer (L1)
	MarketAddr    common.Address // Aave pool-address-provider or Morpho core
	Protocol      ProtocolKey    // which family MarketAddr resolves as, for on-chain HF reads

	// PreLiq controls whether pre-liquidation offers are scored at all.
	PreLiqEnabled          bool
	PreLiqFactory          common.Address
	PreLiqOfferInitCodeHash [32]byte // spec.md §9 open question: must be the real hash

	// Bundler3 and WrappedNative back the §4.3 pre-liquidation submission
	// path; zero Bundler3 disables it even when PreLiqEnabled is set.
	Bundler3      common.Address
	WrappedNative common.Address

	Risk RiskOverrides
}

// RiskOverrides lets one chain deviate from the global default thresholds.
type RiskOverrides struct {
	HFMaxDefault        float64
	GapCapBpsDefault    int64
	MaxRepayUSD         float64
	GasCapUSD           float64
	FloorBps            int64
	PnlMultipleMin      float64
	MinNetUSD           float64
	SlippageBps         int64
	MaxAttemptsPerHour  int
	ThrottleBypassHFDrop float64
	FailRateCap         float64 // spec.md §4.3 "errors/attempts > fail_rate_cap"

	// MaxOracleDivergenceBps caps |dex_ratio - oracle_ratio| / oracle_ratio
	// for a Morpho pre-liquidation offer's own oracle (spec.md §4.4), in
	// addition to gate 8's general oracle-vs-DEX gap check. Zero disables
	// the check.
	MaxOracleDivergenceBps int64
}

// TokenByAddress resolves a token descriptor, returning nil if unknown — callers
// treat an unknown token as a fatal-skip per spec.md §7.
func (c *Chain) TokenByAddress(addr common.Address) *Token {
	if c.Tokens == nil {
		return nil
	}
	return c.Tokens[addr]
}
