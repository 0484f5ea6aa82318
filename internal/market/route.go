package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RouteKind is the sum type over swap-venue shapes the executor contract
// understands (spec.md §3 "Quote edge / route option").
type RouteKind int

const (
	RouteUniV3 RouteKind = iota
	RouteUniV3Multi
	RouteUniV2
	RouteSolidlyV2
)

func (k RouteKind) String() string {
	switch k {
	case RouteUniV3:
		return "UniV3"
	case RouteUniV3Multi:
		return "UniV3Multi"
	case RouteUniV2:
		return "UniV2"
	case RouteSolidlyV2:
		return "SolidlyV2"
	default:
		return "unknown"
	}
}

// RouteOption is one enumerated swap path a configured DEX offers for a
// token pair. Exactly one of the kind-specific fields is meaningful,
// selected by Kind — Go's nearest idiom to a tagged union for this shape
// (the alternative, one interface type per kind, would force every call
// site into a type switch anyway; this is the same trade-off the executor
// contract itself makes by branching on an enum byte).
type RouteOption struct {
	DexID  string
	Kind   RouteKind
	Router common.Address

	// RouteUniV3: single pool, fee tier in hundredths of a bip (e.g. 3000 = 0.3%).
	FeeBps uint32

	// RouteUniV3Multi: encoded hop list, token(20B)||fee(3B) repeated, see
	// internal/uniswap.EncodePath.
	Tokens []common.Address
	Fees   []uint32

	// RouteSolidlyV2: stable/volatile pair plus the factory that minted it
	// (spec.md §9 open question — never defaulted from Router).
	Stable  bool
	Factory common.Address
}

// Fingerprint produces a cache key component stable across equal route sets
// regardless of slice pointer identity — used by internal/pricecache's
// route cache key, which is "(chain, collateral, debt, sorted option
// fingerprints)" per spec.md §4.4.
func (r RouteOption) Fingerprint() string {
	s := r.Kind.String() + "|" + r.DexID + "|" + r.Router.Hex()
	switch r.Kind {
	case RouteUniV3:
		s += "|" + big.NewInt(int64(r.FeeBps)).String()
	case RouteUniV3Multi:
		for i, t := range r.Tokens {
			s += "|" + t.Hex()
			if i < len(r.Fees) {
				s += ":" + big.NewInt(int64(r.Fees[i])).String()
			}
		}
	case RouteSolidlyV2:
		s += "|stable=" + boolStr(r.Stable) + "|factory=" + r.Factory.Hex()
	}
	return s
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
