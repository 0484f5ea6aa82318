package execution

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/blackhole-labs/liquidationd/internal/market"
	"github.com/blackhole-labs/liquidationd/internal/uniswap"
)

// EncodeRouteData builds the executor contract's opaque `routeData` bytes
// for a plan's winning route, branching on Kind the same way the executor
// contract itself does (spec.md §9's route-option sum type): a UniV3 path
// for single/multi-hop swaps (from the plan's seize token to its repay
// token), an ABI-encoded token array for UniV2/Solidly getAmountsOut-style
// routers.
func EncodeRouteData(plan market.Plan) ([]byte, error) {
	route := plan.Route
	switch route.Kind {
	case market.RouteUniV3:
		return uniswap.EncodePath([]common.Address{plan.SeizeToken, plan.RepayToken}, []uint32{route.FeeBps})
	case market.RouteUniV3Multi:
		return uniswap.EncodePath(route.Tokens, route.Fees)
	case market.RouteUniV2:
		if len(route.Tokens) >= 2 {
			return encodeAddressArray(route.Tokens)
		}
		return encodeAddressArray([]common.Address{plan.SeizeToken, plan.RepayToken})
	case market.RouteSolidlyV2:
		return encodeSolidlyHops(route, plan.SeizeToken, plan.RepayToken)
	default:
		return nil, fmt.Errorf("execution: unknown route kind %v", route.Kind)
	}
}

func encodeAddressArray(tokens []common.Address) ([]byte, error) {
	arrType, err := abi.NewType("address[]", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: arrType}}
	return args.Pack(tokens)
}

// encodeSolidlyHops packs Solidly V2's getAmountsOut(amountIn,
// (from,to,stable,factory)[]) hop array, carrying the per-route factory
// spec.md §9 says can never be defaulted from the router address. Falls
// back to a single (seizeToken -> repayToken) hop when the route has no
// intermediate hops configured.
func encodeSolidlyHops(route market.RouteOption, seizeToken, repayToken common.Address) ([]byte, error) {
	hopType, err := abi.NewType("tuple(address,address,bool,address)[]", "", nil)
	if err != nil {
		return nil, err
	}

	type hop struct {
		From    common.Address
		To      common.Address
		Stable  bool
		Factory common.Address
	}

	path := route.Tokens
	if len(path) < 2 {
		path = []common.Address{seizeToken, repayToken}
	}

	hops := make([]hop, 0, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		hops = append(hops, hop{From: path[i], To: path[i+1], Stable: route.Stable, Factory: route.Factory})
	}

	args := abi.Arguments{{Type: hopType}}
	return args.Pack(hops)
}
