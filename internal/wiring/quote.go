package wiring

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/blackhole-labs/liquidationd/internal/market"
	"github.com/blackhole-labs/liquidationd/pkg/contractclient"
)

// uniV3DefaultFeeTiers is tried in order for every router configured with a
// Quoter (RouterConfig carries no fee tier); the first tier that returns a
// non-error, positive quote wins.
var uniV3DefaultFeeTiers = []uint32{500, 3000, 10000}

// quoteRoutes enumerates chain's configured routers for the collateral/debt
// pair and quotes each on-chain, implementing scorer.Deps.QuoteRoutes (gate
// 12). A router that errors (no liquidity, revert, RPC failure) is simply
// omitted from the result rather than failing the whole candidate — the
// same "skip this route, keep scoring" posture constructPlan already
// assumes of its caller.
func (rt *Runtime) quoteRoutes(ctx context.Context, chain *market.Chain, collateral, debt common.Address, amountIn decimal.Decimal) []scorerRouteQuote {
	amountInt := amountIn.BigInt()
	if amountInt.Sign() <= 0 {
		return nil
	}

	var out []scorerRouteQuote
	for _, rc := range chain.Routers {
		switch {
		case rc.Quoter != (common.Address{}):
			if q, ok := rt.quoteUniV3(ctx, rc, collateral, debt, amountInt); ok {
				out = append(out, q)
			}
		case rc.Router != (common.Address{}):
			if q, ok := rt.quoteUniV2Style(ctx, rc, collateral, debt, amountInt); ok {
				out = append(out, q)
			}
		}
	}
	return out
}

// scorerRouteQuote mirrors scorer.RouteQuoteResult for the quote helpers;
// wiring.go converts it at the Deps boundary.
type scorerRouteQuote struct {
	Option    market.RouteOption
	AmountOut decimal.Decimal
}

func (rt *Runtime) quoteUniV3(ctx context.Context, rc market.RouterConfig, collateral, debt common.Address, amountIn *big.Int) (scorerRouteQuote, bool) {
	client, ok := rt.quoterClient(rc.Quoter)
	if !ok {
		return scorerRouteQuote{}, false
	}

	for _, fee := range uniV3DefaultFeeTiers {
		out, err := client.Call(nil, "quoteExactInputSingle", collateral, debt, fee, amountIn, big.NewInt(0))
		if err != nil {
			continue
		}
		amountOut, ok := out[0].(*big.Int)
		if !ok || amountOut.Sign() <= 0 {
			continue
		}
		return scorerRouteQuote{
			Option: market.RouteOption{
				DexID:  rc.DexID,
				Kind:   market.RouteUniV3,
				Router: rc.Router,
				FeeBps: fee,
			},
			AmountOut: decimal.NewFromBigInt(amountOut, 0),
		}, true
	}
	return scorerRouteQuote{}, false
}

func (rt *Runtime) quoteUniV2Style(ctx context.Context, rc market.RouterConfig, collateral, debt common.Address, amountIn *big.Int) (scorerRouteQuote, bool) {
	client, ok := rt.routerClient(rc.Router)
	if !ok {
		return scorerRouteQuote{}, false
	}

	path := []common.Address{collateral, debt}
	out, err := client.Call(nil, "getAmountsOut", amountIn, path)
	if err != nil {
		return scorerRouteQuote{}, false
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return scorerRouteQuote{}, false
	}
	amountOut := amounts[len(amounts)-1]
	if amountOut.Sign() <= 0 {
		return scorerRouteQuote{}, false
	}

	kind := market.RouteUniV2
	if rc.Factory != (common.Address{}) {
		kind = market.RouteSolidlyV2
	}

	return scorerRouteQuote{
		Option: market.RouteOption{
			DexID:   rc.DexID,
			Kind:    kind,
			Router:  rc.Router,
			Factory: rc.Factory,
			Stable:  false, // §9 open question: stability isn't known without a per-pair lookup; volatile is the conservative default
		},
		AmountOut: decimal.NewFromBigInt(amountOut, 0),
	}, true
}

func (rt *Runtime) quoterClient(addr common.Address) (contractclient.Client, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	client, ok := rt.quoterClients[addr]
	if ok {
		return client, true
	}
	parsed, err := abiJSON(uniV3QuoterABI)
	if err != nil {
		rt.log.Error("wiring: parse quoter abi", zap.Error(err))
		return nil, false
	}
	client = contractclient.NewContractClient(rt.Pool.HTTP(), addr, parsed)
	rt.quoterClients[addr] = client
	return client, true
}

func (rt *Runtime) routerClient(addr common.Address) (contractclient.Client, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	client, ok := rt.routerClients[addr]
	if ok {
		return client, true
	}
	parsed, err := abiJSON(uniV2RouterABI)
	if err != nil {
		rt.log.Error("wiring: parse router abi", zap.Error(err))
		return nil, false
	}
	client = contractclient.NewContractClient(rt.Pool.HTTP(), addr, parsed)
	rt.routerClients[addr] = client
	return client, true
}

// erc20Client lazily builds and caches a balanceOf-only Client for token.
func (rt *Runtime) erc20Client(token common.Address) (contractclient.Client, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	client, ok := rt.erc20Clients[token]
	if ok {
		return client, true
	}
	parsed, err := abiJSON(erc20ABI)
	if err != nil {
		rt.log.Error("wiring: parse erc20 abi", zap.Error(err))
		return nil, false
	}
	client = contractclient.NewContractClient(rt.Pool.HTTP(), token, parsed)
	rt.erc20Clients[token] = client
	return client, true
}

// registerOracleFeed lazily registers token's price feed with the shared
// OracleCache the first time it's priced.
func (rt *Runtime) registerOracleFeed(feed common.Address) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, ok := rt.registeredFeeds[feed]; ok {
		return
	}
	parsed, err := abiJSON(aggregatorV3ABI)
	if err != nil {
		rt.log.Error("wiring: parse aggregator abi", zap.Error(err))
		return
	}
	client := contractclient.NewContractClient(rt.Pool.HTTP(), feed, parsed)
	rt.OracleCache.Register(feed, client, rt.log)
	rt.registeredFeeds[feed] = struct{}{}
}

