package wiring

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/blackhole-labs/liquidationd/internal/execution"
	"github.com/blackhole-labs/liquidationd/internal/market"
	"github.com/blackhole-labs/liquidationd/internal/revert"
	"github.com/blackhole-labs/liquidationd/internal/scorer"
)

// liquidationParamsTuple mirrors internal/execution's unexported
// liquidationParams. Duplicated here rather than exported across packages
// because the ABI tuple shape is a dry-run-only detail: the scorer only
// ever sees a market.Plan, and internal/execution.Submitter repacks it
// independently when the plan is actually sent.
type liquidationParamsTuple struct {
	Borrower          common.Address
	DebtAsset         common.Address
	CollateralAsset   common.Address
	RepayAmount       *big.Int
	MinCollateralOut  *big.Int
	Router            common.Address
	RouteData         []byte
	Deadline          *big.Int
	MorphoMarketID    [32]byte
	MorphoRepayShares *big.Int
}

// estimateGas dry-run gas-estimates the liquidateWithFlash/liquidateWithFunds
// call a plan would submit, implementing scorer.Deps.EstimateGas (gate 12).
// It never signs or sends anything — eth_estimateGas against the executor's
// own address is enough to price and classify the call; internal/execution.
// Submitter repeats an equivalent estimate when the plan is actually
// dispatched.
func (rt *Runtime) estimateGas(ctx context.Context, chain *market.Chain, nativeUSD decimal.Decimal, plan market.Plan) scorer.GasEstimate {
	method := "liquidateWithFlash"
	if plan.Mode == market.ModeFunds {
		method = "liquidateWithFunds"
	}

	routeData, err := execution.EncodeRouteData(plan)
	if err != nil {
		return scorer.GasEstimate{Err: err}
	}

	params := liquidationParamsTuple{
		Borrower:          plan.Borrower,
		DebtAsset:         plan.RepayToken,
		CollateralAsset:   plan.SeizeToken,
		RepayAmount:       plan.RepayAmount,
		MinCollateralOut:  plan.AmountOutMin,
		Router:            plan.Route.Router,
		RouteData:         routeData,
		Deadline:          big.NewInt(plan.Deadline),
		MorphoMarketID:    plan.MorphoMarketID,
		MorphoRepayShares: orZero(plan.MorphoRepayShares),
	}

	data, err := rt.liquidatorABIParsed.Pack(method, params)
	if err != nil {
		return scorer.GasEstimate{Err: err}
	}

	eth := rt.Pool.HTTP()
	from := chain.ExecutorAddr
	to := chain.Liquidator

	gasPrice, err := eth.SuggestGasPrice(ctx)
	if err != nil {
		return scorer.GasEstimate{Err: err}
	}

	gasUnits, err := eth.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data, GasPrice: gasPrice})
	if err != nil {
		return scorer.GasEstimate{Classification: revert.Classify(err), Err: err}
	}

	gasPriceDec := decimal.NewFromBigInt(gasPrice, 0)
	gasUSD := decimal.NewFromInt(int64(gasUnits)).Mul(gasPriceDec).Div(decimal.New(1, 18)).Mul(nativeUSD)

	return scorer.GasEstimate{
		GasUnits:    gasUnits,
		GasPriceWei: gasPriceDec,
		GasUSD:      gasUSD,
	}
}

func orZero(b *big.Int) *big.Int {
	if b == nil {
		return big.NewInt(0)
	}
	return b
}
