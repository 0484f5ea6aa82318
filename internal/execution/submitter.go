package execution

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/blackhole-labs/liquidationd/internal/aggregator"
	"github.com/blackhole-labs/liquidationd/internal/market"
	"github.com/blackhole-labs/liquidationd/internal/revert"
	"github.com/blackhole-labs/liquidationd/pkg/contractclient"
	liqtypes "github.com/blackhole-labs/liquidationd/pkg/types"
	"github.com/blackhole-labs/liquidationd/pkg/txlistener"
)

// liquidationParams mirrors the Liquidator contract's
// liquidateWithFlash(tuple)/liquidateWithFunds(tuple) argument from
// spec.md §6, packed as a single ABI tuple.
type liquidationParams struct {
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

// QuoteProvider is the swap-quoting dependency the Bundler3 path needs.
// *aggregator.Client satisfies it against the real Odos/1inch endpoints;
// tests substitute a fake.
type QuoteProvider interface {
	Quote(ctx context.Context, chainID int64, sellToken, buyToken, userAddr common.Address, amountIn *big.Int) (*aggregator.Quote, error)
}

// Submitter dispatches an accepted plan by calling the chain's Liquidator
// contract, implementing chainagent.Executor. Nonce serialization follows
// spec.md §5: the nonce read and the send happen inside one critical
// section guarded by NonceLock. A plan carrying a PreLiq hint instead goes
// through the Bundler3 path (spec.md §4.3): submitPreLiquidation builds a
// preLiquidate(...) call wrapped in a multicall and sends it to Bundler3
// directly via HTTPClient, bypassing the Liquidator contract entirely.
type Submitter struct {
	Client    contractclient.Client
	Chain     *market.Chain
	NonceLock *NonceLock
	Listener  *txlistener.TxListener
	Log       *zap.Logger

	// HTTPClient, Bundler3Addr, Bundler3 and Aggregator are only needed by
	// the pre-liquidation path; a Submitter that never handles Morpho
	// pre-liquidation offers can leave them zero.
	HTTPClient   *ethclient.Client
	Bundler3Addr common.Address
	Bundler3     Bundler3Builder
	Aggregator   QuoteProvider
}

// NewSubmitter builds a Submitter bound to one chain's Liquidator contract
// client.
func NewSubmitter(client contractclient.Client, chain *market.Chain, nonceLock *NonceLock, listener *txlistener.TxListener, log *zap.Logger) *Submitter {
	return &Submitter{Client: client, Chain: chain, NonceLock: nonceLock, Listener: listener, Log: log}
}

// Submit dispatches plan through the Bundler3 path when it carries a
// pre-liquidation hint, otherwise through the Liquidator contract's
// liquidateWithFlash/liquidateWithFunds.
func (s *Submitter) Submit(ctx context.Context, plan market.Plan) (string, error) {
	if plan.PreLiq != nil {
		return s.submitPreLiquidation(ctx, plan)
	}
	return s.submitLiquidatorCall(ctx, plan)
}

// submitPreLiquidation implements spec.md §4.3's Bundler3 path: fetch a
// profitable swap quote from the aggregator, build the preLiquidate(...)
// call on the offer contract, wrap it in a single multicall tuple with
// callbackHash=0, and submit that calldata straight to Bundler3.
func (s *Submitter) submitPreLiquidation(ctx context.Context, plan market.Plan) (string, error) {
	if s.Aggregator == nil {
		return "", fmt.Errorf("execution: pre-liquidation submit: no aggregator configured")
	}

	from := s.Chain.ExecutorAddr

	quote, err := s.Aggregator.Quote(ctx, plan.ChainID, plan.SeizeToken, plan.RepayToken, from, plan.PreLiq.CollateralSeized)
	if err != nil {
		return "", fmt.Errorf("execution: no profitable swap quote available: %w", err)
	}
	if plan.RepayAmount != nil && quote.AmountOut.Cmp(plan.RepayAmount) < 0 {
		return "", fmt.Errorf("execution: no profitable swap quote available: quoted output below repay amount")
	}

	routedPlan := plan
	routedPlan.Route.Router = quote.Router

	callbackData, err := s.Bundler3.BuildCallbackData(routedPlan, quote.Calldata, plan.RepayToken, from)
	if err != nil {
		return "", fmt.Errorf("execution: build bundler3 callback data: %w", err)
	}

	preLiquidateData, err := s.Bundler3.BuildPreLiquidateCalldata(plan.Borrower, plan.PreLiq.CollateralSeized, plan.PreLiq.RepayShares, callbackData)
	if err != nil {
		return "", fmt.Errorf("execution: build preLiquidate calldata: %w", err)
	}

	multicallData, err := s.Bundler3.BuildMulticallCalldata([]Bundler3Call{{
		To:           plan.PreLiq.OfferAddress,
		Data:         preLiquidateData,
		Value:        big.NewInt(0),
		SkipRevert:   false,
		CallbackHash: [32]byte{},
	}})
	if err != nil {
		return "", fmt.Errorf("execution: build bundler3 multicall: %w", err)
	}

	if s.HTTPClient == nil {
		return "", fmt.Errorf("execution: pre-liquidation submit: no raw eth client configured")
	}

	unlock := s.NonceLock.Lock(plan.ChainID, from.Hex())
	defer unlock()

	txHash, err := contractclient.SendRaw(ctx, s.HTTPClient, s.Bundler3Addr, multicallData, from, s.Chain.ExecutorKey)
	if err != nil {
		class := revert.Classify(err)
		if class.Kind == revert.KindHFRecovered {
			return "", err
		}
		return "", fmt.Errorf("execution: submit bundler3 multicall: %w", err)
	}

	return s.awaitReceipt(ctx, txHash)
}

// submitLiquidatorCall is the non-pre-liquidation path, unchanged from the
// original liquidateWithFlash/liquidateWithFunds flow.
func (s *Submitter) submitLiquidatorCall(ctx context.Context, plan market.Plan) (string, error) {
	routeData, err := EncodeRouteData(plan)
	if err != nil {
		return "", fmt.Errorf("execution: encode route data: %w", err)
	}

	method := "liquidateWithFlash"
	if plan.Mode == market.ModeFunds {
		method = "liquidateWithFunds"
	}

	params := liquidationParams{
		Borrower:          plan.Borrower,
		DebtAsset:         plan.RepayToken,
		CollateralAsset:   plan.SeizeToken,
		RepayAmount:       plan.RepayAmount,
		MinCollateralOut:  plan.AmountOutMin,
		Router:            plan.Route.Router,
		RouteData:         routeData,
		Deadline:          big.NewInt(plan.Deadline),
		MorphoMarketID:    plan.MorphoMarketID,
		MorphoRepayShares: plan.MorphoRepayShares,
	}
	if params.MorphoRepayShares == nil {
		params.MorphoRepayShares = big.NewInt(0)
	}

	unlock := s.NonceLock.Lock(plan.ChainID, s.Chain.ExecutorAddr.Hex())
	defer unlock()

	from := s.Chain.ExecutorAddr
	txHash, err := s.Client.Send(liqtypes.Standard, nil, &from, s.Chain.ExecutorKey, method, params)
	if err != nil {
		class := revert.Classify(err)
		if class.Kind == revert.KindHFRecovered {
			return "", err
		}
		return "", fmt.Errorf("execution: submit %s: %w", method, err)
	}

	return s.awaitReceipt(ctx, txHash)
}

// awaitReceipt waits for txHash's receipt when a listener is configured,
// shared by both the Liquidator and Bundler3 submission paths.
func (s *Submitter) awaitReceipt(ctx context.Context, txHash common.Hash) (string, error) {
	if s.Listener == nil {
		return txHash.Hex(), nil
	}

	receipt, err := s.Listener.WaitForTransaction(ctx, txHash)
	if err != nil {
		return txHash.Hex(), fmt.Errorf("execution: wait for receipt: %w", err)
	}
	if receipt.Status != 1 {
		return txHash.Hex(), fmt.Errorf("execution: transaction %s reverted on-chain", txHash.Hex())
	}
	return txHash.Hex(), nil
}
