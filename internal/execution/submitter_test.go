package execution

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/blackhole-labs/liquidationd/internal/aggregator"
	"github.com/blackhole-labs/liquidationd/internal/market"
	liqtypes "github.com/blackhole-labs/liquidationd/pkg/types"
)

type fakeContractClient struct {
	lastMethod string
	lastArgs   []interface{}
	sendHash   common.Hash
	sendErr    error
}

func (f *fakeContractClient) ContractAddress() common.Address { return common.Address{} }
func (f *fakeContractClient) Abi() abi.ABI                     { return abi.ABI{} }
func (f *fakeContractClient) Call(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	return nil, nil
}
func (f *fakeContractClient) Send(mode liqtypes.SendMode, gasLimit *uint64, from *common.Address, key *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
	f.lastMethod = method
	f.lastArgs = args
	return f.sendHash, f.sendErr
}
func (f *fakeContractClient) TransactionData(txHash common.Hash) ([]byte, error) { return nil, nil }
func (f *fakeContractClient) DecodeTransaction(data []byte) (map[string]interface{}, error) {
	return nil, nil
}
func (f *fakeContractClient) ParseReceipt(receipt *liqtypes.TxReceipt) (string, error) {
	return "", nil
}

func testSubmitterChain() *market.Chain {
	return &market.Chain{
		ChainID:      42161,
		ExecutorAddr: common.HexToAddress("0xEXEC"),
	}
}

func TestSubmitterUsesFlashModeMethod(t *testing.T) {
	client := &fakeContractClient{sendHash: common.HexToHash("0xaaaa")}
	s := NewSubmitter(client, testSubmitterChain(), NewNonceLock(), nil, zaptest.NewLogger(t))

	plan := market.Plan{
		ChainID:     42161,
		RepayToken:  common.HexToAddress("0xDEBT"),
		SeizeToken:  common.HexToAddress("0xCOLL"),
		RepayAmount: big.NewInt(500_000000),
		Route:       market.RouteOption{Kind: market.RouteUniV3, FeeBps: 500},
		Mode:        market.ModeFlash,
	}

	txHash, err := s.Submit(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xaaaa").Hex(), txHash)
	assert.Equal(t, "liquidateWithFlash", client.lastMethod)
}

func TestSubmitterUsesFundsModeMethod(t *testing.T) {
	client := &fakeContractClient{sendHash: common.HexToHash("0xbbbb")}
	s := NewSubmitter(client, testSubmitterChain(), NewNonceLock(), nil, zaptest.NewLogger(t))

	plan := market.Plan{
		ChainID:     42161,
		RepayToken:  common.HexToAddress("0xDEBT"),
		SeizeToken:  common.HexToAddress("0xCOLL"),
		RepayAmount: big.NewInt(500_000000),
		Route:       market.RouteOption{Kind: market.RouteUniV3, FeeBps: 500},
		Mode:        market.ModeFunds,
	}

	_, err := s.Submit(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, "liquidateWithFunds", client.lastMethod)
}

func TestSubmitterPropagatesSendError(t *testing.T) {
	client := &fakeContractClient{sendErr: errors.New("execution reverted: boom")}
	s := NewSubmitter(client, testSubmitterChain(), NewNonceLock(), nil, zaptest.NewLogger(t))

	plan := market.Plan{
		RepayToken: common.HexToAddress("0xDEBT"),
		SeizeToken: common.HexToAddress("0xCOLL"),
		Route:      market.RouteOption{Kind: market.RouteUniV3, FeeBps: 500},
	}

	_, err := s.Submit(context.Background(), plan)
	assert.Error(t, err)
}

func TestSubmitterSurfacesBadRouteData(t *testing.T) {
	client := &fakeContractClient{}
	s := NewSubmitter(client, testSubmitterChain(), NewNonceLock(), nil, zaptest.NewLogger(t))

	plan := market.Plan{Route: market.RouteOption{Kind: market.RouteKind(99)}}
	_, err := s.Submit(context.Background(), plan)
	assert.Error(t, err)
}

type fakeQuoteProvider struct {
	quote *aggregator.Quote
	err   error
}

func (f *fakeQuoteProvider) Quote(ctx context.Context, chainID int64, sellToken, buyToken, userAddr common.Address, amountIn *big.Int) (*aggregator.Quote, error) {
	return f.quote, f.err
}

func preLiqPlan() market.Plan {
	return market.Plan{
		ChainID:     42161,
		Borrower:    common.HexToAddress("0xBORROWER"),
		RepayToken:  common.HexToAddress("0xDEBT"),
		SeizeToken:  common.HexToAddress("0xCOLL"),
		RepayAmount: big.NewInt(500_000000),
		PreLiq: &market.PreLiqExecHint{
			OfferAddress:     common.HexToAddress("0xOFFER"),
			CollateralSeized: big.NewInt(270_000000000000000),
			RepayShares:      big.NewInt(400_000000),
		},
	}
}

func TestSubmitPreLiquidationRequiresAggregator(t *testing.T) {
	s := NewSubmitter(&fakeContractClient{}, testSubmitterChain(), NewNonceLock(), nil, zaptest.NewLogger(t))
	_, err := s.Submit(context.Background(), preLiqPlan())
	assert.Error(t, err)
}

func TestSubmitPreLiquidationRejectsNoQuote(t *testing.T) {
	s := NewSubmitter(&fakeContractClient{}, testSubmitterChain(), NewNonceLock(), nil, zaptest.NewLogger(t))
	s.Aggregator = &fakeQuoteProvider{err: errors.New("no provider configured")}

	_, err := s.Submit(context.Background(), preLiqPlan())
	assert.Error(t, err)
}

func TestSubmitPreLiquidationRejectsUnprofitableQuote(t *testing.T) {
	s := NewSubmitter(&fakeContractClient{}, testSubmitterChain(), NewNonceLock(), nil, zaptest.NewLogger(t))
	s.Aggregator = &fakeQuoteProvider{quote: &aggregator.Quote{
		Router:    common.HexToAddress("0xROUTER"),
		Calldata:  []byte{0xde, 0xad},
		AmountOut: big.NewInt(499_000000), // below RepayAmount
	}}

	_, err := s.Submit(context.Background(), preLiqPlan())
	assert.Error(t, err)
}
