package execution

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/blackhole-labs/liquidationd/internal/market"
)

// callbackArgs is the Bundler3 callback ABI from spec.md §6, bit-exact:
//
//	abi.encode(address debtAsset, uint256 minRepayAssets, address router,
//	           bytes aggregatorCalldata, address profitToken,
//	           address beneficiary, address collateralAsset,
//	           uint256 collateralSeized, address wrappedNative)
var callbackArgs = abi.Arguments{
	{Type: mustType("address")}, // debtAsset
	{Type: mustType("uint256")}, // minRepayAssets
	{Type: mustType("address")}, // router
	{Type: mustType("bytes")},   // aggregatorCalldata
	{Type: mustType("address")}, // profitToken
	{Type: mustType("address")}, // beneficiary
	{Type: mustType("address")}, // collateralAsset
	{Type: mustType("uint256")}, // collateralSeized
	{Type: mustType("address")}, // wrappedNative
}

func mustType(s string) abi.Type {
	t, err := abi.NewType(s, "", nil)
	if err != nil {
		panic(fmt.Sprintf("execution: invalid ABI type %q: %v", s, err))
	}
	return t
}

// Bundler3Call is one call entry the multicall tuple wraps.
type Bundler3Call struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	SkipRevert bool
	CallbackHash [32]byte
}

// Bundler3Builder assembles the callback_data payload and the outer
// multicall tuple for a pre-liquidation execution, per spec.md §6.
type Bundler3Builder struct {
	WrappedNative common.Address
}

// BuildCallbackData ABI-encodes the Bundler3 callback for one plan's
// pre-liquidation route, using whichever route won the scorer's gas/net
// comparison (plan.Route) to populate router and calldata is supplied by
// the caller since path/calldata assembly is route-kind-specific.
func (b Bundler3Builder) BuildCallbackData(plan market.Plan, aggregatorCalldata []byte, profitToken, beneficiary common.Address) ([]byte, error) {
	if plan.PreLiq == nil {
		return nil, fmt.Errorf("execution: plan has no pre-liquidation hint")
	}

	minRepayAssets := plan.RepayAmount
	if minRepayAssets == nil {
		minRepayAssets = big.NewInt(0)
	}
	collateralSeized := plan.PreLiq.CollateralSeized
	if collateralSeized == nil {
		collateralSeized = big.NewInt(0)
	}

	return callbackArgs.Pack(
		plan.RepayToken,
		minRepayAssets,
		plan.Route.Router,
		aggregatorCalldata,
		profitToken,
		beneficiary,
		plan.SeizeToken,
		collateralSeized,
		b.WrappedNative,
	)
}

// BuildMulticall ABI-encodes the outer Bundler3
// multicall((address,bytes,uint256,bool,bytes32)[]) calldata.
func (b Bundler3Builder) BuildMulticall(calls []Bundler3Call) ([]byte, error) {
	tuples := make([]struct {
		To           common.Address
		Data         []byte
		Value        *big.Int
		SkipRevert   bool
		CallbackHash [32]byte
	}, len(calls))
	for i, c := range calls {
		value := c.Value
		if value == nil {
			value = big.NewInt(0)
		}
		tuples[i] = struct {
			To           common.Address
			Data         []byte
			Value        *big.Int
			SkipRevert   bool
			CallbackHash [32]byte
		}{c.To, c.Data, value, c.SkipRevert, c.CallbackHash}
	}

	arr, err := abi.NewType("tuple(address,bytes,uint256,bool,bytes32)[]", "", nil)
	if err != nil {
		return nil, fmt.Errorf("execution: build multicall array type: %w", err)
	}
	args := abi.Arguments{{Type: arr}}
	return args.Pack(tuples)
}

// BuildMulticallCalldata wraps BuildMulticall's packed argument array with
// the multicall((address,bytes,uint256,bool,bytes32)[]) function selector,
// producing calldata ready to submit directly to the Bundler3 contract.
func (b Bundler3Builder) BuildMulticallCalldata(calls []Bundler3Call) ([]byte, error) {
	packed, err := b.BuildMulticall(calls)
	if err != nil {
		return nil, err
	}
	return append(selector("multicall((address,bytes,uint256,bool,bytes32)[])"), packed...), nil
}

// preLiquidateArgs is the Morpho pre-liquidation offer contract's
// preLiquidate(address,uint256,uint256,bytes) argument tuple (spec.md §4.3).
var preLiquidateArgs = abi.Arguments{
	{Type: mustType("address")}, // borrower
	{Type: mustType("uint256")}, // collateralSeized
	{Type: mustType("uint256")}, // repayShares
	{Type: mustType("bytes")},   // callbackData
}

// BuildPreLiquidateCalldata ABI-encodes a call to the offer contract's
// preLiquidate(borrower, collateralSeized, repayShares, callbackData).
func (b Bundler3Builder) BuildPreLiquidateCalldata(borrower common.Address, collateralSeized, repayShares *big.Int, callbackData []byte) ([]byte, error) {
	packed, err := preLiquidateArgs.Pack(borrower, collateralSeized, repayShares, callbackData)
	if err != nil {
		return nil, fmt.Errorf("execution: pack preLiquidate: %w", err)
	}
	return append(selector("preLiquidate(address,uint256,uint256,bytes)"), packed...), nil
}

func selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}
