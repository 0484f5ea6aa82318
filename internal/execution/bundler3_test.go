package execution

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackhole-labs/liquidationd/internal/market"
)

func TestBundler3BuilderBuildCallbackData(t *testing.T) {
	b := Bundler3Builder{WrappedNative: common.HexToAddress("0xWNATIVE")}
	plan := market.Plan{
		RepayToken:  common.HexToAddress("0xDEBT"),
		RepayAmount: big.NewInt(500_000000),
		SeizeToken:  common.HexToAddress("0xCOLL"),
		Route: market.RouteOption{
			Router: common.HexToAddress("0xROUTER"),
		},
		PreLiq: &market.PreLiqExecHint{
			OfferAddress:     common.HexToAddress("0xOFFER"),
			CollateralSeized: big.NewInt(270_000000000000000),
			RepayShares:      big.NewInt(400_000000),
		},
	}

	data, err := b.BuildCallbackData(plan, []byte{0xde, 0xad, 0xbe, 0xef}, common.HexToAddress("0xPROFIT"), common.HexToAddress("0xBENEFICIARY"))
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestBundler3BuilderBuildCallbackDataRequiresPreLiq(t *testing.T) {
	b := Bundler3Builder{}
	_, err := b.BuildCallbackData(market.Plan{}, nil, common.Address{}, common.Address{})
	assert.Error(t, err)
}

func TestBundler3BuilderBuildMulticall(t *testing.T) {
	b := Bundler3Builder{}
	calls := []Bundler3Call{
		{To: common.HexToAddress("0xA"), Data: []byte{0x01}, Value: big.NewInt(0), SkipRevert: false},
		{To: common.HexToAddress("0xB"), Data: []byte{0x02}},
	}
	data, err := b.BuildMulticall(calls)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestBundler3BuilderBuildMulticallCalldataPrependsSelector(t *testing.T) {
	b := Bundler3Builder{}
	calls := []Bundler3Call{
		{To: common.HexToAddress("0xA"), Data: []byte{0x01}, Value: big.NewInt(0)},
	}

	packed, err := b.BuildMulticall(calls)
	require.NoError(t, err)
	data, err := b.BuildMulticallCalldata(calls)
	require.NoError(t, err)

	assert.Len(t, data, len(packed)+4)
	assert.Equal(t, packed, data[4:])
}

func TestBundler3BuilderBuildPreLiquidateCalldataPrependsSelector(t *testing.T) {
	b := Bundler3Builder{}
	data, err := b.BuildPreLiquidateCalldata(
		common.HexToAddress("0xBORROWER"),
		big.NewInt(270_000000000000000),
		big.NewInt(400_000000),
		[]byte{0xde, 0xad},
	)
	require.NoError(t, err)
	require.True(t, len(data) > 4)

	selector := crypto.Keccak256([]byte("preLiquidate(address,uint256,uint256,bytes)"))[:4]
	assert.Equal(t, selector, data[:4])
}
