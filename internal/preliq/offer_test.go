package preliq

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveOfferAddressRejectsZeroInitCodeHash(t *testing.T) {
	_, err := DeriveOfferAddress(common.HexToAddress("0x1"), common.HexToAddress("0x2"), [32]byte{}, [32]byte{})
	assert.ErrorIs(t, err, ErrFeatureDisabled)
}

func TestDeriveOfferAddressDeterministic(t *testing.T) {
	factory := common.HexToAddress("0xAaaaAaaaAaaaAaaaAaaaAaaaAaaaAaaaAaaaAaaa")
	borrower := common.HexToAddress("0xBbbbBbbbBbbbBbbbBbbbBbbbBbbbBbbbBbbbBbbb")
	marketID := [32]byte{1, 2, 3}
	initCodeHash := [32]byte{9, 9, 9}

	addr1, err := DeriveOfferAddress(factory, borrower, marketID, initCodeHash)
	require.NoError(t, err)
	addr2, err := DeriveOfferAddress(factory, borrower, marketID, initCodeHash)
	require.NoError(t, err)
	assert.Equal(t, addr1, addr2)

	differentBorrower := common.HexToAddress("0xCccccccccccccccccccccccccccccccccccccccc")
	addr3, err := DeriveOfferAddress(factory, differentBorrower, marketID, initCodeHash)
	require.NoError(t, err)
	assert.NotEqual(t, addr1, addr3)
}

func TestInterpolateAtBreakpoints(t *testing.T) {
	params := OfferParams{
		PreLLTV: decimal.RequireFromString("0.90"),
		PreLCF1: decimal.RequireFromString("0.20"),
		PreLCF2: decimal.RequireFromString("1.00"),
		PreLIF1: decimal.RequireFromString("0.01"),
		PreLIF2: decimal.RequireFromString("0.05"),
	}

	atPreLLTV := Interpolate(params, decimal.RequireFromString("0.90"))
	assert.True(t, atPreLLTV.CloseFactor.Equal(params.PreLCF1))

	atOne := Interpolate(params, decimal.NewFromInt(1))
	assert.True(t, atOne.CloseFactor.Equal(params.PreLCF2))

	mid := Interpolate(params, decimal.RequireFromString("0.95"))
	assert.True(t, mid.CloseFactor.GreaterThan(params.PreLCF1))
	assert.True(t, mid.CloseFactor.LessThan(params.PreLCF2))
}

func TestInterpolateClampsOutOfRangeHF(t *testing.T) {
	params := OfferParams{
		PreLLTV: decimal.RequireFromString("0.90"),
		PreLCF1: decimal.RequireFromString("0.20"),
		PreLCF2: decimal.RequireFromString("1.00"),
		PreLIF1: decimal.RequireFromString("0.01"),
		PreLIF2: decimal.RequireFromString("0.05"),
	}

	below := Interpolate(params, decimal.RequireFromString("0.5"))
	atOne := Interpolate(params, decimal.NewFromInt(1))
	assert.True(t, below.CloseFactor.Equal(atOne.CloseFactor))

	above := Interpolate(params, decimal.RequireFromString("2.0"))
	atLLTV := Interpolate(params, params.PreLLTV)
	assert.True(t, above.CloseFactor.Equal(atLLTV.CloseFactor))
}
