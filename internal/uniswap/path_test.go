package uniswap

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodePathRoundTrip(t *testing.T) {
	tokens := []common.Address{
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		common.HexToAddress("0x3333333333333333333333333333333333333333"),
	}
	fees := []uint32{500, 3000}

	encoded, err := EncodePath(tokens, fees)
	require.NoError(t, err)

	gotTokens, gotFees, err := DecodePath(encoded)
	require.NoError(t, err)
	assert.Equal(t, tokens, gotTokens)
	assert.Equal(t, fees, gotFees)

	reEncoded, err := EncodePath(gotTokens, gotFees)
	require.NoError(t, err)
	assert.Equal(t, encoded, reEncoded)
}

func TestEncodePathRejectsMismatchedFees(t *testing.T) {
	tokens := []common.Address{common.HexToAddress("0x1"), common.HexToAddress("0x2")}
	_, err := EncodePath(tokens, []uint32{500, 3000})
	assert.Error(t, err)
}

func TestDecodePathRejectsMalformedLength(t *testing.T) {
	_, _, err := DecodePath([]byte{0x01, 0x02, 0x03})
	assert.Error(t, err)
}

func TestTickToSqrtPriceX96ZeroTickIsUnity(t *testing.T) {
	got := TickToSqrtPriceX96(0)
	// At tick 0, price == 1, so sqrtPriceX96 should equal 2^96.
	want := new(big.Int).Lsh(big.NewInt(1), 96)
	diff := new(big.Int).Sub(got, want)
	diff.Abs(diff)
	// Allow a tiny fixed-point reconciliation error.
	tolerance := new(big.Int).Div(want, big.NewInt(1_000_000))
	assert.True(t, diff.Cmp(tolerance) <= 0, "got %s want ~%s", got, want)
}

func TestTickToSqrtPriceX96MonotonicInTick(t *testing.T) {
	low := TickToSqrtPriceX96(-1000)
	mid := TickToSqrtPriceX96(0)
	high := TickToSqrtPriceX96(1000)
	assert.True(t, low.Cmp(mid) < 0)
	assert.True(t, mid.Cmp(high) < 0)
}

func TestAmountOutConstantProduct(t *testing.T) {
	amountIn := big.NewInt(1_000000)          // 1 USDC (6dp)
	reserveIn := big.NewInt(1_000_000_000000) // 1,000,000 USDC
	reserveOut := big.NewInt(500 * 1e9)        // 500 WETH scaled down for the example

	out := AmountOutConstantProduct(amountIn, reserveIn, reserveOut, 30)
	assert.True(t, out.Sign() > 0)
	assert.True(t, out.Cmp(reserveOut) < 0)
}

func TestMinAmountOutAppliesSlippage(t *testing.T) {
	quoted := big.NewInt(10_000)
	out := MinAmountOut(quoted, 50) // 0.5%
	assert.Equal(t, big.NewInt(9_950), out)
}
