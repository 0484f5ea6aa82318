// Package uniswap implements the bit-exact UniV3 path codec, which
// internal/execution uses to encode route data, plus sqrtPriceX96/tick,
// constant-product and slippage helpers that nothing else in this module
// calls (spec.md §6 "UniV3 path encoding" and §9 "arbitrary precision
// arithmetic"). Adapted from the AMM math the teacher's
// pkg/util and internal/util packages exercised (sqrtPrice<->tick
// conversion, liquidity/amount conversion) but retargeted at swap-route
// quoting instead of LP position sizing.
package uniswap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const feeBytes = 3

// EncodePath concatenates token(20B) || fee(3B) per hop, terminated by the
// final token, exactly as UniV3's QuoterV2.quoteExactInput and the
// executor's `path` field expect (spec.md §6, bit-exact).
func EncodePath(tokens []common.Address, fees []uint32) ([]byte, error) {
	if len(tokens) < 2 {
		return nil, errors.New("uniswap: path needs at least two tokens")
	}
	if len(fees) != len(tokens)-1 {
		return nil, fmt.Errorf("uniswap: expected %d fees for %d tokens, got %d", len(tokens)-1, len(tokens), len(fees))
	}

	buf := make([]byte, 0, len(tokens)*common.AddressLength+len(fees)*feeBytes)
	for i, tok := range tokens {
		buf = append(buf, tok.Bytes()...)
		if i < len(fees) {
			var feeBuf [4]byte
			binary.BigEndian.PutUint32(feeBuf[:], fees[i])
			buf = append(buf, feeBuf[1:]...) // low 3 bytes, big-endian uint24
		}
	}
	return buf, nil
}

// DecodePath is the inverse of EncodePath; EncodePath(DecodePath(p)...) and
// DecodePath(EncodePath(...)) must round-trip exactly (spec.md §8).
func DecodePath(path []byte) ([]common.Address, []uint32, error) {
	const hop = common.AddressLength + feeBytes
	if len(path) < common.AddressLength || (len(path)-common.AddressLength)%hop != 0 {
		return nil, nil, fmt.Errorf("uniswap: malformed path of length %d", len(path))
	}

	var tokens []common.Address
	var fees []uint32
	offset := 0
	for offset+common.AddressLength <= len(path) {
		tokens = append(tokens, common.BytesToAddress(path[offset:offset+common.AddressLength]))
		offset += common.AddressLength
		if offset+feeBytes > len(path) {
			break
		}
		feeBuf := make([]byte, 4)
		copy(feeBuf[1:], path[offset:offset+feeBytes])
		fees = append(fees, binary.BigEndian.Uint32(feeBuf))
		offset += feeBytes
	}
	return tokens, fees, nil
}

// q96 is 2^96, the fixed-point base UniV3 sqrtPriceX96 values use.
var q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// SqrtPriceX96ToPrice converts a pool's sqrtPriceX96 into price = (sqrtPrice/2^96)^2,
// expressed as token1-per-token0 in a decimal.Decimal-free big.Rat so callers
// can reconcile to whatever fixed precision they need (spec.md §9: "USD and
// ratio math uses floating point only where bounded and reconciled back to
// integer amounts by a well-defined scaling").
func SqrtPriceX96ToPrice(sqrtPriceX96 *big.Int) *big.Rat {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() == 0 {
		return new(big.Rat)
	}
	num := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	den := new(big.Int).Mul(q96, q96)
	return new(big.Rat).SetFrac(num, den)
}

// TickToSqrtPriceX96 approximates 1.0001^(tick/2) * 2^96 using integer
// square-root on a fixed-point representation of 1.0001^tick, avoiding
// float64 precision loss across the wide tick range UniV3 allows.
func TickToSqrtPriceX96(tick int) *big.Int {
	// price = 1.0001^tick, computed at 1e36 fixed precision then reconciled.
	const precision = 36
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(precision), nil)

	base := new(big.Rat).SetFrac(big.NewInt(10001), big.NewInt(10000))
	price := new(big.Rat).SetInt64(1)
	exp := tick
	neg := exp < 0
	if neg {
		exp = -exp
	}
	b := new(big.Rat).Set(base)
	for exp > 0 {
		if exp&1 == 1 {
			price.Mul(price, b)
		}
		b.Mul(b, b)
		exp >>= 1
	}
	if neg {
		price.Inv(price)
	}

	fixed := new(big.Int).Quo(new(big.Int).Mul(price.Num(), scale), price.Denom())
	// sqrt(price) at 1e36 precision, scaled into Q96.
	sqrtFixed := new(big.Int).Sqrt(fixed) // sqrt(price * 1e36) = sqrt(price) * 1e18
	sqrtPriceX96 := new(big.Int).Mul(sqrtFixed, q96)
	sqrtPriceX96.Quo(sqrtPriceX96, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	return sqrtPriceX96
}

// AmountOutConstantProduct implements UniV2/SolidlyV2-style constant-product
// getAmountsOut for one hop with a 30bps-equivalent fee parameter expressed
// in bps, a local estimate that needs no live quote call. Route quoting
// and DEX fallback pricing use on-chain quotes instead and do not call it.
func AmountOutConstantProduct(amountIn, reserveIn, reserveOut *big.Int, feeBps int64) *big.Int {
	if amountIn == nil || reserveIn == nil || reserveOut == nil || reserveIn.Sign() == 0 {
		return big.NewInt(0)
	}
	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(10_000-feeBps))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(new(big.Int).Mul(reserveIn, big.NewInt(10_000)), amountInWithFee)
	if denominator.Sign() == 0 {
		return big.NewInt(0)
	}
	return numerator.Quo(numerator, denominator)
}

// MinAmountOut applies a slippage-bps haircut to a quoted amount
// (amount_out_min := quoted * (10_000 − slippage_bps) / 10_000, spec.md §4.2).
func MinAmountOut(quoted *big.Int, slippageBps int64) *big.Int {
	if quoted == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(quoted, big.NewInt(10_000-slippageBps))
	return out.Quo(out, big.NewInt(10_000))
}
