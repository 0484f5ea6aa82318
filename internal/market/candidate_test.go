package market

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestTokenPositionIsZero(t *testing.T) {
	assert.True(t, TokenPosition{}.IsZero())
	assert.True(t, TokenPosition{Amount: big.NewInt(0)}.IsZero())
	assert.False(t, TokenPosition{Amount: big.NewInt(1)}.IsZero())
}

func TestCandidateKeyIgnoresHealthFactor(t *testing.T) {
	borrower := common.HexToAddress("0x1")
	debt := common.HexToAddress("0x2")
	coll := common.HexToAddress("0x3")

	a := Candidate{
		ChainID: 42161, Borrower: borrower,
		Debt:       TokenPosition{Address: debt},
		Collateral: TokenPosition{Address: coll},
		HealthFactor: 0.97,
	}
	b := a
	b.HealthFactor = 0.90 // HF changes between observations, key must not

	assert.Equal(t, a.Key(), b.Key())
}

func TestRouteOptionFingerprintStable(t *testing.T) {
	r1 := RouteOption{DexID: "uniswap", Kind: RouteUniV3, Router: common.HexToAddress("0xaaaa"), FeeBps: 3000}
	r2 := r1
	assert.Equal(t, r1.Fingerprint(), r2.Fingerprint())

	r3 := r1
	r3.FeeBps = 500
	assert.NotEqual(t, r1.Fingerprint(), r3.Fingerprint())
}
