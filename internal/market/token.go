// Package market holds the data model shared by ingestion, scoring and
// execution: tokens, chains, candidates and plans. Nothing in this package
// performs I/O; it is the flat, pre-resolved lookup layer the rest of the
// agent is built on (chain/token back-references are resolved once at boot,
// see configs.LoadConfig).
package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OracleDenom is the unit a price feed reports in.
type OracleDenom int

const (
	DenomUSD OracleDenom = iota
	DenomNative
)

// Token is an immutable-for-the-run descriptor of an ERC-20 asset on one chain.
type Token struct {
	Symbol           string
	Address          common.Address
	Decimals         uint8
	OracleFeed       common.Address // zero if no direct feed; use DEX fallback
	OracleDenom      OracleDenom
	FallbackRouteHub common.Address // preferred stable/native hop for DEX fallback pricing
}

// Pow10 returns 10^Decimals, the factor between one whole token and its raw
// integer amount (see market.TokenPosition).
func (t Token) Pow10() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(t.Decimals)), nil)
}

// TokenPosition is one side (debt or collateral) of a borrower's exposure.
type TokenPosition struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
	Amount   *big.Int // arbitrary-precision raw integer, never nil for a valid position
}

// IsZero reports whether the position carries no exposure (spec.md §4.2 gate 3).
func (p TokenPosition) IsZero() bool {
	return p.Amount == nil || p.Amount.Sign() == 0
}
