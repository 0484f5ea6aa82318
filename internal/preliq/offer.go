// Package preliq derives Morpho Blue pre-liquidation offer addresses via
// CREATE2, reads offer parameters, and interpolates the effective
// close-factor and incentive at a borrower's current health factor.
// Grounded on go-ethereum's crypto.Keccak256 (the teacher's own hashing
// primitive, used transitively through go-ethereum everywhere in
// blackhole.go's transaction signing) and on SPEC_FULL.md §9's resolution
// of the open question: the init-code hash is never hardcoded here, it is
// threaded in from chain configuration and the feature flag refuses to
// enable without one.
package preliq

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/blackhole-labs/liquidationd/internal/market"
	"github.com/blackhole-labs/liquidationd/pkg/contractclient"
)

// ErrFeatureDisabled is returned when pre-liquidation support is consulted
// on a chain that has no init-code hash configured.
var ErrFeatureDisabled = errors.New("preliq: feature disabled, no init code hash configured")

// DeriveOfferAddress computes the CREATE2 offer address:
// keccak256(0xff || factory || salt || initCodeHash)[12:], with
// salt = keccak256(abi.encode(borrower, marketID)).
func DeriveOfferAddress(factory common.Address, borrower common.Address, marketID [32]byte, initCodeHash [32]byte) (common.Address, error) {
	if initCodeHash == ([32]byte{}) {
		return common.Address{}, ErrFeatureDisabled
	}

	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		return common.Address{}, err
	}
	bytes32Type, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		return common.Address{}, err
	}
	args := abi.Arguments{{Type: addressType}, {Type: bytes32Type}}

	encoded, err := args.Pack(borrower, marketID)
	if err != nil {
		return common.Address{}, fmt.Errorf("preliq: encode salt inputs: %w", err)
	}
	salt := crypto.Keccak256(encoded)

	input := make([]byte, 0, 1+20+32+32)
	input = append(input, 0xff)
	input = append(input, factory.Bytes()...)
	input = append(input, salt...)
	input = append(input, initCodeHash[:]...)

	hash := crypto.Keccak256(input)
	return common.BytesToAddress(hash[12:]), nil
}

// OfferParams is the on-chain parameter set read from a pre-liquidation
// offer contract.
type OfferParams struct {
	PreLLTV  decimal.Decimal
	PreLCF1  decimal.Decimal
	PreLCF2  decimal.Decimal
	PreLIF1  decimal.Decimal
	PreLIF2  decimal.Decimal
	Oracle   common.Address
	Expiry   int64
}

// ReadOfferParams reads (preLLTV, preLCF1, preLCF2, preLIF1, preLIF2,
// oracle, expiry) off the offer contract. Values are WAD-scaled (1e18) on
// chain; decimals converts them to decimal.Decimal ratios.
func ReadOfferParams(ctx context.Context, client contractclient.Client) (OfferParams, error) {
	fields := []string{"preLLTV", "preLCF1", "preLCF2", "preLIF1", "preLIF2", "oracle", "expiry"}
	values := make([]interface{}, 0, len(fields))
	for _, f := range fields {
		out, err := client.Call(nil, f)
		if err != nil {
			return OfferParams{}, fmt.Errorf("preliq: read %s: %w", f, err)
		}
		values = append(values, out[0])
	}

	toRatio := func(v interface{}) (decimal.Decimal, error) {
		wad, ok := v.(*big.Int)
		if !ok {
			return decimal.Decimal{}, fmt.Errorf("preliq: unexpected WAD type %T", v)
		}
		return decimal.NewFromBigInt(wad, -18), nil
	}

	preLLTV, err := toRatio(values[0])
	if err != nil {
		return OfferParams{}, err
	}
	preLCF1, err := toRatio(values[1])
	if err != nil {
		return OfferParams{}, err
	}
	preLCF2, err := toRatio(values[2])
	if err != nil {
		return OfferParams{}, err
	}
	preLIF1, err := toRatio(values[3])
	if err != nil {
		return OfferParams{}, err
	}
	preLIF2, err := toRatio(values[4])
	if err != nil {
		return OfferParams{}, err
	}
	oracle, ok := values[5].(common.Address)
	if !ok {
		return OfferParams{}, fmt.Errorf("preliq: unexpected oracle type %T", values[5])
	}
	expiry, ok := values[6].(*big.Int)
	if !ok {
		return OfferParams{}, fmt.Errorf("preliq: unexpected expiry type %T", values[6])
	}

	return OfferParams{
		PreLLTV: preLLTV, PreLCF1: preLCF1, PreLCF2: preLCF2,
		PreLIF1: preLIF1, PreLIF2: preLIF2,
		Oracle: oracle, Expiry: expiry.Int64(),
	}, nil
}

// IsAuthorized checks the Morpho Blue core contract's isAuthorized(owner,
// authorized) view for the offer contract acting on behalf of borrower.
func IsAuthorized(client contractclient.Client, borrower, offerContract common.Address) (bool, error) {
	out, err := client.Call(nil, "isAuthorized", borrower, offerContract)
	if err != nil {
		return false, fmt.Errorf("preliq: isAuthorized: %w", err)
	}
	authorized, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("preliq: unexpected isAuthorized type %T", out[0])
	}
	return authorized, nil
}

// Interpolated is the effective close-factor and incentive at the
// borrower's current health factor, linearly interpolated between the
// offer's two breakpoints.
type Interpolated struct {
	CloseFactor decimal.Decimal
	IncentiveBps decimal.Decimal
}

// Interpolate linearly interpolates close factor (preLCF1 at HF==preLLTV
// down to preLCF2 at HF==1) and incentive (preLIF1 at HF==preLLTV up to
// preLIF2 at HF==1), clamping health factors outside [1, preLLTV].
func Interpolate(params OfferParams, healthFactor decimal.Decimal) Interpolated {
	one := decimal.NewFromInt(1)

	span := params.PreLLTV.Sub(one)
	if span.IsZero() {
		return Interpolated{CloseFactor: params.PreLCF2, IncentiveBps: params.PreLIF2.Mul(decimal.NewFromInt(10_000))}
	}

	hf := healthFactor
	if hf.LessThan(one) {
		hf = one
	}
	if hf.GreaterThan(params.PreLLTV) {
		hf = params.PreLLTV
	}

	// t = 0 at HF == preLLTV, t = 1 at HF == 1.
	t := params.PreLLTV.Sub(hf).Div(span)

	closeFactor := params.PreLCF1.Add(t.Mul(params.PreLCF2.Sub(params.PreLCF1)))
	incentive := params.PreLIF1.Add(t.Mul(params.PreLIF2.Sub(params.PreLIF1)))

	return Interpolated{
		CloseFactor:  closeFactor,
		IncentiveBps: incentive.Mul(decimal.NewFromInt(10_000)),
	}
}

// Enrich derives the offer address, checks authorization, reads parameters
// and interpolates at the borrower's health factor, returning a populated
// market.PreLiqOffer. Returns ErrFeatureDisabled unchanged from
// DeriveOfferAddress when the chain has no init-code hash configured.
func Enrich(ctx context.Context, chain *market.Chain, borrower common.Address, marketID [32]byte, healthFactor decimal.Decimal, client contractclient.Client, coreClient contractclient.Client) (*market.PreLiqOffer, error) {
	if !chain.PreLiqEnabled {
		return nil, ErrFeatureDisabled
	}

	offerAddr, err := DeriveOfferAddress(chain.PreLiqFactory, borrower, marketID, chain.PreLiqOfferInitCodeHash)
	if err != nil {
		return nil, err
	}

	authorized, err := IsAuthorized(coreClient, borrower, offerAddr)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, fmt.Errorf("preliq: offer %s not authorized for borrower %s", offerAddr.Hex(), borrower.Hex())
	}

	params, err := ReadOfferParams(ctx, client)
	if err != nil {
		return nil, err
	}

	toBps := func(ratio decimal.Decimal) int64 {
		return ratio.Mul(decimal.NewFromInt(10_000)).IntPart()
	}

	return &market.PreLiqOffer{
		OfferAddress: offerAddr,
		PreLLTV:      toBps(params.PreLLTV),
		PreLCF1:      toBps(params.PreLCF1),
		PreLCF2:      toBps(params.PreLCF2),
		PreLIF1:      toBps(params.PreLIF1),
		PreLIF2:      toBps(params.PreLIF2),
		Oracle:       params.Oracle,
		Expiry:       params.Expiry,
	}, nil
}
