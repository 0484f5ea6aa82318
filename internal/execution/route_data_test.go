package execution

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackhole-labs/liquidationd/internal/market"
)

func TestEncodeRouteDataUniV3(t *testing.T) {
	plan := market.Plan{
		SeizeToken: common.HexToAddress("0xCOLL"),
		RepayToken: common.HexToAddress("0xDEBT"),
		Route:      market.RouteOption{Kind: market.RouteUniV3, FeeBps: 3000},
	}
	data, err := EncodeRouteData(plan)
	require.NoError(t, err)
	assert.Equal(t, 2*common.AddressLength+3, len(data))
}

func TestEncodeRouteDataUniV3Multi(t *testing.T) {
	plan := market.Plan{
		Route: market.RouteOption{
			Kind:   market.RouteUniV3Multi,
			Tokens: []common.Address{common.HexToAddress("0xA"), common.HexToAddress("0xB"), common.HexToAddress("0xC")},
			Fees:   []uint32{500, 3000},
		},
	}
	data, err := EncodeRouteData(plan)
	require.NoError(t, err)
	assert.Equal(t, 3*common.AddressLength+2*3, len(data))
}

func TestEncodeRouteDataUniV2FallsBackToPlanTokens(t *testing.T) {
	plan := market.Plan{
		SeizeToken: common.HexToAddress("0xCOLL"),
		RepayToken: common.HexToAddress("0xDEBT"),
		Route:      market.RouteOption{Kind: market.RouteUniV2},
	}
	data, err := EncodeRouteData(plan)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestEncodeRouteDataSolidly(t *testing.T) {
	plan := market.Plan{
		SeizeToken: common.HexToAddress("0xCOLL"),
		RepayToken: common.HexToAddress("0xDEBT"),
		Route: market.RouteOption{
			Kind:    market.RouteSolidlyV2,
			Stable:  true,
			Factory: common.HexToAddress("0xFACTORY"),
		},
	}
	data, err := EncodeRouteData(plan)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestEncodeRouteDataUnknownKind(t *testing.T) {
	plan := market.Plan{Route: market.RouteOption{Kind: market.RouteKind(99)}}
	_, err := EncodeRouteData(plan)
	assert.Error(t, err)
}
