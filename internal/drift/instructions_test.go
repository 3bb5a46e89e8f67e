package drift

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/near/borsh-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOrder() PlaceOrderParams {
	return PlaceOrderParams{
		OrderType:       OrderTypeLimit,
		MarketIndex:     0,
		Direction:       DirectionLong,
		BaseAssetAmount: 10_000,
		Price:           10_000_000,
		PostOnly:        true,
	}
}

func TestInstructionDiscriminatorIsSighashPrefix(t *testing.T) {
	sum := sha256.Sum256([]byte("global:place_order"))

	disc := InstructionDiscriminator("place_order")
	assert.Equal(t, sum[:8], disc[:])
	assert.Equal(t, disc, InstructionDiscriminator("place_order"))
	assert.NotEqual(t, disc, InstructionDiscriminator("initialize_user"))
}

func TestEncodePlaceOrderLayout(t *testing.T) {
	data, err := EncodePlaceOrder(sampleOrder())
	require.NoError(t, err)
	require.Len(t, data, 8+23)

	disc := InstructionDiscriminator("place_order")
	assert.Equal(t, disc[:], data[:8])
	assert.Equal(t, "01"+"0000"+"00"+"1027000000000000"+"8096980000000000"+"00"+"00"+"01", hex.EncodeToString(data[8:]))
}

func TestEncodePlaceOrderMatchesReferenceBorsh(t *testing.T) {
	type referenceArgs struct {
		OrderType         uint8
		MarketIndex       uint16
		Direction         uint8
		BaseAssetAmount   uint64
		Price             uint64
		ReduceOnly        bool
		ImmediateOrCancel bool
		PostOnly          bool
	}

	params := PlaceOrderParams{
		OrderType:         OrderTypeOracle,
		MarketIndex:       513,
		Direction:         DirectionShort,
		BaseAssetAmount:   1 << 40,
		Price:             123_456_789,
		ReduceOnly:        true,
		ImmediateOrCancel: true,
	}
	want, err := borsh.Serialize(referenceArgs{
		OrderType:         uint8(params.OrderType),
		MarketIndex:       params.MarketIndex,
		Direction:         uint8(params.Direction),
		BaseAssetAmount:   params.BaseAssetAmount,
		Price:             params.Price,
		ReduceOnly:        params.ReduceOnly,
		ImmediateOrCancel: params.ImmediateOrCancel,
		PostOnly:          params.PostOnly,
	})
	require.NoError(t, err)

	got, err := EncodePlaceOrder(params)
	require.NoError(t, err)
	assert.Equal(t, want, got[8:])
}

func TestPlaceOrderRoundTrip(t *testing.T) {
	params := PlaceOrderParams{
		OrderType:         OrderTypeTriggerLimit,
		MarketIndex:       2,
		Direction:         DirectionShort,
		BaseAssetAmount:   ^uint64(0),
		Price:             42,
		ReduceOnly:        true,
		ImmediateOrCancel: false,
		PostOnly:          true,
	}
	data, err := EncodePlaceOrder(params)
	require.NoError(t, err)

	decoded, err := DecodePlaceOrder(data)
	require.NoError(t, err)
	assert.Equal(t, params, decoded)
}

func TestDecodePlaceOrderRejectsBadInput(t *testing.T) {
	data, err := EncodePlaceOrder(sampleOrder())
	require.NoError(t, err)

	_, err = DecodePlaceOrder(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrInvalidInstructionData)

	tampered := append([]byte(nil), data...)
	tampered[0] ^= 0xff
	_, err = DecodePlaceOrder(tampered)
	assert.ErrorIs(t, err, ErrInvalidInstructionData)
}

func TestEncodeInitializeUserIsDiscriminatorOnly(t *testing.T) {
	disc := InstructionDiscriminator("initialize_user")
	assert.Equal(t, disc[:], EncodeInitializeUser())
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "limit", OrderTypeLimit.String())
	assert.Equal(t, "order_type(9)", OrderType(9).String())
	assert.Equal(t, "short", DirectionShort.String())
}
