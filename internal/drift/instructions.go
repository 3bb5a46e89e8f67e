package drift

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

const (
	discriminatorLen  = 8
	placeOrderArgsLen = 1 + 2 + 1 + 8 + 8 + 1 + 1 + 1
)

var (
	initializeUserDisc = InstructionDiscriminator(string(InstructionInitializeUser))
	placeOrderDisc     = InstructionDiscriminator(string(InstructionPlaceOrder))

	ErrInvalidInstructionData = errors.New("invalid instruction data")
)

type OrderType uint8

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
	OrderTypeTriggerMarket
	OrderTypeTriggerLimit
	OrderTypeOracle
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "market"
	case OrderTypeLimit:
		return "limit"
	case OrderTypeTriggerMarket:
		return "trigger_market"
	case OrderTypeTriggerLimit:
		return "trigger_limit"
	case OrderTypeOracle:
		return "oracle"
	default:
		return fmt.Sprintf("order_type(%d)", uint8(t))
	}
}

type PositionDirection uint8

const (
	DirectionLong PositionDirection = iota
	DirectionShort
)

func (d PositionDirection) String() string {
	switch d {
	case DirectionLong:
		return "long"
	case DirectionShort:
		return "short"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// PlaceOrderParams mirrors the program's place_order argument layout. Field
// order is the wire order.
type PlaceOrderParams struct {
	OrderType         OrderType
	MarketIndex       uint16
	Direction         PositionDirection
	BaseAssetAmount   uint64
	Price             uint64
	ReduceOnly        bool
	ImmediateOrCancel bool
	PostOnly          bool
}

func (p PlaceOrderParams) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteUint8(uint8(p.OrderType)); err != nil {
		return fmt.Errorf("order_type: %w", err)
	}
	if err := encoder.WriteUint16(p.MarketIndex, binary.LittleEndian); err != nil {
		return fmt.Errorf("market_index: %w", err)
	}
	if err := encoder.WriteUint8(uint8(p.Direction)); err != nil {
		return fmt.Errorf("direction: %w", err)
	}
	if err := encoder.WriteUint64(p.BaseAssetAmount, binary.LittleEndian); err != nil {
		return fmt.Errorf("base_asset_amount: %w", err)
	}
	if err := encoder.WriteUint64(p.Price, binary.LittleEndian); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	if err := encoder.WriteBool(p.ReduceOnly); err != nil {
		return fmt.Errorf("reduce_only: %w", err)
	}
	if err := encoder.WriteBool(p.ImmediateOrCancel); err != nil {
		return fmt.Errorf("immediate_or_cancel: %w", err)
	}
	if err := encoder.WriteBool(p.PostOnly); err != nil {
		return fmt.Errorf("post_only: %w", err)
	}
	return nil
}

func (p *PlaceOrderParams) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	var orderType, direction uint8
	if orderType, err = decoder.ReadUint8(); err != nil {
		return fmt.Errorf("order_type: %w", err)
	}
	if p.MarketIndex, err = decoder.ReadUint16(binary.LittleEndian); err != nil {
		return fmt.Errorf("market_index: %w", err)
	}
	if direction, err = decoder.ReadUint8(); err != nil {
		return fmt.Errorf("direction: %w", err)
	}
	if p.BaseAssetAmount, err = decoder.ReadUint64(binary.LittleEndian); err != nil {
		return fmt.Errorf("base_asset_amount: %w", err)
	}
	if p.Price, err = decoder.ReadUint64(binary.LittleEndian); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	if p.ReduceOnly, err = decoder.ReadBool(); err != nil {
		return fmt.Errorf("reduce_only: %w", err)
	}
	if p.ImmediateOrCancel, err = decoder.ReadBool(); err != nil {
		return fmt.Errorf("immediate_or_cancel: %w", err)
	}
	if p.PostOnly, err = decoder.ReadBool(); err != nil {
		return fmt.Errorf("post_only: %w", err)
	}
	p.OrderType = OrderType(orderType)
	p.Direction = PositionDirection(direction)
	return nil
}

// InstructionDiscriminator is the anchor sighash: sha256("global:<name>")[:8].
func InstructionDiscriminator(ixName string) [8]byte {
	hash := sha256.Sum256([]byte("global:" + ixName))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}

func EncodeInitializeUser() []byte {
	data := make([]byte, discriminatorLen)
	copy(data, initializeUserDisc[:])
	return data
}

func EncodePlaceOrder(params PlaceOrderParams) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, discriminatorLen+placeOrderArgsLen))
	buf.Write(placeOrderDisc[:])
	if err := params.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, fmt.Errorf("encode place_order args: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodePlaceOrder(data []byte) (PlaceOrderParams, error) {
	if len(data) != discriminatorLen+placeOrderArgsLen {
		return PlaceOrderParams{}, fmt.Errorf("%w: place_order payload is %d bytes, expected %d", ErrInvalidInstructionData, len(data), discriminatorLen+placeOrderArgsLen)
	}
	if !bytes.Equal(data[:discriminatorLen], placeOrderDisc[:]) {
		return PlaceOrderParams{}, fmt.Errorf("%w: discriminator mismatch", ErrInvalidInstructionData)
	}

	var params PlaceOrderParams
	if err := params.UnmarshalWithDecoder(bin.NewBorshDecoder(data[discriminatorLen:])); err != nil {
		return PlaceOrderParams{}, fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
	}
	return params, nil
}
