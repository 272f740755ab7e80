// Package types holds the on-chain data model mirrored by the SDK: user
// accounts, markets, oracles and the program event records, together with
// their packed little-endian decoding rules.
package types

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Context selects a deployment environment of the on-chain program.
type Context uint8

const (
	ContextDevNet Context = iota
	ContextMainNet
)

// MarketType tags a market as spot or perp.
type MarketType uint8

const (
	MarketTypeSpot MarketType = iota
	MarketTypePerp
)

func (m MarketType) String() string {
	switch m {
	case MarketTypeSpot:
		return "spot"
	case MarketTypePerp:
		return "perp"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// MarketId uniquely identifies a market by (kind, index).
// Markets are totally ordered lexicographically by (kind, index).
type MarketId struct {
	Index uint16
	Kind  MarketType
}

// QuoteSpotMarket is the settlement asset market (spot index 0).
var QuoteSpotMarket = MarketId{Index: 0, Kind: MarketTypeSpot}

// SpotMarketId returns the id of a spot market by index.
func SpotMarketId(index uint16) MarketId {
	return MarketId{Index: index, Kind: MarketTypeSpot}
}

// PerpMarketId returns the id of a perp market by index.
func PerpMarketId(index uint16) MarketId {
	return MarketId{Index: index, Kind: MarketTypePerp}
}

// Less orders market ids by (kind, index).
func (m MarketId) Less(other MarketId) bool {
	if m.Kind != other.Kind {
		return m.Kind < other.Kind
	}
	return m.Index < other.Index
}

func (m MarketId) String() string {
	return fmt.Sprintf("%s/%d", m.Kind, m.Index)
}

// DataAndSlot pairs decoded account data with the ledger slot it was observed at.
type DataAndSlot[T any] struct {
	Data T
	Slot uint64
}

// OracleInfo ties a market to its oracle account and decode rule.
type OracleInfo struct {
	MarketIndex uint16
	Pubkey      solana.PublicKey
	Source      OracleSource
}

// PositionDirection is the side of an order or position.
type PositionDirection uint8

const (
	PositionDirectionLong PositionDirection = iota
	PositionDirectionShort
)

func (d PositionDirection) String() string {
	if d == PositionDirectionLong {
		return "long"
	}
	return "short"
}

// OrderType is the matching behavior of an order.
type OrderType uint8

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
	OrderTypeTriggerMarket
	OrderTypeTriggerLimit
	OrderTypeOracle
)

// OrderStatus is the lifecycle state of an order slot.
type OrderStatus uint8

const (
	OrderStatusInit OrderStatus = iota
	OrderStatusOpen
	OrderStatusFilled
	OrderStatusCanceled
)

// OrderTriggerCondition gates trigger orders on oracle price movement.
type OrderTriggerCondition uint8

const (
	OrderTriggerConditionAbove OrderTriggerCondition = iota
	OrderTriggerConditionBelow
	OrderTriggerConditionTriggeredAbove
	OrderTriggerConditionTriggeredBelow
)

// PostOnlyParam controls maker-only order placement.
type PostOnlyParam uint8

const (
	PostOnlyNone PostOnlyParam = iota
	PostOnlyMustPostOnly
	PostOnlyTryPostOnly
	PostOnlySlide
)

// SpotBalanceType distinguishes deposits from borrows.
type SpotBalanceType uint8

const (
	SpotBalanceTypeDeposit SpotBalanceType = iota
	SpotBalanceTypeBorrow
)

// SpotFulfillmentType selects the venue used to fill a spot order.
type SpotFulfillmentType uint8

const (
	SpotFulfillmentTypeExternalSerum SpotFulfillmentType = iota
	SpotFulfillmentTypeMatch
	SpotFulfillmentTypeExternalPhoenix
)

// OrderParams are the arguments for placing a new order.
// Optional fields follow the packed optional encoding (presence byte + value).
type OrderParams struct {
	OrderType         OrderType
	MarketType        MarketType
	Direction         PositionDirection
	UserOrderId       uint8
	BaseAssetAmount   uint64
	Price             uint64
	MarketIndex       uint16
	ReduceOnly        bool
	PostOnly          PostOnlyParam
	ImmediateOrCancel bool
	MaxTs             *int64  `bin:"optional"`
	TriggerPrice      *uint64 `bin:"optional"`
	TriggerCondition  OrderTriggerCondition
	OraclePriceOffset *int32 `bin:"optional"`
	AuctionDuration   *uint8 `bin:"optional"`
	AuctionStartPrice *int64 `bin:"optional"`
	AuctionEndPrice   *int64 `bin:"optional"`
}

// ModifyOrderParams are the arguments for mutating an existing order.
// Every field is optional; absent fields leave the order unchanged.
type ModifyOrderParams struct {
	Direction           *PositionDirection     `bin:"optional"`
	BaseAssetAmount     *uint64                `bin:"optional"`
	Price               *uint64                `bin:"optional"`
	ReduceOnly          *bool                  `bin:"optional"`
	PostOnly            *PostOnlyParam         `bin:"optional"`
	ImmediateOrCancel   *bool                  `bin:"optional"`
	MaxTs               *int64                 `bin:"optional"`
	TriggerPrice        *uint64                `bin:"optional"`
	TriggerCondition    *OrderTriggerCondition `bin:"optional"`
	OraclePriceOffset   *int32                 `bin:"optional"`
	AuctionDuration     *uint8                 `bin:"optional"`
	AuctionStartPrice   *int64                 `bin:"optional"`
	AuctionEndPrice     *int64                 `bin:"optional"`
	Policy              *uint8                 `bin:"optional"`
	MaxPrepaidOrderFlag *bool                  `bin:"optional"`
}

// NewOrder starts a fluent builder for OrderParams.
func NewOrder(market MarketId, direction PositionDirection, baseAmount uint64) *OrderParams {
	return &OrderParams{
		OrderType:       OrderTypeLimit,
		MarketType:      market.Kind,
		MarketIndex:     market.Index,
		Direction:       direction,
		BaseAssetAmount: baseAmount,
	}
}

// WithPrice sets a limit price.
func (o *OrderParams) WithPrice(price uint64) *OrderParams {
	o.Price = price
	return o
}

// WithUserOrderId tags the order with a caller-assigned id.
func (o *OrderParams) WithUserOrderId(id uint8) *OrderParams {
	o.UserOrderId = id
	return o
}

// WithPostOnly restricts the order to maker-side fills.
func (o *OrderParams) WithPostOnly(p PostOnlyParam) *OrderParams {
	o.PostOnly = p
	return o
}

// WithReduceOnly restricts the order to reducing an existing position.
func (o *OrderParams) WithReduceOnly() *OrderParams {
	o.ReduceOnly = true
	return o
}
