// Package events derives semantically typed domain events from program log
// streams or historical transaction polling, with per-signature
// deduplication and sub-account relevance filtering.
package events

import (
	"github.com/gagliardetto/solana-go"

	"github.com/vortex-labs/vortex-go/types"
)

// Event is one decoded domain event. The concrete set is closed.
type Event interface {
	// TxSignature returns the signature of the bearing transaction.
	TxSignature() string
	// PertainsTo reports whether the event references subAccount as its
	// maker, taker or user.
	PertainsTo(subAccount solana.PublicKey) bool

	isEvent()
}

// OrderCreate reports a newly placed order.
type OrderCreate struct {
	Order     types.Order
	User      solana.PublicKey
	Ts        uint64
	Signature string
	TxIdx     int
}

// OrderFill reports a (partial) fill of maker and/or taker orders.
type OrderFill struct {
	Maker                  *solana.PublicKey
	MakerFee               int64
	MakerOrderId           uint32
	MakerSide              *types.PositionDirection
	Taker                  *solana.PublicKey
	TakerFee               uint64
	TakerOrderId           uint32
	TakerSide              *types.PositionDirection
	BaseAssetAmountFilled  uint64
	QuoteAssetAmountFilled uint64
	MarketIndex            uint16
	MarketType             types.MarketType
	OraclePrice            int64
	Ts                     uint64
	Signature              string
	TxIdx                  int
}

// OrderCancel reports a cancelled order.
type OrderCancel struct {
	Maker        *solana.PublicKey
	Taker        *solana.PublicKey
	MakerOrderId uint32
	TakerOrderId uint32
	Ts           uint64
	Signature    string
	TxIdx        int
}

// OrderCancelMissing reports a cancel attempt against an unknown order id.
// It is synthesized from a free-form error log line; the program emits no
// structured record for this case. Exactly one of UserOrderId/OrderId is
// set, depending on which id space the cancel used.
type OrderCancelMissing struct {
	UserOrderId uint8
	OrderId     uint32
	Signature   string
}

// OrderExpire reports an order cancelled by expiry.
type OrderExpire struct {
	OrderId   uint32
	User      *solana.PublicKey
	Fee       uint64
	Ts        uint64
	Signature string
	TxIdx     int
}

// FundingPayment reports funding settled against a user's position.
type FundingPayment struct {
	Amount      int64
	MarketIndex uint16
	User        solana.PublicKey
	Ts          uint64
	Signature   string
	TxIdx       int
}

func (e OrderCreate) isEvent()        {}
func (e OrderFill) isEvent()          {}
func (e OrderCancel) isEvent()        {}
func (e OrderCancelMissing) isEvent() {}
func (e OrderExpire) isEvent()        {}
func (e FundingPayment) isEvent()     {}

func (e OrderCreate) TxSignature() string        { return e.Signature }
func (e OrderFill) TxSignature() string          { return e.Signature }
func (e OrderCancel) TxSignature() string        { return e.Signature }
func (e OrderCancelMissing) TxSignature() string { return e.Signature }
func (e OrderExpire) TxSignature() string        { return e.Signature }
func (e FundingPayment) TxSignature() string     { return e.Signature }

func matches(pk *solana.PublicKey, subAccount solana.PublicKey) bool {
	return pk != nil && *pk == subAccount
}

func (e OrderCreate) PertainsTo(subAccount solana.PublicKey) bool {
	return e.User == subAccount
}

func (e OrderFill) PertainsTo(subAccount solana.PublicKey) bool {
	return matches(e.Maker, subAccount) || matches(e.Taker, subAccount)
}

func (e OrderCancel) PertainsTo(subAccount solana.PublicKey) bool {
	return matches(e.Maker, subAccount) || matches(e.Taker, subAccount)
}

// PertainsTo is always true: the log line carries no account reference, and
// the stream is already scoped to transactions mentioning the sub-account.
func (e OrderCancelMissing) PertainsTo(solana.PublicKey) bool { return true }

func (e OrderExpire) PertainsTo(subAccount solana.PublicKey) bool {
	return matches(e.User, subAccount)
}

func (e FundingPayment) PertainsTo(subAccount solana.PublicKey) bool {
	return e.User == subAccount
}
