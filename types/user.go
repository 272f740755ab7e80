package types

import (
	"strings"

	"github.com/gagliardetto/solana-go"
)

// UserStatus flags on a user account.
const (
	UserStatusBeingLiquidated uint8 = 1 << iota
	UserStatusBankrupt
	UserStatusReduceOnly
	UserStatusAdvancedLp
)

// Order is one of a user's 32 order slots. A slot with status Init is empty.
type Order struct {
	Slot                    uint64
	Price                   uint64
	BaseAssetAmount         uint64
	BaseAssetAmountFilled   uint64
	QuoteAssetAmountFilled  uint64
	TriggerPrice            uint64
	AuctionStartPrice       int64
	AuctionEndPrice         int64
	MaxTs                   int64
	OraclePriceOffset       int32
	OrderId                 uint32
	MarketIndex             uint16
	Status                  OrderStatus
	OrderType               OrderType
	MarketType              MarketType
	UserOrderId             uint8
	ExistingPositionDirection PositionDirection
	Direction               PositionDirection
	ReduceOnly              bool
	PostOnly                bool
	ImmediateOrCancel       bool
	TriggerCondition        OrderTriggerCondition
	AuctionDuration         uint8
	Padding                 [3]uint8
}

// IsOpen reports whether the slot holds a live order.
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusOpen
}

// SpotPosition is one of a user's 8 spot balance slots.
type SpotPosition struct {
	ScaledBalance      uint64
	OpenBids           int64
	OpenAsks           int64
	CumulativeDeposits int64
	MarketIndex        uint16
	BalanceType        SpotBalanceType
	OpenOrders         uint8
	Padding            [4]uint8
}

// IsAvailable reports whether the slot is the empty sentinel.
func (p *SpotPosition) IsAvailable() bool {
	return p.ScaledBalance == 0 && p.OpenOrders == 0
}

// PerpPosition is one of a user's 8 perp position slots.
type PerpPosition struct {
	LastCumulativeFundingRate int64
	BaseAssetAmount           int64
	QuoteAssetAmount          int64
	QuoteBreakEvenAmount      int64
	QuoteEntryAmount          int64
	OpenBids                  int64
	OpenAsks                  int64
	SettledPnl                int64
	LpShares                  uint64
	LastBaseAssetAmountPerLp  int64
	LastQuoteAssetAmountPerLp int64
	RemainderBaseAssetAmount  int32
	MarketIndex               uint16
	OpenOrders                uint8
	PerLpBase                 int8
}

// IsAvailable reports whether the slot is the empty sentinel.
func (p *PerpPosition) IsAvailable() bool {
	return p.BaseAssetAmount == 0 && p.OpenOrders == 0 && p.LpShares == 0
}

// IsOpenPosition reports whether the slot carries exposure.
func (p *PerpPosition) IsOpenPosition() bool {
	return p.BaseAssetAmount != 0
}

// User is the packed sub-account record: positions, orders and status flags.
// It is created by a user-initiated instruction and mutated only by the
// program; the SDK holds a read-only mirror.
type User struct {
	Authority              solana.PublicKey
	Delegate               solana.PublicKey
	Name                   [32]uint8
	SpotPositions          [8]SpotPosition
	PerpPositions          [8]PerpPosition
	Orders                 [32]Order
	LastAddPerpLpSharesTs  int64
	TotalDeposits          uint64
	TotalWithdraws         uint64
	TotalSocialLoss        uint64
	SettledPerpPnl         int64
	CumulativeSpotFees     int64
	CumulativePerpFunding  int64
	LiquidationMarginFreed uint64
	LastActiveSlot         uint64
	NextOrderId            uint32
	MaxMarginRatio         uint32
	NextLiquidationId      uint16
	SubAccountId           uint16
	Status                 uint8
	IsMarginTradingEnabled bool
	Idle                   bool
	OpenOrders             uint8
	HasOpenOrder           bool
	OpenAuctions           uint8
	HasOpenAuction         bool
	Padding                [21]uint8
}

// DisplayName returns the account name with trailing padding removed.
func (u *User) DisplayName() string {
	return strings.TrimRight(string(u.Name[:]), "\x00 ")
}

// OpenOrdersList returns the user's live orders, skipping empty slots.
func (u *User) OpenOrdersList() []Order {
	out := make([]Order, 0, u.OpenOrders)
	for i := range u.Orders {
		if u.Orders[i].IsOpen() {
			out = append(out, u.Orders[i])
		}
	}
	return out
}

// ActiveSpotPositions returns the non-empty spot position slots.
func (u *User) ActiveSpotPositions() []SpotPosition {
	out := make([]SpotPosition, 0, len(u.SpotPositions))
	for i := range u.SpotPositions {
		if !u.SpotPositions[i].IsAvailable() {
			out = append(out, u.SpotPositions[i])
		}
	}
	return out
}

// ActivePerpPositions returns the non-empty perp position slots.
func (u *User) ActivePerpPositions() []PerpPosition {
	out := make([]PerpPosition, 0, len(u.PerpPositions))
	for i := range u.PerpPositions {
		if !u.PerpPositions[i].IsAvailable() {
			out = append(out, u.PerpPositions[i])
		}
	}
	return out
}

// OrderByID returns the live order with the given program-assigned id.
func (u *User) OrderByID(orderId uint32) (Order, bool) {
	for i := range u.Orders {
		if u.Orders[i].OrderId == orderId && u.Orders[i].IsOpen() {
			return u.Orders[i], true
		}
	}
	return Order{}, false
}

// OrderByUserID returns the live order with the given caller-assigned id.
func (u *User) OrderByUserID(userOrderId uint8) (Order, bool) {
	for i := range u.Orders {
		if u.Orders[i].UserOrderId == userOrderId && u.Orders[i].IsOpen() {
			return u.Orders[i], true
		}
	}
	return Order{}, false
}

// UserStats is the per-authority aggregate account.
type UserStats struct {
	Authority              solana.PublicKey
	Referrer               solana.PublicKey
	TotalFeePaid           uint64
	TotalFeeRebate         uint64
	TotalTokenDiscount     uint64
	TotalRefereeDiscount   uint64
	TotalReferrerReward    uint64
	CurrentEpochReferrerReward uint64
	NextEpochTs            int64
	MakerVolume30d         uint64
	TakerVolume30d         uint64
	FillerVolume30d        uint64
	LastMakerVolume30dTs   int64
	LastTakerVolume30dTs   int64
	LastFillerVolume30dTs  int64
	IfStakedQuoteAssetAmount uint64
	NumberOfSubAccounts    uint16
	NumberOfSubAccountsCreated uint16
	IsReferrer             bool
	DisableUpdatePerpBidAskTwap bool
	Padding                [50]uint8
}
