package types

import "github.com/gagliardetto/solana-go"

// OrderAction is the kind of order mutation an OrderActionRecord reports.
type OrderAction uint8

const (
	OrderActionPlace OrderAction = iota
	OrderActionCancel
	OrderActionFill
	OrderActionTrigger
	OrderActionExpire
)

// OrderActionExplanation qualifies why an order action happened.
type OrderActionExplanation uint8

const (
	OrderActionExplanationNone OrderActionExplanation = iota
	OrderActionExplanationInsufficientFreeCollateral
	OrderActionExplanationOraclePriceBreachedLimitPrice
	OrderActionExplanationMarketOrderFilledToLimitPrice
	OrderActionExplanationOrderExpired
	OrderActionExplanationLiquidation
	OrderActionExplanationOrderFilledWithAmm
	OrderActionExplanationOrderFilledWithAmmJit
	OrderActionExplanationOrderFilledWithMatch
	OrderActionExplanationOrderFilledWithMatchJit
	OrderActionExplanationMarketExpired
	OrderActionExplanationRiskingIncreasingOrder
	OrderActionExplanationReduceOnlyOrderIncreasedPosition
)

// OrderRecord is emitted when an order is placed.
type OrderRecord struct {
	Ts    int64
	User  solana.PublicKey
	Order Order
}

// OrderActionRecord is emitted for every order mutation: fills, cancels,
// expiries. Optional fields use the packed optional encoding.
type OrderActionRecord struct {
	Ts                int64
	Action            OrderAction
	ActionExplanation OrderActionExplanation
	MarketIndex       uint16
	MarketType        MarketType

	Filler                   *solana.PublicKey `bin:"optional"`
	FillerReward             *uint64           `bin:"optional"`
	FillRecordId             *uint64           `bin:"optional"`
	BaseAssetAmountFilled    *uint64           `bin:"optional"`
	QuoteAssetAmountFilled   *uint64           `bin:"optional"`
	TakerFee                 *uint64           `bin:"optional"`
	MakerFee                 *int64            `bin:"optional"`
	ReferrerReward           *uint32           `bin:"optional"`
	QuoteAssetAmountSurplus  *int64            `bin:"optional"`
	SpotFulfillmentMethodFee *uint64           `bin:"optional"`

	Taker                                      *solana.PublicKey  `bin:"optional"`
	TakerOrderId                               *uint32            `bin:"optional"`
	TakerOrderDirection                        *PositionDirection `bin:"optional"`
	TakerOrderBaseAssetAmount                  *uint64            `bin:"optional"`
	TakerOrderCumulativeBaseAssetAmountFilled  *uint64            `bin:"optional"`
	TakerOrderCumulativeQuoteAssetAmountFilled *uint64            `bin:"optional"`

	Maker                                      *solana.PublicKey  `bin:"optional"`
	MakerOrderId                               *uint32            `bin:"optional"`
	MakerOrderDirection                        *PositionDirection `bin:"optional"`
	MakerOrderBaseAssetAmount                  *uint64            `bin:"optional"`
	MakerOrderCumulativeBaseAssetAmountFilled  *uint64            `bin:"optional"`
	MakerOrderCumulativeQuoteAssetAmountFilled *uint64            `bin:"optional"`

	OraclePrice int64
}

// FundingPaymentRecord is emitted when funding settles against a position.
type FundingPaymentRecord struct {
	Ts                        int64
	UserAuthority             solana.PublicKey
	User                      solana.PublicKey
	MarketIndex               uint16
	FundingPayment            int64
	BaseAssetAmount           int64
	UserLastCumulativeFunding int64
}
