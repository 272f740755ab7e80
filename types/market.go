package types

import (
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// MarketStatus is the lifecycle state of a market, set by governance.
type MarketStatus uint8

const (
	MarketStatusInitialized MarketStatus = iota
	MarketStatusActive
	MarketStatusFundingPaused
	MarketStatusAmmPaused
	MarketStatusFillPaused
	MarketStatusWithdrawPaused
	MarketStatusReduceOnly
	MarketStatusSettlement
	MarketStatusDelisted
)

// HistoricalOracleData is the market's rolling view of its oracle.
type HistoricalOracleData struct {
	LastOraclePrice            int64
	LastOracleConf             uint64
	LastOracleDelay            int64
	LastOraclePriceTwap        int64
	LastOraclePriceTwap5min    int64
	LastOraclePriceTwapTs      int64
}

// AMM is the automated market maker state embedded in a perp market.
// Only the head of the record is interpreted; the numeric tail is opaque
// to the SDK and carried through for layout stability.
type AMM struct {
	Oracle                solana.PublicKey
	HistoricalOracleData  HistoricalOracleData
	BaseAssetReserve      bin.Uint128
	QuoteAssetReserve     bin.Uint128
	SqrtK                 bin.Uint128
	PegMultiplier         bin.Uint128
	CumulativeFundingRateLong  bin.Int128
	CumulativeFundingRateShort bin.Int128
	LastFundingRate       int64
	LastFundingRateTs     int64
	FundingPeriod         int64
	OrderStepSize         uint64
	OrderTickSize         uint64
	MinOrderSize          uint64
	MaxPositionSize       uint64
	BaseSpread            uint32
	MaxSpread             uint32
	OracleSource          OracleSource
	Padding               [163]uint8
}

// PerpMarket is the packed perpetual market record. Created and mutated only
// by protocol governance; the SDK is a read-only mirror.
type PerpMarket struct {
	Pubkey                    solana.PublicKey
	Amm                       AMM
	Name                      [32]uint8
	NumberOfUsersWithBase     uint32
	NumberOfUsers             uint32
	MarketIndex               uint16
	Status                    MarketStatus
	ContractTier              uint8
	MarginRatioInitial        uint32
	MarginRatioMaintenance    uint32
	ImfFactor                 uint32
	UnrealizedPnlImfFactor    uint32
	LiquidatorFee             uint32
	IfLiquidationFee          uint32
	QuoteSpotMarketIndex      uint16
	Padding                   [46]uint8
}

// MarketKind implements the market accessor used by generic market maps.
func (m PerpMarket) MarketKind() MarketType { return MarketTypePerp }

// Index returns the dense market index.
func (m PerpMarket) Index() uint16 { return m.MarketIndex }

// OracleInfo returns the market's oracle binding.
func (m PerpMarket) OracleInfo() OracleInfo {
	return OracleInfo{MarketIndex: m.MarketIndex, Pubkey: m.Amm.Oracle, Source: m.Amm.OracleSource}
}

// Symbol returns the market name with trailing padding removed.
func (m PerpMarket) Symbol() string {
	return strings.TrimRight(string(m.Name[:]), "\x00 ")
}

// SpotMarket is the packed spot market record.
type SpotMarket struct {
	Pubkey                solana.PublicKey
	Oracle                solana.PublicKey
	Mint                  solana.PublicKey
	Vault                 solana.PublicKey
	Name                  [32]uint8
	HistoricalOracleData  HistoricalOracleData
	DepositBalance        bin.Uint128
	BorrowBalance         bin.Uint128
	CumulativeDepositInterest bin.Uint128
	CumulativeBorrowInterest  bin.Uint128
	TotalSocialLoss       bin.Uint128
	TotalQuoteSocialLoss  bin.Uint128
	WithdrawGuardThreshold uint64
	MaxTokenDeposits      uint64
	DepositTokenTwap      uint64
	BorrowTokenTwap       uint64
	UtilizationTwap       uint64
	LastInterestTs        uint64
	LastTwapTs            uint64
	ExpiryTs              int64
	OrderStepSize         uint64
	OrderTickSize         uint64
	MinOrderSize          uint64
	MaxPositionSize       uint64
	NextFillRecordId      uint64
	NextDepositRecordId   uint64
	InitialAssetWeight    uint32
	MaintenanceAssetWeight uint32
	InitialLiabilityWeight uint32
	MaintenanceLiabilityWeight uint32
	ImfFactor             uint32
	LiquidatorFee         uint32
	IfLiquidationFee      uint32
	OptimalUtilization    uint32
	OptimalBorrowRate     uint32
	MaxBorrowRate         uint32
	Decimals              uint32
	MarketIndex           uint16
	OrdersEnabled         bool
	OracleSource          OracleSource
	Status                MarketStatus
	AssetTier             uint8
	Padding               [86]uint8
}

// MarketKind implements the market accessor used by generic market maps.
func (m SpotMarket) MarketKind() MarketType { return MarketTypeSpot }

// Index returns the dense market index.
func (m SpotMarket) Index() uint16 { return m.MarketIndex }

// OracleInfo returns the market's oracle binding.
func (m SpotMarket) OracleInfo() OracleInfo {
	return OracleInfo{MarketIndex: m.MarketIndex, Pubkey: m.Oracle, Source: m.OracleSource}
}

// Symbol returns the market name with trailing padding removed.
func (m SpotMarket) Symbol() string {
	return strings.TrimRight(string(m.Name[:]), "\x00 ")
}

// FeeStructure is the program's fee schedule, consulted during composition.
type FeeStructure struct {
	FeeNumerator            uint64
	FeeDenominator          uint64
	MakerRebateNumerator    uint64
	MakerRebateDenominator  uint64
	FillerRewardNumerator   uint64
	FillerRewardDenominator uint64
	ReferrerRewardEpochUpperBound uint64
}

// State is the singleton program state account (PDA).
type State struct {
	Admin                       solana.PublicKey
	WhitelistMint               solana.PublicKey
	DiscountMint                solana.PublicKey
	Signer                      solana.PublicKey
	SrmVault                    solana.PublicKey
	PerpFeeStructure            FeeStructure
	SpotFeeStructure            FeeStructure
	OracleGuardRailsPriceDivergence [2]uint64
	OracleGuardRailsValidity    [4]uint64
	NumberOfAuthorities         uint64
	NumberOfSubAccounts         uint64
	LpCooldownTime              uint64
	LiquidationMarginBufferRatio uint32
	SettlementDuration          uint16
	NumberOfMarkets             uint16
	NumberOfSpotMarkets         uint16
	SignerNonce                 uint8
	MinPerpAuctionDuration      uint8
	DefaultMarketOrderTimeInForce uint8
	DefaultSpotAuctionDuration  uint8
	ExchangeStatus              uint8
	LiquidationDuration         uint8
	InitialPctToLiquidate       uint16
	MaxNumberOfSubAccounts      uint16
	MaxInitializeUserFee        uint16
	Padding                     [10]uint8
}
