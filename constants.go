// Package vortex is the client SDK for the Vortex decentralized
// perpetual-futures and spot exchange. It maintains a low-latency mirror of
// the on-chain program state and composes signed transactions against it.
package vortex

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/vortex-labs/vortex-go/types"
)

// ProgramID is the on-chain exchange program.
var ProgramID = solana.MustPublicKeyFromBase58("4f6sWH7dQrbnpqWnvwY6qTxtdEgEHKmzSUGANhe9Rp1q")

// TokenProgramID is the SPL token program consumed by deposits/withdrawals.
var TokenProgramID = solana.TokenProgramID

// Fixed-point precisions shared with the program.
const (
	PricePrecision = types.PricePrecision
	BasePrecision  = 1_000_000_000
	QuotePrecision = 1_000_000
)

// marketLookupTable returns the published address-lookup-table for a
// deployment context.
func marketLookupTable(context types.Context) solana.PublicKey {
	switch context {
	case types.ContextMainNet:
		return solana.MustPublicKeyFromBase58("GjpT8ttt9QCSCSfZEr6VgDfDpxUYA9U8ihCYMjW3dSNv")
	default:
		return solana.MustPublicKeyFromBase58("4oJKBLm2t9jP2n3nwTjJnouYCJMx6JS3o2zw65m4Do4Q")
	}
}

func findProgramAddress(seeds [][]byte) solana.PublicKey {
	addr, _, err := solana.FindProgramAddress(seeds, ProgramID)
	if err != nil {
		panic(fmt.Sprintf("derive program address: %v", err))
	}
	return addr
}

func indexSeed(index uint16) []byte {
	seed := make([]byte, 2)
	binary.LittleEndian.PutUint16(seed, index)
	return seed
}

// StateAccount returns the program state singleton PDA.
func StateAccount() solana.PublicKey {
	return findProgramAddress([][]byte{[]byte("vortex_state")})
}

// DeriveSpotMarketAccount returns the PDA of a spot market by index.
func DeriveSpotMarketAccount(marketIndex uint16) solana.PublicKey {
	return findProgramAddress([][]byte{[]byte("spot_market"), indexSeed(marketIndex)})
}

// DerivePerpMarketAccount returns the PDA of a perp market by index.
func DerivePerpMarketAccount(marketIndex uint16) solana.PublicKey {
	return findProgramAddress([][]byte{[]byte("perp_market"), indexSeed(marketIndex)})
}

// DeriveSpotMarketVault returns the PDA of a spot market's token vault.
func DeriveSpotMarketVault(marketIndex uint16) solana.PublicKey {
	return findProgramAddress([][]byte{[]byte("spot_market_vault"), indexSeed(marketIndex)})
}

// DeriveSignerAccount returns the program's signer PDA.
func DeriveSignerAccount() solana.PublicKey {
	return findProgramAddress([][]byte{[]byte("vortex_signer")})
}

// ProgramData is the static-ish on-chain metadata fetched at startup:
// market configs in index-aligned slices and the published lookup table.
type ProgramData struct {
	spotMarkets []types.SpotMarket
	perpMarkets []types.PerpMarket
	lookupTable LookupTable
}

// LookupTable is a published address lookup table used to shrink versioned
// transactions.
type LookupTable struct {
	Key       solana.PublicKey
	Addresses []solana.PublicKey
}

// NewProgramData builds ProgramData from fetched market sets. Market indices
// form a dense contiguous range: after sorting, markets[i].MarketIndex == i
// must hold for both kinds.
func NewProgramData(spot []types.SpotMarket, perp []types.PerpMarket, lookupTable LookupTable) (*ProgramData, error) {
	sort.Slice(spot, func(i, j int) bool { return spot[i].MarketIndex < spot[j].MarketIndex })
	sort.Slice(perp, func(i, j int) bool { return perp[i].MarketIndex < perp[j].MarketIndex })
	for i := range spot {
		if int(spot[i].MarketIndex) != i {
			return nil, fmt.Errorf("spot market indexes unaligned at %d", i)
		}
	}
	for i := range perp {
		if int(perp[i].MarketIndex) != i {
			return nil, fmt.Errorf("perp market indexes unaligned at %d", i)
		}
	}
	return &ProgramData{spotMarkets: spot, perpMarkets: perp, lookupTable: lookupTable}, nil
}

// SpotMarketConfigs returns all known spot market configs.
func (p *ProgramData) SpotMarketConfigs() []types.SpotMarket { return p.spotMarkets }

// PerpMarketConfigs returns all known perp market configs.
func (p *ProgramData) PerpMarketConfigs() []types.PerpMarket { return p.perpMarkets }

// SpotMarketConfig returns the spot market config at index. Lookup is O(1)
// thanks to the index-aligned layout.
func (p *ProgramData) SpotMarketConfig(index uint16) (*types.SpotMarket, bool) {
	if int(index) >= len(p.spotMarkets) {
		return nil, false
	}
	return &p.spotMarkets[index], true
}

// PerpMarketConfig returns the perp market config at index.
func (p *ProgramData) PerpMarketConfig(index uint16) (*types.PerpMarket, bool) {
	if int(index) >= len(p.perpMarkets) {
		return nil, false
	}
	return &p.perpMarkets[index], true
}

// LookupTable returns the published lookup table.
func (p *ProgramData) LookupTable() LookupTable { return p.lookupTable }

// MarketBySymbol resolves a market id by its display symbol. Perp symbols
// carry a dash (e.g. "SOL-PERP"); spot symbols do not. The lookup is linear,
// so callers should cache results.
func (p *ProgramData) MarketBySymbol(symbol string) (types.MarketId, bool) {
	if strings.Contains(symbol, "-") {
		for i := range p.perpMarkets {
			if strings.EqualFold(p.perpMarkets[i].Symbol(), symbol) {
				return types.PerpMarketId(p.perpMarkets[i].MarketIndex), true
			}
		}
		return types.MarketId{}, false
	}
	for i := range p.spotMarkets {
		if strings.EqualFold(p.spotMarkets[i].Symbol(), symbol) {
			return types.SpotMarketId(p.spotMarkets[i].MarketIndex), true
		}
	}
	return types.MarketId{}, false
}

// lookupTableMetaSize is the byte length of the on-chain lookup table
// header preceding the packed address list.
const lookupTableMetaSize = 56

// DecodeLookupTable parses a raw address-lookup-table account.
func DecodeLookupTable(key solana.PublicKey, data []byte) (LookupTable, error) {
	if len(data) < lookupTableMetaSize || (len(data)-lookupTableMetaSize)%32 != 0 {
		return LookupTable{}, fmt.Errorf("%w: malformed lookup table (%d bytes)", types.ErrInvalidAccount, len(data))
	}
	body := data[lookupTableMetaSize:]
	addresses := make([]solana.PublicKey, 0, len(body)/32)
	decoder := bin.NewBinDecoder(body)
	for decoder.Remaining() >= 32 {
		raw, err := decoder.ReadNBytes(32)
		if err != nil {
			return LookupTable{}, err
		}
		addresses = append(addresses, solana.PublicKeyFromBytes(raw))
	}
	return LookupTable{Key: key, Addresses: addresses}, nil
}
