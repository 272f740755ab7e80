package accounts

import (
	"bytes"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/vortex-labs/vortex-go/types"
)

// Byte offsets of user account status flags used by transport-level filters.
// The non-idle filter prunes dormant accounts before they reach the wire.
const (
	userIdleOffset        = 4350
	userHasOrderOffset    = 4352
	userHasAuctionOffset  = 4354
)

func memcmpFilter(offset uint64, data []byte) rpc.RPCFilter {
	return rpc.RPCFilter{
		Memcmp: &rpc.RPCFilterMemcmp{
			Offset: offset,
			Bytes:  solana.Base58(data),
		},
	}
}

// UserFilter matches user accounts by discriminator.
func UserFilter() rpc.RPCFilter {
	return memcmpFilter(0, types.UserDiscriminator[:])
}

// NonIdleUserFilter matches user accounts whose idle flag is unset.
func NonIdleUserFilter() rpc.RPCFilter {
	return memcmpFilter(userIdleOffset, []byte{0})
}

// UserWithOrderFilter matches user accounts with at least one open order.
func UserWithOrderFilter() rpc.RPCFilter {
	return memcmpFilter(userHasOrderOffset, []byte{1})
}

// UserWithAuctionFilter matches user accounts with a live auction.
func UserWithAuctionFilter() rpc.RPCFilter {
	return memcmpFilter(userHasAuctionOffset, []byte{1})
}

// MarketFilter matches market accounts of one kind by discriminator.
func MarketFilter(kind types.MarketType) rpc.RPCFilter {
	switch kind {
	case types.MarketTypePerp:
		return memcmpFilter(0, types.PerpMarketDiscriminator[:])
	default:
		return memcmpFilter(0, types.SpotMarketDiscriminator[:])
	}
}

// FilterMatches evaluates a memcmp filter against raw account bytes.
func FilterMatches(f rpc.RPCFilter, data []byte) bool {
	if f.Memcmp == nil {
		return true
	}
	end := f.Memcmp.Offset + uint64(len(f.Memcmp.Bytes))
	if uint64(len(data)) < end {
		return false
	}
	return bytes.Equal(data[f.Memcmp.Offset:end], f.Memcmp.Bytes)
}
