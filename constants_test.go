package vortex

import (
	"testing"

	"github.com/vortex-labs/vortex-go/types"
)

// TestDecodeLookupTable parses the packed address list after the header.
func TestDecodeLookupTable(t *testing.T) {
	key := testPubkey("table")
	addrA := testPubkey("addr-a")
	addrB := testPubkey("addr-b")

	data := make([]byte, lookupTableMetaSize, lookupTableMetaSize+64)
	data = append(data, addrA[:]...)
	data = append(data, addrB[:]...)

	table, err := DecodeLookupTable(key, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if table.Key != key || len(table.Addresses) != 2 {
		t.Fatalf("unexpected table %+v", table)
	}
	if table.Addresses[0] != addrA || table.Addresses[1] != addrB {
		t.Error("addresses decoded out of order")
	}
}

// TestDecodeLookupTableMalformed rejects short or misaligned blobs.
func TestDecodeLookupTableMalformed(t *testing.T) {
	if _, err := DecodeLookupTable(testPubkey("t"), make([]byte, 10)); err == nil {
		t.Error("expected error for short table")
	}
	if _, err := DecodeLookupTable(testPubkey("t"), make([]byte, lookupTableMetaSize+5)); err == nil {
		t.Error("expected error for misaligned table")
	}
}

// TestMarketPDADerivations verifies index-keyed PDAs are distinct and
// stable.
func TestMarketPDADerivations(t *testing.T) {
	if DerivePerpMarketAccount(0) == DerivePerpMarketAccount(1) {
		t.Error("different indices must derive different perp accounts")
	}
	if DeriveSpotMarketAccount(0) == DerivePerpMarketAccount(0) {
		t.Error("spot and perp PDAs must differ")
	}
	if DeriveSpotMarketAccount(3) != DeriveSpotMarketAccount(3) {
		t.Error("derivation must be deterministic")
	}
	if StateAccount() != StateAccount() {
		t.Error("state PDA must be deterministic")
	}
}

// TestMarketBySymbol routes dashed symbols to perp markets.
func TestMarketBySymbol(t *testing.T) {
	spot := make([]types.SpotMarket, 1)
	spot[0].MarketIndex = 0
	copy(spot[0].Name[:], "USDC")
	perp := make([]types.PerpMarket, 1)
	perp[0].MarketIndex = 0
	copy(perp[0].Name[:], "SOL-PERP")

	programData, err := NewProgramData(spot, perp, LookupTable{})
	if err != nil {
		t.Fatalf("program data: %v", err)
	}

	market, ok := programData.MarketBySymbol("sol-perp")
	if !ok || market.Kind != types.MarketTypePerp {
		t.Errorf("expected perp market, got %+v ok=%v", market, ok)
	}
	market, ok = programData.MarketBySymbol("usdc")
	if !ok || market != types.QuoteSpotMarket {
		t.Errorf("expected quote spot market, got %+v ok=%v", market, ok)
	}
	if _, ok := programData.MarketBySymbol("MISSING"); ok {
		t.Error("unknown symbol should not resolve")
	}
}
