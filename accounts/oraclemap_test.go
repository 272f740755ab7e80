package accounts

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/vortex-labs/vortex-go/stream"
	"github.com/vortex-labs/vortex-go/types"
)

// TestOracleMapSync fetches every registered oracle in one call and stamps
// all entries with the uniform response slot.
func TestOracleMapSync(t *testing.T) {
	oracleA := testPubkey("oracle-a")
	oracleB := testPubkey("oracle-b")
	fetcher := &fakeFetcher{
		accountData: map[solana.PublicKey][]byte{
			oracleA: nil, // filled below
			oracleB: nil,
		},
		slot: 77,
	}
	// quote-asset oracles decode from any bytes
	fetcher.accountData[oracleA] = []byte{0}
	fetcher.accountData[oracleB] = []byte{0}

	m := NewOracleMap(fetcher, stream.Options{},
		[]types.OracleInfo{{MarketIndex: 0, Pubkey: oracleA, Source: types.OracleSourceQuoteAsset}},
		[]types.OracleInfo{{MarketIndex: 0, Pubkey: oracleB, Source: types.OracleSourceQuoteAsset}},
	)
	if err := m.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if m.Size() != 2 {
		t.Fatalf("expected 2 prices, got %d", m.Size())
	}
	got, ok := m.Get(oracleA)
	if !ok || got.Slot != 77 {
		t.Errorf("expected oracle A at slot 77, got %d", got.Slot)
	}
	if got.Data.Price != types.PricePrecision {
		t.Errorf("expected unit price, got %d", got.Data.Price)
	}
}

// TestOracleMapDecodeFailureKeepsEntry verifies a bad update leaves the
// cached price untouched.
func TestOracleMapDecodeFailureKeepsEntry(t *testing.T) {
	oracle := testPubkey("oracle-pyth")
	m := NewOracleMap(&fakeFetcher{}, stream.Options{},
		[]types.OracleInfo{{MarketIndex: 0, Pubkey: oracle, Source: types.OracleSourcePyth}}, nil)

	m.handleUpdate(stream.AccountUpdate{Pubkey: oracle, Data: []byte{1, 2, 3}, Slot: 5})
	if m.Contains(oracle) {
		t.Error("undecodable update should not create an entry")
	}
}

// TestOracleMapMigration exercises add_oracle + update_perp_oracle: the old
// entry is retained and the market re-points to the new oracle.
func TestOracleMapMigration(t *testing.T) {
	oldOracle := testPubkey("old-oracle")
	newOracle := testPubkey("new-oracle")
	m := NewOracleMap(&fakeFetcher{}, stream.Options{},
		[]types.OracleInfo{{MarketIndex: 3, Pubkey: oldOracle, Source: types.OracleSourceQuoteAsset}}, nil)

	m.handleUpdate(stream.AccountUpdate{Pubkey: oldOracle, Data: []byte{0}, Slot: 9})

	if err := m.AddOracle(context.Background(), newOracle, types.OracleSourceQuoteAsset); err != nil {
		t.Fatalf("add oracle: %v", err)
	}
	m.UpdatePerpOracle(3, newOracle)

	current, ok := m.CurrentPerpOracle(3)
	if !ok || current != newOracle {
		t.Errorf("expected market 3 on new oracle, got %s", current)
	}
	if !m.Contains(oldOracle) {
		t.Error("old oracle entry should be retained")
	}

	m.handleUpdate(stream.AccountUpdate{Pubkey: newOracle, Data: []byte{0}, Slot: 12})
	if !m.Contains(newOracle) {
		t.Error("new oracle update should land after registration")
	}
}

// TestOracleMapIgnoresUnknownPubkey drops updates for unregistered oracles.
func TestOracleMapIgnoresUnknownPubkey(t *testing.T) {
	m := NewOracleMap(&fakeFetcher{}, stream.Options{}, nil, nil)
	m.handleUpdate(stream.AccountUpdate{Pubkey: testPubkey("stranger"), Data: []byte{0}, Slot: 1})
	if m.Size() != 0 {
		t.Error("unknown oracle update should be ignored")
	}
}
