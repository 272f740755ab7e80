package accounts

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/vortex-labs/vortex-go/stream"
	"github.com/vortex-labs/vortex-go/types"
)

var testProgram = testPubkey("test-program")

func testPubkey(seed string) solana.PublicKey {
	sum := sha256.Sum256([]byte(seed))
	return solana.PublicKeyFromBytes(sum[:])
}

// fakeFetcher serves canned accounts and counts calls.
type fakeFetcher struct {
	programAccounts []KeyedAccount
	accountData     map[solana.PublicKey][]byte
	slot            uint64

	programAccountsCalls int
	accountDataCalls     int
}

func (f *fakeFetcher) ProgramAccounts(ctx context.Context, filters []rpc.RPCFilter) ([]KeyedAccount, uint64, error) {
	f.programAccountsCalls++
	matched := make([]KeyedAccount, 0, len(f.programAccounts))
	for _, acc := range f.programAccounts {
		ok := true
		for _, filter := range filters {
			if !FilterMatches(filter, acc.Data) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, acc)
		}
	}
	return matched, f.slot, nil
}

func (f *fakeFetcher) MultipleAccounts(ctx context.Context, keys []solana.PublicKey) ([][]byte, uint64, error) {
	out := make([][]byte, len(keys))
	for i, key := range keys {
		out[i] = f.accountData[key]
	}
	return out, f.slot, nil
}

func (f *fakeFetcher) AccountData(ctx context.Context, key solana.PublicKey) ([]byte, uint64, error) {
	f.accountDataCalls++
	data, ok := f.accountData[key]
	if !ok {
		return nil, 0, types.ErrNotFound
	}
	return data, f.slot, nil
}

func perpMarketBytes(t *testing.T, index uint16, oracleSeed string) []byte {
	t.Helper()
	market := types.PerpMarket{
		Pubkey:      testPubkey("perp-market-pda"),
		MarketIndex: index,
		Status:      types.MarketStatusActive,
	}
	market.Amm.Oracle = testPubkey(oracleSeed)
	market.Amm.OracleSource = types.OracleSourcePyth
	data, err := types.EncodePerpMarket(&market)
	if err != nil {
		t.Fatalf("encode perp market: %v", err)
	}
	return data
}

// TestMarketMapStreamUpdates feeds fabricated updates for market perp-0:
// slot 100 lands, slot 99 is a no-op.
func TestMarketMapStreamUpdates(t *testing.T) {
	m := NewPerpMarketMap(&fakeFetcher{}, testProgram, stream.Options{})

	m.handleUpdate(stream.ProgramUpdate{
		Pubkey: testPubkey("perp-market-pda"),
		Data:   perpMarketBytes(t, 0, "oracle-a"),
		Slot:   100,
	})
	if m.Size() != 1 {
		t.Fatalf("expected size 1, got %d", m.Size())
	}
	got, ok := m.Get(0)
	if !ok || got.Slot != 100 {
		t.Fatalf("expected market 0 at slot 100, got slot %d", got.Slot)
	}

	m.handleUpdate(stream.ProgramUpdate{
		Pubkey: testPubkey("perp-market-pda"),
		Data:   perpMarketBytes(t, 0, "oracle-a"),
		Slot:   99,
	})
	got, _ = m.Get(0)
	if got.Slot != 100 {
		t.Errorf("stale update changed slot to %d", got.Slot)
	}
}

// TestMarketMapDropsUndecodableUpdate verifies a garbage payload is logged
// and discarded without disturbing the cache.
func TestMarketMapDropsUndecodableUpdate(t *testing.T) {
	m := NewPerpMarketMap(&fakeFetcher{}, testProgram, stream.Options{})

	m.handleUpdate(stream.ProgramUpdate{
		Pubkey: testPubkey("junk"),
		Data:   []byte{1, 2, 3},
		Slot:   10,
	})
	if m.Size() != 0 {
		t.Errorf("expected empty map, got %d entries", m.Size())
	}
}

// TestMarketMapSync verifies the bulk snapshot decodes each matching
// account and records the baseline slot.
func TestMarketMapSync(t *testing.T) {
	fetcher := &fakeFetcher{
		programAccounts: []KeyedAccount{
			{Pubkey: testPubkey("m0"), Data: perpMarketBytes(t, 0, "oracle-a")},
			{Pubkey: testPubkey("m1"), Data: perpMarketBytes(t, 1, "oracle-b")},
		},
		slot: 555,
	}
	m := NewPerpMarketMap(fetcher, testProgram, stream.Options{})

	if err := m.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if m.Size() != 2 {
		t.Fatalf("expected 2 markets, got %d", m.Size())
	}
	if m.LatestSlot() != 555 {
		t.Errorf("expected baseline slot 555, got %d", m.LatestSlot())
	}

	// a second sync is a no-op
	if err := m.Sync(context.Background()); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if fetcher.programAccountsCalls != 1 {
		t.Errorf("expected 1 RPC listing, got %d", fetcher.programAccountsCalls)
	}
}

// TestMarketMapOraclesProjection verifies oracles() exposes one binding per
// market with the market's oracle pubkey and source.
func TestMarketMapOraclesProjection(t *testing.T) {
	fetcher := &fakeFetcher{
		programAccounts: []KeyedAccount{
			{Pubkey: testPubkey("m0"), Data: perpMarketBytes(t, 0, "oracle-a")},
			{Pubkey: testPubkey("m1"), Data: perpMarketBytes(t, 1, "oracle-b")},
		},
		slot: 5,
	}
	m := NewPerpMarketMap(fetcher, testProgram, stream.Options{})
	if err := m.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	oracles := m.Oracles()
	if len(oracles) != 2 {
		t.Fatalf("expected 2 oracle bindings, got %d", len(oracles))
	}
	byIndex := map[uint16]types.OracleInfo{}
	for _, info := range oracles {
		byIndex[info.MarketIndex] = info
	}
	if byIndex[0].Pubkey != testPubkey("oracle-a") {
		t.Errorf("market 0 bound to wrong oracle")
	}
	if byIndex[1].Pubkey != testPubkey("oracle-b") {
		t.Errorf("market 1 bound to wrong oracle")
	}
	if byIndex[0].Source != types.OracleSourcePyth {
		t.Errorf("unexpected oracle source %v", byIndex[0].Source)
	}
}
