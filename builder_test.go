package vortex

import (
	"bytes"
	"crypto/sha256"
	"sort"
	"testing"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"

	"github.com/vortex-labs/vortex-go/types"
)

func testPubkey(seed string) solana.PublicKey {
	sum := sha256.Sum256([]byte(seed))
	return solana.PublicKeyFromBytes(sum[:])
}

// testProgramData builds an aligned set of 8 perp and 3 spot markets with
// deterministic pubkeys and oracles.
func testProgramData(t *testing.T) *ProgramData {
	t.Helper()
	spot := make([]types.SpotMarket, 3)
	for i := range spot {
		spot[i].MarketIndex = uint16(i)
		spot[i].Pubkey = testPubkey("spot-market-" + string(rune('0'+i)))
		spot[i].Oracle = testPubkey("spot-oracle-" + string(rune('0'+i)))
		spot[i].OracleSource = types.OracleSourceQuoteAsset
	}
	perp := make([]types.PerpMarket, 8)
	for i := range perp {
		perp[i].MarketIndex = uint16(i)
		perp[i].Pubkey = testPubkey("perp-market-" + string(rune('0'+i)))
		perp[i].Amm.Oracle = testPubkey("perp-oracle-" + string(rune('0'+i)))
		perp[i].Amm.OracleSource = types.OracleSourcePyth
	}
	programData, err := NewProgramData(spot, perp, LookupTable{Key: testPubkey("lookup-table")})
	if err != nil {
		t.Fatalf("program data: %v", err)
	}
	return programData
}

func testUserWithSpotPosition(marketIndex uint16) *types.User {
	user := &types.User{Authority: testPubkey("authority")}
	user.SpotPositions[0] = types.SpotPosition{
		ScaledBalance: 1_000_000,
		MarketIndex:   marketIndex,
		OpenOrders:    1,
	}
	return user
}

// remainingMetas strips the fixed per-instruction base accounts from a
// place_orders instruction, leaving the derived remaining accounts.
func remainingMetas(t *testing.T, ix solana.Instruction) []*solana.AccountMeta {
	t.Helper()
	accounts := ix.Accounts()
	const placeOrderBase = 3 // state, user, authority
	if len(accounts) < placeOrderBase {
		t.Fatalf("instruction has only %d accounts", len(accounts))
	}
	return accounts[placeOrderBase:]
}

// TestRemainingAccountsCanonicalOrder builds a "place perp order in market
// 7" tx for a user holding a spot position in market 2 and checks the
// remaining accounts: three oracles, two spot markets, one perp market, in
// canonical section order with lexicographic pubkeys, and only perp-7
// writable.
func TestRemainingAccountsCanonicalOrder(t *testing.T) {
	programData := testProgramData(t)
	user := testUserWithSpotPosition(2)
	builder := NewTransactionBuilder(programData, testPubkey("sub-account"), user, false)

	order := types.OrderParams{
		OrderType:       types.OrderTypeLimit,
		MarketType:      types.MarketTypePerp,
		MarketIndex:     7,
		Direction:       types.PositionDirectionLong,
		BaseAssetAmount: 100,
	}
	builder.PlaceOrders(order)
	if builder.err != nil {
		t.Fatalf("builder error: %v", builder.err)
	}
	if len(builder.ixs) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(builder.ixs))
	}

	metas := remainingMetas(t, builder.ixs[0])

	oracleKeys := []solana.PublicKey{
		testPubkey("perp-oracle-7"),
		testPubkey("spot-oracle-2"),
		testPubkey("spot-oracle-0"), // quote spot oracle
	}
	sort.Slice(oracleKeys, func(i, j int) bool {
		return bytes.Compare(oracleKeys[i][:], oracleKeys[j][:]) < 0
	})
	spotKeys := []solana.PublicKey{
		testPubkey("spot-market-2"),
		testPubkey("spot-market-0"), // quote spot market
	}
	sort.Slice(spotKeys, func(i, j int) bool {
		return bytes.Compare(spotKeys[i][:], spotKeys[j][:]) < 0
	})
	expected := append(append(oracleKeys, spotKeys...), testPubkey("perp-market-7"))

	if len(metas) != len(expected) {
		t.Fatalf("expected %d remaining accounts, got %d", len(expected), len(metas))
	}
	for i, meta := range metas {
		if meta.PublicKey != expected[i] {
			t.Errorf("remaining account %d: expected %s, got %s", i, expected[i], meta.PublicKey)
		}
	}

	// only the traded perp market is writable
	for _, meta := range metas {
		writable := meta.PublicKey == testPubkey("perp-market-7")
		if meta.IsWritable != writable {
			t.Errorf("account %s writable=%v, expected %v", meta.PublicKey, meta.IsWritable, writable)
		}
	}
}

// TestBuildDeterminism verifies two logically equivalent builds emit
// byte-identical instruction data and account lists.
func TestBuildDeterminism(t *testing.T) {
	programData := testProgramData(t)
	order := types.OrderParams{
		OrderType:       types.OrderTypeLimit,
		MarketType:      types.MarketTypePerp,
		MarketIndex:     7,
		Direction:       types.PositionDirectionLong,
		BaseAssetAmount: 100,
	}

	build := func() solana.Instruction {
		user := testUserWithSpotPosition(2)
		builder := NewTransactionBuilder(programData, testPubkey("sub-account"), user, false)
		builder.PlaceOrders(order)
		if builder.err != nil {
			t.Fatalf("builder error: %v", builder.err)
		}
		return builder.ixs[0]
	}

	first, second := build(), build()

	dataA, err := first.Data()
	if err != nil {
		t.Fatalf("instruction data: %v", err)
	}
	dataB, _ := second.Data()
	if !bytes.Equal(dataA, dataB) {
		t.Error("instruction data differs between equivalent builds")
	}

	accountsA, accountsB := first.Accounts(), second.Accounts()
	if len(accountsA) != len(accountsB) {
		t.Fatalf("account list lengths differ: %d vs %d", len(accountsA), len(accountsB))
	}
	for i := range accountsA {
		if accountsA[i].PublicKey != accountsB[i].PublicKey ||
			accountsA[i].IsWritable != accountsB[i].IsWritable ||
			accountsA[i].IsSigner != accountsB[i].IsSigner {
			t.Errorf("account %d differs between equivalent builds", i)
		}
	}
}

// TestRemainingAccountsDedup verifies a market included for several reasons
// appears once, with the writable flag from the strongest reason.
func TestRemainingAccountsDedup(t *testing.T) {
	programData := testProgramData(t)
	// position in the same market the order touches
	user := &types.User{Authority: testPubkey("authority")}
	user.PerpPositions[0] = types.PerpPosition{BaseAssetAmount: 5, MarketIndex: 7, OpenOrders: 1}
	builder := NewTransactionBuilder(programData, testPubkey("sub-account"), user, false)

	builder.PlaceOrders(types.OrderParams{
		MarketType:      types.MarketTypePerp,
		MarketIndex:     7,
		BaseAssetAmount: 1,
	})

	metas := remainingMetas(t, builder.ixs[0])
	count := 0
	for _, meta := range metas {
		if meta.PublicKey == testPubkey("perp-market-7") {
			count++
			if !meta.IsWritable {
				t.Error("market touched by the instruction must stay writable")
			}
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one inclusion of perp-market-7, got %d", count)
	}
}

// TestBuilderUnknownMarket surfaces composition against a missing market
// config as a build error.
func TestBuilderUnknownMarket(t *testing.T) {
	programData := testProgramData(t)
	user := &types.User{Authority: testPubkey("authority")}
	builder := NewTransactionBuilder(programData, testPubkey("sub-account"), user, false)

	builder.PlaceOrders(types.OrderParams{
		MarketType:  types.MarketTypePerp,
		MarketIndex: 99,
	})
	if _, err := builder.Build(); err == nil {
		t.Fatal("expected error for unknown market")
	}
}

// TestBuilderDelegatedAuthority verifies the fee payer switches to the
// delegate when building for delegated signing.
func TestBuilderDelegatedAuthority(t *testing.T) {
	programData := testProgramData(t)
	user := &types.User{
		Authority: testPubkey("authority"),
		Delegate:  testPubkey("delegate"),
	}

	own := NewTransactionBuilder(programData, testPubkey("sub-account"), user, false)
	if own.authority != testPubkey("authority") {
		t.Error("expected authority signer")
	}
	delegated := NewTransactionBuilder(programData, testPubkey("sub-account"), user, true)
	if delegated.authority != testPubkey("delegate") {
		t.Error("expected delegate signer")
	}
}

// TestPriorityFeePrefix verifies the compute-budget instructions are
// prepended ahead of the payload.
func TestPriorityFeePrefix(t *testing.T) {
	programData := testProgramData(t)
	user := &types.User{Authority: testPubkey("authority")}
	builder := NewTransactionBuilder(programData, testPubkey("sub-account"), user, false)

	builder.CancelAllOrders().WithPriorityFee(1_000, 200_000)
	if len(builder.ixs) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(builder.ixs))
	}
	if builder.ixs[0].ProgramID() != computebudget.ProgramID {
		t.Errorf("expected compute budget prefix, got %s", builder.ixs[0].ProgramID())
	}
	if builder.ixs[2].ProgramID() != ProgramID {
		t.Errorf("expected payload last, got %s", builder.ixs[2].ProgramID())
	}
}

// TestProgramDataAlignment rejects market sets with index gaps.
func TestProgramDataAlignment(t *testing.T) {
	spot := []types.SpotMarket{{MarketIndex: 1}}
	if _, err := NewProgramData(spot, nil, LookupTable{}); err == nil {
		t.Fatal("expected alignment error for sparse indices")
	}
}
