package accounts

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/vortex-labs/vortex-go/stream"
	"github.com/vortex-labs/vortex-go/types"
)

func userBytes(t *testing.T, authoritySeed string, subAccountId uint16) []byte {
	t.Helper()
	user := types.User{
		Authority:    testPubkey(authoritySeed),
		SubAccountId: subAccountId,
	}
	data, err := types.EncodeUser(&user)
	if err != nil {
		t.Fatalf("encode user: %v", err)
	}
	return data
}

// TestUserMapSyncThenStream starts from a synced population of three users
// at slot 10 and streams one update at slot 20: the updated key advances,
// the others keep their sync slot.
func TestUserMapSyncThenStream(t *testing.T) {
	userA := testPubkey("user-a")
	userB := testPubkey("user-b")
	userC := testPubkey("user-c")
	fetcher := &fakeFetcher{
		programAccounts: []KeyedAccount{
			{Pubkey: userA, Data: userBytes(t, "auth-a", 0)},
			{Pubkey: userB, Data: userBytes(t, "auth-b", 0)},
			{Pubkey: userC, Data: userBytes(t, "auth-c", 0)},
		},
		slot: 10,
	}
	m := NewUserMap(fetcher, testProgram, stream.Options{})
	if err := m.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if m.Size() != 3 {
		t.Fatalf("expected 3 users, got %d", m.Size())
	}

	m.handleUpdate(stream.ProgramUpdate{Pubkey: userA, Data: userBytes(t, "auth-a", 0), Slot: 20})

	if m.LatestSlot() != 20 {
		t.Errorf("expected latest slot 20, got %d", m.LatestSlot())
	}
	a, _ := m.Get(userA)
	if a.Slot != 20 {
		t.Errorf("expected user A at slot 20, got %d", a.Slot)
	}
	b, _ := m.Get(userB)
	if b.Slot != 10 {
		t.Errorf("expected user B at slot 10, got %d", b.Slot)
	}
}

// TestUserMapMustGet verifies an uncached key triggers exactly one RPC
// fetch, and the second call is served from the cache.
func TestUserMapMustGet(t *testing.T) {
	pubkey := testPubkey("late-user")
	fetcher := &fakeFetcher{
		accountData: map[solana.PublicKey][]byte{
			pubkey: userBytes(t, "late-auth", 3),
		},
		slot: 42,
	}
	m := NewUserMap(fetcher, testProgram, stream.Options{})

	user, err := m.MustGet(context.Background(), pubkey)
	if err != nil {
		t.Fatalf("must get: %v", err)
	}
	if user.SubAccountId != 3 {
		t.Errorf("expected sub-account 3, got %d", user.SubAccountId)
	}
	if fetcher.accountDataCalls != 1 {
		t.Fatalf("expected 1 fetch, got %d", fetcher.accountDataCalls)
	}

	if _, err := m.MustGet(context.Background(), pubkey); err != nil {
		t.Fatalf("second must get: %v", err)
	}
	if fetcher.accountDataCalls != 1 {
		t.Errorf("second call should not fetch, got %d calls", fetcher.accountDataCalls)
	}
}

// TestUserMapMustGetMissing surfaces not-found to the caller.
func TestUserMapMustGetMissing(t *testing.T) {
	m := NewUserMap(&fakeFetcher{}, testProgram, stream.Options{})
	if _, err := m.MustGet(context.Background(), testPubkey("nobody")); err == nil {
		t.Fatal("expected error for missing account")
	}
}

// TestUserMapFilters verifies the mandatory transport filters select
// exactly the non-idle user accounts.
func TestUserMapFilters(t *testing.T) {
	live := userBytes(t, "auth-live", 0)

	idleUser := types.User{Authority: testPubkey("auth-idle"), Idle: true}
	idle, err := types.EncodeUser(&idleUser)
	if err != nil {
		t.Fatalf("encode idle user: %v", err)
	}

	filters := []struct {
		name    string
		data    []byte
		matches bool
	}{
		{"live user", live, true},
		{"idle user", idle, false},
		{"foreign account", []byte("not a user account at all"), false},
	}
	for _, tc := range filters {
		t.Run(tc.name, func(t *testing.T) {
			got := FilterMatches(UserFilter(), tc.data) && FilterMatches(NonIdleUserFilter(), tc.data)
			if got != tc.matches {
				t.Errorf("expected match=%v", tc.matches)
			}
		})
	}
}
