package stream

import (
	"crypto/sha256"
	"testing"

	"github.com/gagliardetto/solana-go"
)

func testPubkey(seed string) solana.PublicKey {
	sum := sha256.Sum256([]byte(seed))
	return solana.PublicKeyFromBytes(sum[:])
}

// TestAccountFilterFullMode requires every criterion to hold.
func TestAccountFilterFullMode(t *testing.T) {
	pk := testPubkey("filtered-account")
	disc := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	data := append(append([]byte{}, disc...), 0xAA, 0xBB, 0xCC)

	filter := FullAccountFilter().
		WithDiscriminator(disc).
		WithMemcmp(GeyserMemcmp{Offset: 9, Bytes: []byte{0xBB}}).
		WithAccounts(pk)

	if !filter.Matches(pk, data) {
		t.Error("all criteria hold, filter should match")
	}
	if filter.Matches(testPubkey("other"), data) {
		t.Error("wrong pubkey should fail a full filter")
	}
	bad := append(append([]byte{}, disc...), 0xAA, 0x00, 0xCC)
	if filter.Matches(pk, bad) {
		t.Error("memcmp mismatch should fail a full filter")
	}
}

// TestAccountFilterPartialMode matches on any one criterion.
func TestAccountFilterPartialMode(t *testing.T) {
	pk := testPubkey("partial-account")
	filter := PartialAccountFilter().
		WithDiscriminator([]byte{9, 9, 9, 9, 9, 9, 9, 9}).
		WithAccounts(pk)

	if !filter.Matches(pk, []byte{0}) {
		t.Error("pubkey criterion alone should match a partial filter")
	}
	if !filter.Matches(testPubkey("other"), []byte{9, 9, 9, 9, 9, 9, 9, 9, 1}) {
		t.Error("discriminator criterion alone should match a partial filter")
	}
	if filter.Matches(testPubkey("other"), []byte{0, 0, 0, 0, 0, 0, 0, 0}) {
		t.Error("no criterion holds, partial filter should not match")
	}
}

// TestAccountFilterFirehose matches everything.
func TestAccountFilterFirehose(t *testing.T) {
	if !FullAccountFilter().Matches(testPubkey("anything"), []byte{1}) {
		t.Error("criteria-less full filter should match every account")
	}
}

// TestAccountFilterShortData never panics on truncated payloads.
func TestAccountFilterShortData(t *testing.T) {
	filter := FullAccountFilter().WithDiscriminator([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	if filter.Matches(testPubkey("x"), []byte{1, 2}) {
		t.Error("short data cannot match a discriminator filter")
	}
}

// TestOptionsDefaults verifies the reconnect policy floor.
func TestOptionsDefaults(t *testing.T) {
	opts, _ := Options{MaxAttempts: 1}.withDefaults("test")
	if opts.MaxAttempts < 5 {
		t.Errorf("max attempts floor is 5, got %d", opts.MaxAttempts)
	}
	if opts.BaseDelay != defaultBaseDelay {
		t.Errorf("expected base delay %v, got %v", defaultBaseDelay, opts.BaseDelay)
	}
	if opts.MaxDelay < opts.BaseDelay {
		t.Error("delay cap must be at least the base delay")
	}
}
