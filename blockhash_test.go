package vortex

import (
	"crypto/sha256"
	"testing"

	"github.com/gagliardetto/solana-go"
)

func testHash(seed string) solana.Hash {
	sum := sha256.Sum256([]byte(seed))
	return solana.Hash(sum)
}

// TestBlockhashWindow verifies Latest returns the newest observed hash and
// Valid the oldest still inside the rolling window.
func TestBlockhashWindow(t *testing.T) {
	cache := NewBlockhashCache(nil, 0)

	if cache.Valid() != (solana.Hash{}) {
		t.Error("empty cache should return the zero hash")
	}

	first := testHash("hash-0")
	cache.push(first)
	if cache.Latest() != first || cache.Valid() != first {
		t.Error("single entry should be both latest and valid")
	}

	var last solana.Hash
	for i := 1; i < blockhashWindow; i++ {
		last = testHash("hash-" + string(rune('0'+i%10)) + string(rune('a'+i)))
		cache.push(last)
	}
	if cache.Latest() != last {
		t.Error("latest should be the newest push")
	}
	if cache.Valid() != first {
		t.Error("valid should be the oldest hash in the window")
	}

	// one more push rolls the oldest out
	overflow := testHash("hash-overflow")
	cache.push(overflow)
	if cache.Valid() == first {
		t.Error("oldest hash should have rolled out of the window")
	}
	if cache.Latest() != overflow {
		t.Error("latest should follow the newest push")
	}
}
