package accounts

import (
	"sync"
	"testing"
)

// TestInsertIfNewerMonotonicSlots verifies the observed slot for a fixed key
// never goes backward.
func TestInsertIfNewerMonotonicSlots(t *testing.T) {
	cache := NewSlotCache[uint16, string](hashUint16)

	if !cache.InsertIfNewer(0, "a", 100) {
		t.Fatal("first insert should succeed")
	}
	if cache.InsertIfNewer(0, "b", 99) {
		t.Error("stale insert should be rejected")
	}
	got, ok := cache.Get(0)
	if !ok || got.Slot != 100 || got.Data != "a" {
		t.Errorf("expected a@100, got %v@%d", got.Data, got.Slot)
	}

	slots := []uint64{100, 150, 120, 150, 200, 1}
	var lastSeen uint64
	for _, slot := range slots {
		cache.InsertIfNewer(0, "x", slot)
		got, _ := cache.Get(0)
		if got.Slot < lastSeen {
			t.Fatalf("slot went backward: %d after %d", got.Slot, lastSeen)
		}
		lastSeen = got.Slot
	}
}

// TestInsertIfNewerEqualSlotOverwrites verifies a same-slot write replaces
// the stored value: the later packet is considered more authoritative.
func TestInsertIfNewerEqualSlotOverwrites(t *testing.T) {
	cache := NewSlotCache[uint16, string](hashUint16)

	cache.InsertIfNewer(7, "first", 50)
	if !cache.InsertIfNewer(7, "second", 50) {
		t.Fatal("equal-slot insert should overwrite")
	}
	got, _ := cache.Get(7)
	if got.Data != "second" {
		t.Errorf("expected second, got %s", got.Data)
	}
}

// TestCacheSnapshotOperations exercises Size, Contains, Values and Clear.
func TestCacheSnapshotOperations(t *testing.T) {
	cache := NewSlotCache[uint16, int](hashUint16)

	for i := uint16(0); i < 10; i++ {
		cache.InsertIfNewer(i, int(i)*10, uint64(i)+1)
	}
	if cache.Size() != 10 {
		t.Errorf("expected size 10, got %d", cache.Size())
	}
	if !cache.Contains(3) {
		t.Error("expected key 3 present")
	}
	if cache.Contains(99) {
		t.Error("did not expect key 99")
	}
	if len(cache.Values()) != 10 {
		t.Errorf("expected 10 values, got %d", len(cache.Values()))
	}
	if cache.LatestSlot() != 10 {
		t.Errorf("expected latest slot 10, got %d", cache.LatestSlot())
	}

	cache.Clear()
	if cache.Size() != 0 || cache.LatestSlot() != 0 {
		t.Errorf("expected empty cache after clear, size=%d latest=%d", cache.Size(), cache.LatestSlot())
	}
}

// TestCacheConcurrentReadWrite hammers the cache from concurrent writers and
// readers; the race detector backs the shard-locking claim.
func TestCacheConcurrentReadWrite(t *testing.T) {
	cache := NewSlotCache[uint16, int](hashUint16)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				cache.InsertIfNewer(uint16(i%32), w, uint64(i))
			}
		}(w)
	}
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				cache.Get(uint16(i % 32))
				cache.Size()
			}
		}()
	}
	wg.Wait()

	if cache.Size() != 32 {
		t.Errorf("expected 32 entries, got %d", cache.Size())
	}
}
