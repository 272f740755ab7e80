package accounts

import (
	"sync"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"

	"github.com/vortex-labs/vortex-go/types"
)

const cacheShards = 16 // power of two

// SlotCache is a sharded concurrent map of slot-stamped values. Reads are
// value copies and never block each other; a write blocks only the shard
// holding its key.
//
// The stored slot for any key is non-decreasing: InsertIfNewer is a
// compare-and-swap against the stored slot, and an equal-slot write
// overwrites because the later packet of the same slot is considered more
// authoritative.
type SlotCache[K comparable, V any] struct {
	shards     [cacheShards]cacheShard[K, V]
	hash       func(K) uint32
	latestSlot atomic.Uint64
}

type cacheShard[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]types.DataAndSlot[V]
}

// NewSlotCache creates a cache using hash to assign keys to shards.
func NewSlotCache[K comparable, V any](hash func(K) uint32) *SlotCache[K, V] {
	c := &SlotCache[K, V]{hash: hash}
	for i := range c.shards {
		c.shards[i].entries = make(map[K]types.DataAndSlot[V])
	}
	return c
}

func (c *SlotCache[K, V]) shard(key K) *cacheShard[K, V] {
	return &c.shards[c.hash(key)&(cacheShards-1)]
}

// Get returns a snapshot copy of the entry for key.
func (c *SlotCache[K, V]) Get(key K) (types.DataAndSlot[V], bool) {
	s := c.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok
}

// InsertIfNewer stores value at slot unless a strictly newer slot is already
// recorded for key. Returns whether the write happened.
func (c *SlotCache[K, V]) InsertIfNewer(key K, value V, slot uint64) bool {
	s := c.shard(key)
	s.mu.Lock()
	if existing, ok := s.entries[key]; ok && slot < existing.Slot {
		s.mu.Unlock()
		return false
	}
	s.entries[key] = types.DataAndSlot[V]{Data: value, Slot: slot}
	s.mu.Unlock()

	for {
		latest := c.latestSlot.Load()
		if slot <= latest || c.latestSlot.CompareAndSwap(latest, slot) {
			return true
		}
	}
}

// Contains reports whether key has an entry.
func (c *SlotCache[K, V]) Contains(key K) bool {
	s := c.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[key]
	return ok
}

// Size returns the number of entries.
func (c *SlotCache[K, V]) Size() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Values returns a snapshot of all stored values.
func (c *SlotCache[K, V]) Values() []V {
	out := make([]V, 0, c.Size())
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		for _, v := range s.entries {
			out = append(out, v.Data)
		}
		s.mu.RUnlock()
	}
	return out
}

// Keys returns a snapshot of all keys.
func (c *SlotCache[K, V]) Keys() []K {
	out := make([]K, 0, c.Size())
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		for k := range s.entries {
			out = append(out, k)
		}
		s.mu.RUnlock()
	}
	return out
}

// Clear drops every entry and resets the latest slot.
func (c *SlotCache[K, V]) Clear() {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		s.entries = make(map[K]types.DataAndSlot[V])
		s.mu.Unlock()
	}
	c.latestSlot.Store(0)
}

// LatestSlot returns the highest slot observed across all entries.
func (c *SlotCache[K, V]) LatestSlot() uint64 {
	return c.latestSlot.Load()
}

// hashUint16 shards dense small integer keys.
func hashUint16(k uint16) uint32 {
	return uint32(k)
}

// hashPubkey shards account keys by their first word.
func hashPubkey(k solana.PublicKey) uint32 {
	return uint32(k[0]) | uint32(k[1])<<8 | uint32(k[2])<<16 | uint32(k[3])<<24
}
