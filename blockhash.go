package vortex

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/vortex-labs/vortex-go/stream"
)

const blockhashWindow = 20

// BlockhashCache keeps a rolling window of recently observed block hashes,
// refreshed on an interval. Transaction signing reads the oldest hash still
// in the window: a deliberately stale choice that survives minor propagation
// delays between signing and landing.
type BlockhashCache struct {
	client  *rpc.Client
	refresh time.Duration
	log     zerolog.Logger

	mu     sync.RWMutex
	hashes []solana.Hash
	latest solana.Hash

	startOnce sync.Once
}

// NewBlockhashCache creates a cache refreshing every refresh interval
// (default 2s).
func NewBlockhashCache(client *rpc.Client, refresh time.Duration) *BlockhashCache {
	if refresh <= 0 {
		refresh = 2 * time.Second
	}
	return &BlockhashCache{
		client:  client,
		refresh: refresh,
		log:     stream.DefaultLogger().With().Str("component", "blockhash").Logger(),
		hashes:  make([]solana.Hash, 0, blockhashWindow),
	}
}

// Subscribe starts the refresh task. Idempotent.
func (b *BlockhashCache) Subscribe(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.refreshLoop(ctx)
	})
}

func (b *BlockhashCache) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(b.refresh)
	defer ticker.Stop()
	b.refreshOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.refreshOnce(ctx)
		}
	}
}

func (b *BlockhashCache) refreshOnce(ctx context.Context) {
	res, err := b.client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		b.log.Warn().Err(err).Msg("blockhash refresh failed")
		return
	}
	b.push(res.Value.Blockhash)
}

func (b *BlockhashCache) push(hash solana.Hash) {
	b.mu.Lock()
	b.latest = hash
	b.hashes = append(b.hashes, hash)
	if len(b.hashes) > blockhashWindow {
		b.hashes = b.hashes[1:]
	}
	b.mu.Unlock()
}

// Latest returns the most recently observed block hash.
func (b *BlockhashCache) Latest() solana.Hash {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest
}

// Valid returns the oldest hash of the rolling window, falling back to the
// latest when the window is empty.
func (b *BlockhashCache) Valid() solana.Hash {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.hashes) > 0 {
		return b.hashes[0]
	}
	return b.latest
}
