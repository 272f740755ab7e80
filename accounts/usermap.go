package accounts

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/vortex-labs/vortex-go/stream"
	"github.com/vortex-labs/vortex-go/types"
)

// UserMap mirrors the global population of non-idle user accounts,
// potentially tens of thousands of compact fixed-layout records. Snapshots
// returned from Get are by-value copies.
type UserMap struct {
	fetcher Fetcher
	filters []rpc.RPCFilter
	sub     *stream.ProgramSubscriber
	log     zerolog.Logger

	cache *SlotCache[solana.PublicKey, types.User]

	syncMu     sync.Mutex
	subscribed atomic.Bool
	unsub      stream.Unsubscribe
}

// NewUserMap creates the global user map. Two mandatory transport-level
// filters apply: the user discriminator and the non-idle flag. Additional
// filters narrow the population further (e.g. UserWithOrderFilter).
func NewUserMap(fetcher Fetcher, program solana.PublicKey, opts stream.Options, additional ...rpc.RPCFilter) *UserMap {
	filters := append([]rpc.RPCFilter{UserFilter(), NonIdleUserFilter()}, additional...)
	return &UserMap{
		fetcher: fetcher,
		filters: filters,
		sub:     stream.NewProgramSubscriber(program, filters, opts),
		log:     stream.DefaultLogger().With().Str("component", "usermap").Logger(),
		cache:   NewSlotCache[solana.PublicKey, types.User](hashPubkey),
	}
}

// Subscribe bulk-syncs the population then starts the live stream.
// Idempotent.
func (m *UserMap) Subscribe(ctx context.Context) error {
	if err := m.Sync(ctx); err != nil {
		return err
	}
	if m.subscribed.Swap(true) {
		return nil
	}
	unsub, err := m.sub.Subscribe(ctx, m.handleUpdate)
	if err != nil {
		m.subscribed.Store(false)
		return err
	}
	m.unsub = unsub
	return nil
}

// Unsubscribe stops the live stream and clears the map.
func (m *UserMap) Unsubscribe() {
	if !m.subscribed.Swap(false) {
		return
	}
	if m.unsub != nil {
		m.unsub()
	}
	m.cache.Clear()
}

func (m *UserMap) handleUpdate(update stream.ProgramUpdate) {
	user, err := types.DecodeUser(update.Data)
	if err != nil {
		m.log.Warn().Err(err).Str("pubkey", update.Pubkey.String()).Msg("dropping undecodable user update")
		return
	}
	m.cache.InsertIfNewer(update.Pubkey, user, update.Slot)
}

// Sync performs the bulk snapshot of all matching user accounts.
// Concurrent calls collapse to a single sync.
func (m *UserMap) Sync(ctx context.Context) error {
	if !m.syncMu.TryLock() {
		return nil
	}
	defer m.syncMu.Unlock()

	keyed, slot, err := m.fetcher.ProgramAccounts(ctx, m.filters)
	if err != nil {
		return err
	}
	for _, acc := range keyed {
		user, err := types.DecodeUser(acc.Data)
		if err != nil {
			m.log.Warn().Err(err).Str("pubkey", acc.Pubkey.String()).Msg("skipping undecodable user account")
			continue
		}
		m.cache.InsertIfNewer(acc.Pubkey, user, slot)
	}
	m.log.Info().Int("users", m.cache.Size()).Uint64("slot", slot).Msg("user map synced")
	return nil
}

// Get returns a snapshot copy of a cached user account.
func (m *UserMap) Get(pubkey solana.PublicKey) (types.DataAndSlot[types.User], bool) {
	return m.cache.Get(pubkey)
}

// MustGet returns the cached user, fetching and caching it on a miss.
// This tolerates accounts created since the last sync. Exactly one RPC
// fetch happens for an uncached key; subsequent calls hit the cache.
func (m *UserMap) MustGet(ctx context.Context, pubkey solana.PublicKey) (types.User, error) {
	if cached, ok := m.cache.Get(pubkey); ok {
		return cached.Data, nil
	}
	data, slot, err := m.fetcher.AccountData(ctx, pubkey)
	if err != nil {
		return types.User{}, err
	}
	user, err := types.DecodeUser(data)
	if err != nil {
		return types.User{}, err
	}
	m.cache.InsertIfNewer(pubkey, user, slot)
	return user, nil
}

// Values returns a snapshot of every cached user.
func (m *UserMap) Values() []types.User { return m.cache.Values() }

// Size returns the number of cached users.
func (m *UserMap) Size() int { return m.cache.Size() }

// Contains reports whether pubkey is cached.
func (m *UserMap) Contains(pubkey solana.PublicKey) bool { return m.cache.Contains(pubkey) }

// LatestSlot returns the newest slot observed by the map.
func (m *UserMap) LatestSlot() uint64 { return m.cache.LatestSlot() }
