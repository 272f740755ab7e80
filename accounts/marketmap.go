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

// Market is the accessor surface shared by perp and spot market records.
type Market interface {
	MarketKind() types.MarketType
	Index() uint16
	OracleInfo() types.OracleInfo
}

// MarketMap mirrors the full set of markets of one kind, keyed by the dense
// market index. A bulk snapshot establishes the baseline; a streaming
// subscription keeps entries live via slot-gated inserts.
type MarketMap[T Market] struct {
	kind    types.MarketType
	decode  func([]byte) (T, error)
	fetcher Fetcher
	filters []rpc.RPCFilter
	sub     *stream.ProgramSubscriber
	log     zerolog.Logger

	cache *SlotCache[uint16, T]

	// syncMu collapses concurrent bulk syncs into one
	syncMu     sync.Mutex
	synced     atomic.Bool
	subscribed atomic.Bool
	unsub      stream.Unsubscribe
}

// NewPerpMarketMap creates the map of all perp markets.
func NewPerpMarketMap(fetcher Fetcher, program solana.PublicKey, opts stream.Options) *MarketMap[types.PerpMarket] {
	return newMarketMap(fetcher, program, opts, types.MarketTypePerp, types.DecodePerpMarket)
}

// NewSpotMarketMap creates the map of all spot markets.
func NewSpotMarketMap(fetcher Fetcher, program solana.PublicKey, opts stream.Options) *MarketMap[types.SpotMarket] {
	return newMarketMap(fetcher, program, opts, types.MarketTypeSpot, types.DecodeSpotMarket)
}

func newMarketMap[T Market](fetcher Fetcher, program solana.PublicKey, opts stream.Options, kind types.MarketType, decode func([]byte) (T, error)) *MarketMap[T] {
	filters := []rpc.RPCFilter{MarketFilter(kind)}
	return &MarketMap[T]{
		kind:    kind,
		decode:  decode,
		fetcher: fetcher,
		filters: filters,
		sub:     stream.NewProgramSubscriber(program, filters, opts),
		log:     stream.DefaultLogger().With().Str("component", "marketmap").Str("kind", kind.String()).Logger(),
		cache:   NewSlotCache[uint16, T](hashUint16),
	}
}

// Subscribe bulk-syncs the map then starts the live stream. Idempotent.
func (m *MarketMap[T]) Subscribe(ctx context.Context) error {
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
func (m *MarketMap[T]) Unsubscribe() {
	if !m.subscribed.Swap(false) {
		return
	}
	if m.unsub != nil {
		m.unsub()
	}
	m.cache.Clear()
	m.synced.Store(false)
}

// handleUpdate is the stream callback: one decode, one slot-gated insert.
func (m *MarketMap[T]) handleUpdate(update stream.ProgramUpdate) {
	market, err := m.decode(update.Data)
	if err != nil {
		m.log.Warn().Err(err).Str("pubkey", update.Pubkey.String()).Msg("dropping undecodable market update")
		return
	}
	m.cache.InsertIfNewer(market.Index(), market, update.Slot)
}

// Sync performs the bulk snapshot: one bounded RPC call listing all market
// accounts of this kind. Concurrent calls collapse to a single sync; the
// gate is released before any other await point.
func (m *MarketMap[T]) Sync(ctx context.Context) error {
	if m.synced.Load() {
		return nil
	}
	if !m.syncMu.TryLock() {
		return nil
	}
	defer m.syncMu.Unlock()

	keyed, slot, err := m.fetcher.ProgramAccounts(ctx, m.filters)
	if err != nil {
		return err
	}
	for _, acc := range keyed {
		market, err := m.decode(acc.Data)
		if err != nil {
			m.log.Warn().Err(err).Str("pubkey", acc.Pubkey.String()).Msg("skipping undecodable market account")
			continue
		}
		m.cache.InsertIfNewer(market.Index(), market, slot)
	}
	m.synced.Store(true)
	m.log.Info().Int("markets", m.cache.Size()).Uint64("slot", slot).Msg("market map synced")
	return nil
}

// Get returns a snapshot of the market at index.
func (m *MarketMap[T]) Get(index uint16) (types.DataAndSlot[T], bool) {
	return m.cache.Get(index)
}

// Values returns a snapshot of all markets.
func (m *MarketMap[T]) Values() []T {
	return m.cache.Values()
}

// Oracles projects the oracle binding of every known market. The oracle map
// is constructed from this snapshot; neither map holds a reference into the
// other.
func (m *MarketMap[T]) Oracles() []types.OracleInfo {
	values := m.cache.Values()
	out := make([]types.OracleInfo, 0, len(values))
	for _, v := range values {
		out = append(out, v.OracleInfo())
	}
	return out
}

// Size returns the number of known markets.
func (m *MarketMap[T]) Size() int { return m.cache.Size() }

// Contains reports whether a market with index is known.
func (m *MarketMap[T]) Contains(index uint16) bool { return m.cache.Contains(index) }

// LatestSlot returns the newest slot observed by the map.
func (m *MarketMap[T]) LatestSlot() uint64 { return m.cache.LatestSlot() }
