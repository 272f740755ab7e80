package accounts

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/vortex-labs/vortex-go/stream"
	"github.com/vortex-labs/vortex-go/types"
)

// OracleMap mirrors the latest decoded price of every oracle referenced by
// any market. Each oracle has its own account subscription; the decode rule
// is selected by the source registered for its pubkey.
type OracleMap struct {
	fetcher Fetcher
	opts    stream.Options
	log     zerolog.Logger

	prices *SlotCache[solana.PublicKey, types.OraclePrice]

	// infoMu guards the source registry and the per-market current oracle
	// tables; contention is limited to (un)subscribe and rare migrations.
	infoMu      sync.RWMutex
	sources     map[solana.PublicKey]types.OracleSource
	currentPerp map[uint16]solana.PublicKey
	currentSpot map[uint16]solana.PublicKey

	syncMu     sync.Mutex
	subscribed atomic.Bool
	subCtx     context.Context
	subMu      sync.Mutex
	unsubs     map[solana.PublicKey]stream.Unsubscribe
}

// NewOracleMap creates an oracle map from the markets' oracle projections.
// Duplicate pubkeys across markets collapse to one subscription.
func NewOracleMap(fetcher Fetcher, opts stream.Options, perpOracles, spotOracles []types.OracleInfo) *OracleMap {
	m := &OracleMap{
		fetcher:     fetcher,
		opts:        opts,
		log:         stream.DefaultLogger().With().Str("component", "oraclemap").Logger(),
		prices:      NewSlotCache[solana.PublicKey, types.OraclePrice](hashPubkey),
		sources:     make(map[solana.PublicKey]types.OracleSource),
		currentPerp: make(map[uint16]solana.PublicKey),
		currentSpot: make(map[uint16]solana.PublicKey),
		unsubs:      make(map[solana.PublicKey]stream.Unsubscribe),
	}
	for _, info := range perpOracles {
		m.sources[info.Pubkey] = info.Source
		m.currentPerp[info.MarketIndex] = info.Pubkey
	}
	for _, info := range spotOracles {
		m.sources[info.Pubkey] = info.Source
		m.currentSpot[info.MarketIndex] = info.Pubkey
	}
	return m
}

// Subscribe bulk-syncs all oracle prices then opens one account
// subscription per oracle. Idempotent.
func (m *OracleMap) Subscribe(ctx context.Context) error {
	if err := m.Sync(ctx); err != nil {
		return err
	}
	if m.subscribed.Swap(true) {
		return nil
	}
	m.subCtx = ctx

	m.infoMu.RLock()
	pubkeys := make([]solana.PublicKey, 0, len(m.sources))
	for pk := range m.sources {
		pubkeys = append(pubkeys, pk)
	}
	m.infoMu.RUnlock()

	for _, pk := range pubkeys {
		if err := m.subscribeOracle(ctx, pk); err != nil {
			m.Unsubscribe()
			return err
		}
	}
	return nil
}

func (m *OracleMap) subscribeOracle(ctx context.Context, pubkey solana.PublicKey) error {
	sub := stream.NewAccountSubscriber(pubkey, m.opts)
	unsub, err := sub.Subscribe(ctx, m.handleUpdate)
	if err != nil {
		return err
	}
	m.subMu.Lock()
	m.unsubs[pubkey] = unsub
	m.subMu.Unlock()
	return nil
}

// Unsubscribe tears down every oracle subscription and clears the map.
func (m *OracleMap) Unsubscribe() {
	if !m.subscribed.Swap(false) {
		return
	}
	m.subMu.Lock()
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = make(map[solana.PublicKey]stream.Unsubscribe)
	m.subMu.Unlock()
	m.prices.Clear()
}

// handleUpdate decodes one oracle account change. A decode failure leaves
// the cached entry untouched.
func (m *OracleMap) handleUpdate(update stream.AccountUpdate) {
	m.infoMu.RLock()
	source, ok := m.sources[update.Pubkey]
	m.infoMu.RUnlock()
	if !ok {
		return
	}
	price, err := types.GetOraclePrice(source, update.Data, update.Slot)
	if err != nil {
		m.log.Warn().Err(err).Str("oracle", update.Pubkey.String()).Msg("dropping undecodable oracle update")
		return
	}
	m.prices.InsertIfNewer(update.Pubkey, price, update.Slot)
}

// Sync performs one multi-account fetch over the sorted oracle list; the
// response slot applies uniformly to every decoded entry.
func (m *OracleMap) Sync(ctx context.Context) error {
	if !m.syncMu.TryLock() {
		return nil
	}
	defer m.syncMu.Unlock()

	m.infoMu.RLock()
	infos := make([]types.OracleInfo, 0, len(m.sources))
	for pk, source := range m.sources {
		infos = append(infos, types.OracleInfo{Pubkey: pk, Source: source})
	}
	m.infoMu.RUnlock()
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Pubkey.String() < infos[j].Pubkey.String()
	})

	pubkeys := make([]solana.PublicKey, len(infos))
	for i, info := range infos {
		pubkeys[i] = info.Pubkey
	}
	if len(pubkeys) == 0 {
		return nil
	}

	datas, slot, err := m.fetcher.MultipleAccounts(ctx, pubkeys)
	if err != nil {
		return err
	}
	for i, data := range datas {
		if data == nil {
			continue
		}
		price, err := types.GetOraclePrice(infos[i].Source, data, slot)
		if err != nil {
			m.log.Warn().Err(err).Str("oracle", infos[i].Pubkey.String()).Msg("skipping undecodable oracle account")
			continue
		}
		m.prices.InsertIfNewer(infos[i].Pubkey, price, slot)
	}
	m.log.Info().Int("oracles", m.prices.Size()).Uint64("slot", slot).Msg("oracle map synced")
	return nil
}

// AddOracle registers a new (pubkey, source) pair, subscribing to it when
// the map is live. Existing entries for old oracles are retained.
func (m *OracleMap) AddOracle(ctx context.Context, pubkey solana.PublicKey, source types.OracleSource) error {
	m.infoMu.Lock()
	if _, known := m.sources[pubkey]; known {
		m.infoMu.Unlock()
		return nil
	}
	m.sources[pubkey] = source
	m.infoMu.Unlock()

	if m.subscribed.Load() {
		if ctx == nil {
			ctx = m.subCtx
		}
		return m.subscribeOracle(ctx, pubkey)
	}
	return nil
}

// UpdatePerpOracle repoints a perp market to a new oracle after a
// governance migration.
func (m *OracleMap) UpdatePerpOracle(marketIndex uint16, pubkey solana.PublicKey) {
	m.infoMu.Lock()
	m.currentPerp[marketIndex] = pubkey
	m.infoMu.Unlock()
}

// UpdateSpotOracle repoints a spot market to a new oracle.
func (m *OracleMap) UpdateSpotOracle(marketIndex uint16, pubkey solana.PublicKey) {
	m.infoMu.Lock()
	m.currentSpot[marketIndex] = pubkey
	m.infoMu.Unlock()
}

// CurrentPerpOracle returns the oracle currently bound to a perp market.
func (m *OracleMap) CurrentPerpOracle(marketIndex uint16) (solana.PublicKey, bool) {
	m.infoMu.RLock()
	defer m.infoMu.RUnlock()
	pk, ok := m.currentPerp[marketIndex]
	return pk, ok
}

// CurrentSpotOracle returns the oracle currently bound to a spot market.
func (m *OracleMap) CurrentSpotOracle(marketIndex uint16) (solana.PublicKey, bool) {
	m.infoMu.RLock()
	defer m.infoMu.RUnlock()
	pk, ok := m.currentSpot[marketIndex]
	return pk, ok
}

// Get returns a snapshot of the latest price for an oracle.
func (m *OracleMap) Get(pubkey solana.PublicKey) (types.DataAndSlot[types.OraclePrice], bool) {
	return m.prices.Get(pubkey)
}

// Values returns a snapshot of every cached price.
func (m *OracleMap) Values() []types.OraclePrice { return m.prices.Values() }

// Size returns the number of cached prices.
func (m *OracleMap) Size() int { return m.prices.Size() }

// Contains reports whether a price is cached for pubkey.
func (m *OracleMap) Contains(pubkey solana.PublicKey) bool { return m.prices.Contains(pubkey) }

// LatestSlot returns the newest slot observed by the map.
func (m *OracleMap) LatestSlot() uint64 { return m.prices.LatestSlot() }
