package vortex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vortex-labs/vortex-go/accounts"
	"github.com/vortex-labs/vortex-go/stream"
	"github.com/vortex-labs/vortex-go/types"
)

// backend owns the caches and subscription runtime behind the Client facade.
// It is intended to be a singleton per endpoint.
type backend struct {
	rpcClient       *rpc.Client
	accountProvider AccountProvider
	programData     *ProgramData
	log             zerolog.Logger

	perpMarketMap *accounts.MarketMap[types.PerpMarket]
	spotMarketMap *accounts.MarketMap[types.SpotMarket]
	oracleMap     *accounts.OracleMap

	// the program state singleton; writes happen only on rare state
	// account updates
	stateMu sync.RWMutex
	state   types.State

	blockhash  *BlockhashCache
	stateSub   *stream.AccountSubscriber
	stateUnsub stream.Unsubscribe

	subscribeMu sync.Mutex
	subscribed  bool
}

// newBackend constructs the backend, bulk-fetches the markets and program
// state, and resolves the published lookup table. No stream is opened yet.
func newBackend(ctx context.Context, deployContext types.Context, accountProvider AccountProvider) (*backend, error) {
	rpcClient := rpc.New(accountProvider.Endpoint())
	commitment := accountProvider.Commitment()
	streamOpts := stream.Options{
		WsURL:      WsURL(accountProvider.Endpoint()),
		Commitment: commitment,
	}
	fetcher := accounts.NewRPCFetcher(rpcClient, ProgramID, commitment)

	b := &backend{
		rpcClient:       rpcClient,
		accountProvider: accountProvider,
		log:             stream.DefaultLogger().With().Str("component", "backend").Logger(),
		perpMarketMap:   accounts.NewPerpMarketMap(fetcher, ProgramID, streamOpts),
		spotMarketMap:   accounts.NewSpotMarketMap(fetcher, ProgramID, streamOpts),
		blockhash:       NewBlockhashCache(rpcClient, 0),
		stateSub:        stream.NewAccountSubscriber(StateAccount(), streamOpts),
	}

	stateData, err := accountProvider.GetAccount(ctx, StateAccount())
	if err != nil {
		return nil, fmt.Errorf("fetch state account: %w", err)
	}
	state, err := types.DecodeState(stateData)
	if err != nil {
		return nil, err
	}
	b.state = state

	spot, perp, err := b.fetchMarketAccounts(ctx, fetcher, &state)
	if err != nil {
		return nil, err
	}

	lookupTableAddress := marketLookupTable(deployContext)
	lookupTableData, err := accountProvider.GetAccount(ctx, lookupTableAddress)
	if err != nil {
		return nil, fmt.Errorf("fetch lookup table: %w", err)
	}
	lookupTable, err := DecodeLookupTable(lookupTableAddress, lookupTableData)
	if err != nil {
		return nil, err
	}

	b.programData, err = NewProgramData(spot, perp, lookupTable)
	if err != nil {
		return nil, err
	}

	if err := b.perpMarketMap.Sync(ctx); err != nil {
		return nil, err
	}
	if err := b.spotMarketMap.Sync(ctx); err != nil {
		return nil, err
	}
	b.oracleMap = accounts.NewOracleMap(fetcher, streamOpts, b.perpMarketMap.Oracles(), b.spotMarketMap.Oracles())

	return b, nil
}

// fetchMarketAccounts loads every market via its derived address and the
// state account's market counts. This avoids getProgramAccounts, which many
// providers disable.
func (b *backend) fetchMarketAccounts(ctx context.Context, fetcher accounts.Fetcher, state *types.State) ([]types.SpotMarket, []types.PerpMarket, error) {
	spotKeys := make([]solana.PublicKey, state.NumberOfSpotMarkets)
	for i := range spotKeys {
		spotKeys[i] = DeriveSpotMarketAccount(uint16(i))
	}
	perpKeys := make([]solana.PublicKey, state.NumberOfMarkets)
	for i := range perpKeys {
		perpKeys[i] = DerivePerpMarketAccount(uint16(i))
	}

	var spot []types.SpotMarket
	var perp []types.PerpMarket
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		datas, _, err := fetcher.MultipleAccounts(groupCtx, spotKeys)
		if err != nil {
			return fmt.Errorf("fetch spot markets: %w", err)
		}
		for i, data := range datas {
			if data == nil {
				return fmt.Errorf("%w: spot market %d", types.ErrNotFound, i)
			}
			market, err := types.DecodeSpotMarket(data)
			if err != nil {
				return err
			}
			spot = append(spot, market)
		}
		return nil
	})
	group.Go(func() error {
		datas, _, err := fetcher.MultipleAccounts(groupCtx, perpKeys)
		if err != nil {
			return fmt.Errorf("fetch perp markets: %w", err)
		}
		for i, data := range datas {
			if data == nil {
				return fmt.Errorf("%w: perp market %d", types.ErrNotFound, i)
			}
			market, err := types.DecodePerpMarket(data)
			if err != nil {
				return err
			}
			perp = append(perp, market)
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	return spot, perp, nil
}

// subscribe fans out to every cache subscription. Idempotent.
func (b *backend) subscribe(ctx context.Context) error {
	b.subscribeMu.Lock()
	defer b.subscribeMu.Unlock()
	if b.subscribed {
		return nil
	}

	var group errgroup.Group
	group.Go(func() error { return b.perpMarketMap.Subscribe(ctx) })
	group.Go(func() error { return b.spotMarketMap.Subscribe(ctx) })
	group.Go(func() error { return b.oracleMap.Subscribe(ctx) })
	group.Go(func() error { return b.stateSubscribe(ctx) })
	if err := group.Wait(); err != nil {
		return err
	}
	b.blockhash.Subscribe(ctx)
	b.subscribed = true
	return nil
}

func (b *backend) unsubscribe() {
	b.subscribeMu.Lock()
	defer b.subscribeMu.Unlock()
	if !b.subscribed {
		return
	}
	b.perpMarketMap.Unsubscribe()
	b.spotMarketMap.Unsubscribe()
	b.oracleMap.Unsubscribe()
	if b.stateUnsub != nil {
		b.stateUnsub()
		b.stateUnsub = nil
	}
	b.subscribed = false
}

// stateSubscribe watches the state singleton and replaces the cached copy
// on every update.
func (b *backend) stateSubscribe(ctx context.Context) error {
	unsub, err := b.stateSub.Subscribe(ctx, func(update stream.AccountUpdate) {
		state, err := types.DecodeState(update.Data)
		if err != nil {
			b.log.Warn().Err(err).Msg("dropping undecodable state update")
			return
		}
		b.stateMu.Lock()
		b.state = state
		b.stateMu.Unlock()
	})
	if err != nil {
		return err
	}
	b.stateUnsub = unsub
	return nil
}

// State returns a copy of the cached program state.
func (b *backend) State() types.State {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state
}

// getAccount fetches and type-checks an account via the account provider.
func getAccount[T any](ctx context.Context, b *backend, account solana.PublicKey, decode func([]byte) (T, error)) (T, error) {
	var zero T
	data, err := b.accountProvider.GetAccount(ctx, account)
	if err != nil {
		return zero, err
	}
	v, err := decode(data)
	if err != nil {
		return zero, types.ErrInvalidAccount
	}
	return v, nil
}

// signAndSend signs the tx with the cache's oldest-valid block hash and
// submits it. Out-of-funds rejections are surfaced as a typed error.
func (b *backend) signAndSend(ctx context.Context, wallet *Wallet, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	if err := wallet.SignTx(tx, b.blockhash.Valid()); err != nil {
		return solana.Signature{}, err
	}
	sig, err := b.rpcClient.SendTransactionWithOpts(ctx, tx, opts)
	if err != nil {
		return solana.Signature{}, types.WrapOutOfFunds(err)
	}
	return sig, nil
}

// recentPriorityFees returns the recent prioritization fees observed for
// the given writable markets' accounts, most recent slots first, bounded by
// window (default 5).
func (b *backend) recentPriorityFees(ctx context.Context, writableMarkets []types.MarketId, window int) ([]uint64, error) {
	addresses := make([]solana.PublicKey, 0, len(writableMarkets))
	for _, market := range writableMarkets {
		switch market.Kind {
		case types.MarketTypeSpot:
			if config, ok := b.programData.SpotMarketConfig(market.Index); ok {
				addresses = append(addresses, config.Pubkey)
			}
		case types.MarketTypePerp:
			if config, ok := b.programData.PerpMarketConfig(market.Index); ok {
				addresses = append(addresses, config.Pubkey)
			}
		}
	}
	res, err := b.rpcClient.GetRecentPrioritizationFees(ctx, addresses)
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		window = 5
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Slot > res[j].Slot })
	fees := make([]uint64, 0, window)
	for i, fee := range res {
		if i >= window {
			break
		}
		fees = append(fees, fee.PrioritizationFee)
	}
	return fees, nil
}
