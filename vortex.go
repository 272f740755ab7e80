package vortex

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/vortex-labs/vortex-go/types"
)

// ClientOpts tune the Client facade.
type ClientOpts struct {
	// ActiveSubAccountID selects the default sub-account for composition.
	ActiveSubAccountID uint16
	// SubAccountIDs lists the sub-accounts the caller intends to use.
	SubAccountIDs []uint16
}

// Client is the exchange SDK facade. It owns the caches and subscription
// runtime, exposes the read/compose API, and coordinates lifecycle.
//
// Construction performs one bulk fetch of markets and one read of the
// program state account; no stream is opened until Subscribe.
type Client struct {
	backend *backend
	wallet  *Wallet

	ActiveSubAccountID uint16
	SubAccountIDs      []uint16
	users              []*UserAccount
}

// New creates a Client with default options.
func New(ctx context.Context, deployContext types.Context, accountProvider AccountProvider, wallet *Wallet) (*Client, error) {
	return NewWithOpts(ctx, deployContext, accountProvider, wallet, ClientOpts{})
}

// NewWithOpts creates a Client.
func NewWithOpts(ctx context.Context, deployContext types.Context, accountProvider AccountProvider, wallet *Wallet, opts ClientOpts) (*Client, error) {
	b, err := newBackend(ctx, deployContext, accountProvider)
	if err != nil {
		return nil, err
	}
	subAccountIDs := opts.SubAccountIDs
	if len(subAccountIDs) == 0 {
		subAccountIDs = []uint16{opts.ActiveSubAccountID}
	}
	return &Client{
		backend:            b,
		wallet:             wallet,
		ActiveSubAccountID: opts.ActiveSubAccountID,
		SubAccountIDs:      subAccountIDs,
	}, nil
}

// Subscribe fans out to the market maps, oracle map, state watcher and
// blockhash refresher. It is a no-op when already subscribed.
func (c *Client) Subscribe(ctx context.Context) error {
	return c.backend.subscribe(ctx)
}

// Unsubscribe tears every subscription down. No-op when not subscribed.
func (c *Client) Unsubscribe() {
	for _, user := range c.users {
		user.Unsubscribe()
	}
	c.backend.unsubscribe()
}

// AddUser subscribes to one of the wallet's sub-accounts.
func (c *Client) AddUser(ctx context.Context, subAccountID uint16) error {
	pubkey := DeriveUserAccount(c.wallet.Authority(), subAccountID)
	user, err := newUserAccount(ctx, c.backend, pubkey, subAccountID)
	if err != nil {
		return err
	}
	if err := user.Subscribe(ctx); err != nil {
		return err
	}
	c.users = append(c.users, user)
	return nil
}

// GetUser returns the subscribed sub-account mirror, if any.
func (c *Client) GetUser(subAccountID uint16) (*UserAccount, bool) {
	for _, user := range c.users {
		if user.SubAccountID == subAccountID {
			return user, true
		}
	}
	return nil, false
}

// Wallet returns the client's wallet.
func (c *Client) Wallet() *Wallet { return c.wallet }

// RPC returns a handle to the inner RPC client.
func (c *Client) RPC() *rpc.Client { return c.backend.rpcClient }

// ProgramData returns the on-chain program metadata.
func (c *Client) ProgramData() *ProgramData { return c.backend.programData }

// State returns a copy of the cached program state singleton.
func (c *Client) State() types.State { return c.backend.State() }

// GetUserAccount fetches and decodes a user account.
func (c *Client) GetUserAccount(ctx context.Context, account solana.PublicKey) (types.User, error) {
	return getAccount(ctx, c.backend, account, types.DecodeUser)
}

// GetUserStats fetches the stats account of an authority.
func (c *Client) GetUserStats(ctx context.Context, authority solana.PublicKey) (types.UserStats, error) {
	return getAccount(ctx, c.backend, DeriveStatsAccount(authority), types.DecodeUserStats)
}

// GetOrderByID returns an account's open order with the given id.
func (c *Client) GetOrderByID(ctx context.Context, account solana.PublicKey, orderId uint32) (types.Order, bool, error) {
	user, err := c.GetUserAccount(ctx, account)
	if err != nil {
		return types.Order{}, false, err
	}
	order, ok := user.OrderByID(orderId)
	return order, ok, nil
}

// GetOrderByUserID returns an account's open order with a user-assigned id.
func (c *Client) GetOrderByUserID(ctx context.Context, account solana.PublicKey, userOrderId uint8) (types.Order, bool, error) {
	user, err := c.GetUserAccount(ctx, account)
	if err != nil {
		return types.Order{}, false, err
	}
	order, ok := user.OrderByUserID(userOrderId)
	return order, ok, nil
}

// AllOrders returns all of an account's open orders.
func (c *Client) AllOrders(ctx context.Context, account solana.PublicKey) ([]types.Order, error) {
	user, err := c.GetUserAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	return user.OpenOrdersList(), nil
}

// AllPositions returns an account's active spot and perp positions.
func (c *Client) AllPositions(ctx context.Context, account solana.PublicKey) ([]types.SpotPosition, []types.PerpPosition, error) {
	user, err := c.GetUserAccount(ctx, account)
	if err != nil {
		return nil, nil, err
	}
	return user.ActiveSpotPositions(), user.ActivePerpPositions(), nil
}

// PerpPosition returns an account's position in a perp market, if any.
func (c *Client) PerpPosition(ctx context.Context, account solana.PublicKey, marketIndex uint16) (types.PerpPosition, bool, error) {
	user, err := c.GetUserAccount(ctx, account)
	if err != nil {
		return types.PerpPosition{}, false, err
	}
	for i := range user.PerpPositions {
		p := user.PerpPositions[i]
		if p.MarketIndex == marketIndex && !p.IsAvailable() {
			return p, true, nil
		}
	}
	return types.PerpPosition{}, false, nil
}

// SpotPosition returns an account's position in a spot market, if any.
func (c *Client) SpotPosition(ctx context.Context, account solana.PublicKey, marketIndex uint16) (types.SpotPosition, bool, error) {
	user, err := c.GetUserAccount(ctx, account)
	if err != nil {
		return types.SpotPosition{}, false, err
	}
	for i := range user.SpotPositions {
		p := user.SpotPositions[i]
		if p.MarketIndex == marketIndex && !p.IsAvailable() {
			return p, true, nil
		}
	}
	return types.SpotPosition{}, false, nil
}

// GetPerpMarketAccountAndSlot returns the live perp market mirror at index.
func (c *Client) GetPerpMarketAccountAndSlot(marketIndex uint16) (types.DataAndSlot[types.PerpMarket], bool) {
	return c.backend.perpMarketMap.Get(marketIndex)
}

// GetSpotMarketAccountAndSlot returns the live spot market mirror at index.
func (c *Client) GetSpotMarketAccountAndSlot(marketIndex uint16) (types.DataAndSlot[types.SpotMarket], bool) {
	return c.backend.spotMarketMap.Get(marketIndex)
}

// GetPerpMarketAccount returns the live perp market data at index.
func (c *Client) GetPerpMarketAccount(marketIndex uint16) (types.PerpMarket, bool) {
	ds, ok := c.backend.perpMarketMap.Get(marketIndex)
	return ds.Data, ok
}

// GetSpotMarketAccount returns the live spot market data at index.
func (c *Client) GetSpotMarketAccount(marketIndex uint16) (types.SpotMarket, bool) {
	ds, ok := c.backend.spotMarketMap.Get(marketIndex)
	return ds.Data, ok
}

// NumPerpMarkets returns the live perp market count.
func (c *Client) NumPerpMarkets() int { return c.backend.perpMarketMap.Size() }

// NumSpotMarkets returns the live spot market count.
func (c *Client) NumSpotMarkets() int { return c.backend.spotMarketMap.Size() }

// MarketBySymbol resolves a market id by symbol. Lookups are linear and
// should be cached by the caller.
func (c *Client) MarketBySymbol(symbol string) (types.MarketId, bool) {
	return c.backend.programData.MarketBySymbol(symbol)
}

// GetOraclePriceAndSlot returns the latest cached price for an oracle.
func (c *Client) GetOraclePriceAndSlot(oracle solana.PublicKey) (types.DataAndSlot[types.OraclePrice], bool) {
	return c.backend.oracleMap.Get(oracle)
}

// GetOraclePriceForPerpMarket returns the cached price of a perp market's
// current oracle. A governance oracle migration observed here re-points the
// oracle map asynchronously; old entries are retained.
func (c *Client) GetOraclePriceForPerpMarket(ctx context.Context, marketIndex uint16) (types.DataAndSlot[types.OraclePrice], bool) {
	market, ok := c.backend.perpMarketMap.Get(marketIndex)
	if !ok {
		return types.DataAndSlot[types.OraclePrice]{}, false
	}
	current, ok := c.backend.oracleMap.CurrentPerpOracle(marketIndex)
	if !ok {
		return types.DataAndSlot[types.OraclePrice]{}, false
	}
	if market.Data.Amm.Oracle != current {
		oracle := market.Data.Amm.Oracle
		source := market.Data.Amm.OracleSource
		go func() {
			if err := c.backend.oracleMap.AddOracle(ctx, oracle, source); err == nil {
				c.backend.oracleMap.UpdatePerpOracle(marketIndex, oracle)
			}
		}()
	}
	return c.backend.oracleMap.Get(current)
}

// GetOraclePriceForSpotMarket returns the cached price of a spot market's
// current oracle.
func (c *Client) GetOraclePriceForSpotMarket(ctx context.Context, marketIndex uint16) (types.DataAndSlot[types.OraclePrice], bool) {
	market, ok := c.backend.spotMarketMap.Get(marketIndex)
	if !ok {
		return types.DataAndSlot[types.OraclePrice]{}, false
	}
	current, ok := c.backend.oracleMap.CurrentSpotOracle(marketIndex)
	if !ok {
		return types.DataAndSlot[types.OraclePrice]{}, false
	}
	if market.Data.Oracle != current {
		oracle := market.Data.Oracle
		source := market.Data.OracleSource
		go func() {
			if err := c.backend.oracleMap.AddOracle(ctx, oracle, source); err == nil {
				c.backend.oracleMap.UpdateSpotOracle(marketIndex, oracle)
			}
		}()
	}
	return c.backend.oracleMap.Get(current)
}

// OraclePrice fetches the live oracle price for a market, bypassing the
// cache.
func (c *Client) OraclePrice(ctx context.Context, market types.MarketId) (int64, error) {
	var oracle solana.PublicKey
	var source types.OracleSource
	switch market.Kind {
	case types.MarketTypePerp:
		config, ok := c.backend.programData.PerpMarketConfig(market.Index)
		if !ok {
			return 0, types.ErrInvalidOracle
		}
		oracle, source = config.Amm.Oracle, config.Amm.OracleSource
	default:
		config, ok := c.backend.programData.SpotMarketConfig(market.Index)
		if !ok {
			return 0, types.ErrInvalidOracle
		}
		oracle, source = config.Oracle, config.OracleSource
	}

	slot, err := c.backend.rpcClient.GetSlot(ctx, c.backend.accountProvider.Commitment())
	if err != nil {
		return 0, err
	}
	data, err := c.backend.accountProvider.GetAccount(ctx, oracle)
	if err != nil {
		return 0, err
	}
	price, err := types.GetOraclePrice(source, data, slot)
	if err != nil {
		return 0, err
	}
	return price.Price, nil
}

// GetRecentPriorityFees returns recent prioritization fees for the given
// writable markets, bounded by window (default 5).
func (c *Client) GetRecentPriorityFees(ctx context.Context, writableMarkets []types.MarketId, window int) ([]uint64, error) {
	return c.backend.recentPriorityFees(ctx, writableMarkets, window)
}

// GetLatestBlockhash fetches the latest block hash via RPC.
func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	res, err := c.backend.rpcClient.GetLatestBlockhash(ctx, c.backend.accountProvider.Commitment())
	if err != nil {
		return solana.Hash{}, err
	}
	return res.Value.Blockhash, nil
}

// InitTx starts a TransactionBuilder for a sub-account, seeded with the
// subscribed mirror's snapshot of the account.
func (c *Client) InitTx(ctx context.Context, account solana.PublicKey, delegated bool) (*TransactionBuilder, error) {
	var accountData types.User
	if user, ok := c.GetUser(c.ActiveSubAccountID); ok && user.Pubkey == account {
		accountData = user.GetUserAccount()
	} else {
		fetched, err := c.GetUserAccount(ctx, account)
		if err != nil {
			return nil, err
		}
		accountData = fetched
	}
	return NewTransactionBuilder(c.backend.programData, account, &accountData, delegated), nil
}

// SignAndSend signs tx with the blockhash cache's oldest valid hash and
// submits it, returning the signature.
func (c *Client) SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return c.backend.signAndSend(ctx, c.wallet, tx, rpc.TransactionOpts{})
}

// SignAndSendWithOpts signs and submits tx with custom send options.
func (c *Client) SignAndSendWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	return c.backend.signAndSend(ctx, c.wallet, tx, opts)
}
