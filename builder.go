package vortex

import (
	"bytes"
	"fmt"
	"sort"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"

	"github.com/vortex-labs/vortex-go/types"
)

// TransactionBuilder composes program instructions declaratively and
// compiles them into a transaction ready for signing.
//
//	tx, err := client.InitTx(ctx, wallet.SubAccount(3), false)
//	msg, err := tx.
//		CancelAllOrders().
//		PlaceOrders(orders...).
//		Build()
//
// The builder borrows a snapshot of the user account and read-only market
// configs; it holds no long-lived state.
type TransactionBuilder struct {
	programData *ProgramData
	accountData *types.User
	subAccount  solana.PublicKey
	// authority is the tx fee payer and signer: the account authority, or
	// the delegate when building for delegated signing
	authority    solana.PublicKey
	statsAccount solana.PublicKey
	ixs          []solana.Instruction
	legacy       bool
	lookupTables []LookupTable
	err          error
}

// NewTransactionBuilder creates a builder for subAccount using a snapshot of
// its account data. Set delegated to build for delegated signing.
func NewTransactionBuilder(programData *ProgramData, subAccount solana.PublicKey, accountData *types.User, delegated bool) *TransactionBuilder {
	authority := accountData.Authority
	if delegated {
		authority = accountData.Delegate
	}
	return &TransactionBuilder{
		programData:  programData,
		accountData:  accountData,
		subAccount:   subAccount,
		authority:    authority,
		statsAccount: DeriveStatsAccount(authority),
		lookupTables: []LookupTable{programData.LookupTable()},
	}
}

// Legacy switches the builder to legacy message mode.
func (b *TransactionBuilder) Legacy() *TransactionBuilder {
	b.legacy = true
	return b
}

// WithLookupTables prepends caller-supplied lookup tables to the program's
// published one (v0 mode only).
func (b *TransactionBuilder) WithLookupTables(tables ...LookupTable) *TransactionBuilder {
	b.lookupTables = append(tables, b.programData.LookupTable())
	return b
}

// WithPriorityFee prepends compute-budget instructions: the compute unit
// price in micro-lamports and, when cuLimit > 0, a compute unit limit.
func (b *TransactionBuilder) WithPriorityFee(microLamportsPerCU uint64, cuLimit uint32) *TransactionBuilder {
	prefix := []solana.Instruction{
		computebudget.NewSetComputeUnitPriceInstruction(microLamportsPerCU).Build(),
	}
	if cuLimit > 0 {
		prefix = append(prefix, computebudget.NewSetComputeUnitLimitInstruction(cuLimit).Build())
	}
	b.ixs = append(prefix, b.ixs...)
	return b
}

// Deposit adds a collateral deposit into the sub-account.
func (b *TransactionBuilder) Deposit(amount uint64, spotMarketIndex uint16, userTokenAccount solana.PublicKey, reduceOnly bool) *TransactionBuilder {
	accounts := b.buildAccounts(
		solana.AccountMetaSlice{
			solana.NewAccountMeta(StateAccount(), false, false),
			solana.NewAccountMeta(b.subAccount, true, false),
			solana.NewAccountMeta(b.statsAccount, true, false),
			solana.NewAccountMeta(b.authority, false, true),
			solana.NewAccountMeta(DeriveSpotMarketVault(spotMarketIndex), true, false),
			solana.NewAccountMeta(userTokenAccount, true, false),
			solana.NewAccountMeta(TokenProgramID, false, false),
		},
		nil,
		[]types.MarketId{types.SpotMarketId(spotMarketIndex)},
	)
	b.pushInstruction("deposit", accounts, struct {
		MarketIndex uint16
		Amount      uint64
		ReduceOnly  bool
	}{spotMarketIndex, amount, reduceOnly})
	return b
}

// Withdraw adds a collateral withdrawal from the sub-account.
func (b *TransactionBuilder) Withdraw(amount uint64, spotMarketIndex uint16, userTokenAccount solana.PublicKey, reduceOnly bool) *TransactionBuilder {
	accounts := b.buildAccounts(
		solana.AccountMetaSlice{
			solana.NewAccountMeta(StateAccount(), false, false),
			solana.NewAccountMeta(b.subAccount, true, false),
			solana.NewAccountMeta(b.statsAccount, true, false),
			solana.NewAccountMeta(b.authority, false, true),
			solana.NewAccountMeta(DeriveSpotMarketVault(spotMarketIndex), true, false),
			solana.NewAccountMeta(DeriveSignerAccount(), false, false),
			solana.NewAccountMeta(userTokenAccount, true, false),
			solana.NewAccountMeta(TokenProgramID, false, false),
		},
		nil,
		[]types.MarketId{types.SpotMarketId(spotMarketIndex)},
	)
	b.pushInstruction("withdraw", accounts, struct {
		MarketIndex uint16
		Amount      uint64
		ReduceOnly  bool
	}{spotMarketIndex, amount, reduceOnly})
	return b
}

// PlaceOrders adds an instruction placing the given orders. Each touched
// market is included writable.
func (b *TransactionBuilder) PlaceOrders(orders ...types.OrderParams) *TransactionBuilder {
	touched := make([]types.MarketId, 0, len(orders))
	for _, o := range orders {
		touched = append(touched, types.MarketId{Index: o.MarketIndex, Kind: o.MarketType})
	}
	accounts := b.buildAccounts(b.orderBaseAccounts(), nil, touched)
	b.pushInstruction("place_orders", accounts, struct {
		Params []types.OrderParams
	}{orders})
	return b
}

// CancelAllOrders adds an instruction cancelling every open order.
func (b *TransactionBuilder) CancelAllOrders() *TransactionBuilder {
	accounts := b.buildAccounts(b.orderBaseAccounts(), nil, nil)
	b.pushInstruction("cancel_orders", accounts, cancelOrdersArgs{})
	return b
}

// CancelOrders adds an instruction cancelling orders in one market,
// optionally restricted to one direction.
func (b *TransactionBuilder) CancelOrders(market types.MarketId, direction *types.PositionDirection) *TransactionBuilder {
	accounts := b.buildAccounts(b.orderBaseAccounts(), nil, []types.MarketId{market})
	b.pushInstruction("cancel_orders", accounts, cancelOrdersArgs{
		MarketIndex: &market.Index,
		MarketType:  &market.Kind,
		Direction:   direction,
	})
	return b
}

// CancelOrdersByID adds an instruction cancelling orders by program ids.
func (b *TransactionBuilder) CancelOrdersByID(orderIds ...uint32) *TransactionBuilder {
	accounts := b.buildAccounts(b.orderBaseAccounts(), nil, nil)
	b.pushInstruction("cancel_orders_by_ids", accounts, struct {
		OrderIds []uint32
	}{orderIds})
	return b
}

// CancelOrdersByUserID adds one cancel instruction per user-assigned id.
func (b *TransactionBuilder) CancelOrdersByUserID(userOrderIds ...uint8) *TransactionBuilder {
	accounts := b.buildAccounts(b.orderBaseAccounts(), nil, nil)
	for _, id := range userOrderIds {
		b.pushInstruction("cancel_order_by_user_id", accounts, struct {
			UserOrderId uint8
		}{id})
	}
	return b
}

// ModifyOrders adds one modify instruction per (order id, params) pair.
func (b *TransactionBuilder) ModifyOrders(orders ...ModifyOrder) *TransactionBuilder {
	for _, o := range orders {
		orderId := o.OrderId
		accounts := b.buildAccounts(b.orderBaseAccounts(), nil, nil)
		b.pushInstruction("modify_order", accounts, struct {
			OrderId           *uint32 `bin:"optional"`
			ModifyOrderParams types.ModifyOrderParams
		}{&orderId, o.Params})
	}
	return b
}

// ModifyOrdersByUserID adds one modify instruction per user-assigned id.
func (b *TransactionBuilder) ModifyOrdersByUserID(orders ...ModifyOrderByUserID) *TransactionBuilder {
	for _, o := range orders {
		accounts := b.buildAccounts(b.orderBaseAccounts(), nil, nil)
		b.pushInstruction("modify_order_by_user_id", accounts, struct {
			UserOrderId       uint8
			ModifyOrderParams types.ModifyOrderParams
		}{o.UserOrderId, o.Params})
	}
	return b
}

// ModifyOrder pairs a program order id with modification params.
type ModifyOrder struct {
	OrderId uint32
	Params  types.ModifyOrderParams
}

// ModifyOrderByUserID pairs a user order id with modification params.
type ModifyOrderByUserID struct {
	UserOrderId uint8
	Params      types.ModifyOrderParams
}

// TakerInfo identifies the taker side of a place-and-make.
type TakerInfo struct {
	Taker        solana.PublicKey
	TakerAccount *types.User
}

// MakerInfo identifies the maker side of a place-and-take.
type MakerInfo struct {
	Maker        solana.PublicKey
	MakerAccount *types.User
}

// PlaceAndMake adds an immediate maker order matched against a resting
// taker order. The taker's positions extend the remaining accounts.
func (b *TransactionBuilder) PlaceAndMake(order types.OrderParams, taker TakerInfo, takerOrderId uint32, referrer *solana.PublicKey, fulfillment types.SpotFulfillmentType) *TransactionBuilder {
	base := solana.AccountMetaSlice{
		solana.NewAccountMeta(StateAccount(), false, false),
		solana.NewAccountMeta(b.subAccount, true, false),
		solana.NewAccountMeta(b.statsAccount, true, false),
		solana.NewAccountMeta(taker.Taker, true, false),
		solana.NewAccountMeta(DeriveStatsAccount(taker.TakerAccount.Authority), true, false),
		solana.NewAccountMeta(b.authority, false, true),
	}
	accounts := b.buildAccountsForUsers(base, []*types.User{b.accountData, taker.TakerAccount}, nil, b.takeWritable(order))
	if referrer != nil {
		accounts = append(accounts,
			solana.NewAccountMeta(DeriveStatsAccount(*referrer), true, false),
			solana.NewAccountMeta(*referrer, true, false),
		)
	}
	if order.MarketType == types.MarketTypePerp {
		b.pushInstruction("place_and_make_perp_order", accounts, struct {
			Params       types.OrderParams
			TakerOrderId uint32
		}{order, takerOrderId})
	} else {
		b.pushInstruction("place_and_make_spot_order", accounts, struct {
			Params          types.OrderParams
			TakerOrderId    uint32
			FulfillmentType *types.SpotFulfillmentType `bin:"optional"`
		}{order, takerOrderId, &fulfillment})
	}
	return b
}

// PlaceAndTake adds an immediate taker order, optionally matched against a
// specific maker.
func (b *TransactionBuilder) PlaceAndTake(order types.OrderParams, maker *MakerInfo, referrer *solana.PublicKey, fulfillment types.SpotFulfillmentType) *TransactionBuilder {
	users := []*types.User{b.accountData}
	if maker != nil {
		users = append(users, maker.MakerAccount)
	}
	base := solana.AccountMetaSlice{
		solana.NewAccountMeta(StateAccount(), false, false),
		solana.NewAccountMeta(b.subAccount, true, false),
		solana.NewAccountMeta(b.statsAccount, true, false),
		solana.NewAccountMeta(b.authority, false, true),
	}
	accounts := b.buildAccountsForUsers(base, users, nil, b.takeWritable(order))
	if referrer != nil && (maker == nil || maker.Maker != *referrer) {
		accounts = append(accounts,
			solana.NewAccountMeta(DeriveStatsAccount(*referrer), true, false),
			solana.NewAccountMeta(*referrer, true, false),
		)
	}
	if order.MarketType == types.MarketTypePerp {
		b.pushInstruction("place_and_take_perp_order", accounts, struct {
			Params       types.OrderParams
			MakerOrderId *uint32 `bin:"optional"`
		}{order, nil})
	} else {
		b.pushInstruction("place_and_take_spot_order", accounts, struct {
			Params          types.OrderParams
			MakerOrderId    *uint32                    `bin:"optional"`
			FulfillmentType *types.SpotFulfillmentType `bin:"optional"`
		}{order, nil, &fulfillment})
	}
	return b
}

// takeWritable returns the writable market set of an immediate order: the
// traded market, plus the quote market for spot trades.
func (b *TransactionBuilder) takeWritable(order types.OrderParams) []types.MarketId {
	if order.MarketType == types.MarketTypePerp {
		return []types.MarketId{types.PerpMarketId(order.MarketIndex)}
	}
	return []types.MarketId{types.SpotMarketId(order.MarketIndex), types.QuoteSpotMarket}
}

func (b *TransactionBuilder) orderBaseAccounts() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(StateAccount(), false, false),
		solana.NewAccountMeta(b.subAccount, true, false),
		solana.NewAccountMeta(b.authority, false, true),
	}
}

// Build compiles the instruction list. Versioned mode (the default)
// compiles against the configured lookup tables; Legacy mode emits a legacy
// message. The recent block hash is set at signing time.
func (b *TransactionBuilder) Build() (*solana.Transaction, error) {
	if b.err != nil {
		return nil, b.err
	}
	opts := []solana.TransactionOption{solana.TransactionPayer(b.authority)}
	if !b.legacy {
		tables := make(map[solana.PublicKey]solana.PublicKeySlice, len(b.lookupTables))
		for _, table := range b.lookupTables {
			tables[table.Key] = table.Addresses
		}
		opts = append(opts, solana.TransactionAddressTables(tables))
	}
	return solana.NewTransaction(b.ixs, solana.Hash{}, opts...)
}

// AccountData returns the user snapshot the builder composes against.
func (b *TransactionBuilder) AccountData() *types.User { return b.accountData }

func (b *TransactionBuilder) pushInstruction(name string, accounts solana.AccountMetaSlice, args interface{}) {
	data, err := EncodeInstructionData(name, args)
	if err != nil {
		if b.err == nil {
			b.err = fmt.Errorf("encode %s: %w", name, err)
		}
		return
	}
	b.ixs = append(b.ixs, solana.NewInstruction(ProgramID, accounts, data))
}

func (b *TransactionBuilder) buildAccounts(base solana.AccountMetaSlice, readable, writable []types.MarketId) solana.AccountMetaSlice {
	return b.buildAccountsForUsers(base, []*types.User{b.accountData}, readable, writable)
}

// buildAccountsForUsers appends the "remaining accounts" the program
// requires to the instruction's base accounts: every market touched by the
// intent, every market where any involved user holds a position (needed for
// the program's margin re-check), the quote spot market, and the oracle of
// each included market.
func (b *TransactionBuilder) buildAccountsForUsers(base solana.AccountMetaSlice, users []*types.User, readable, writable []types.MarketId) solana.AccountMetaSlice {
	builder := newRemainingAccounts(b.programData)

	// writable first so the flag wins over later readable inclusions
	for _, market := range writable {
		builder.include(market, true)
	}
	for _, market := range readable {
		builder.include(market, false)
	}
	for _, user := range users {
		for i := range user.SpotPositions {
			if !user.SpotPositions[i].IsAvailable() {
				builder.include(types.SpotMarketId(user.SpotPositions[i].MarketIndex), false)
			}
		}
		for i := range user.PerpPositions {
			if !user.PerpPositions[i].IsAvailable() {
				builder.include(types.PerpMarketId(user.PerpPositions[i].MarketIndex), false)
			}
		}
	}
	// the quote market is always consulted during settlement
	builder.include(types.QuoteSpotMarket, false)

	if builder.err != nil && b.err == nil {
		b.err = builder.err
	}
	return append(base, builder.metas()...)
}

// EncodeInstructionData serializes a program instruction: the instruction
// discriminator followed by the packed args.
func EncodeInstructionData(name string, args interface{}) ([]byte, error) {
	disc := types.InstructionDiscriminator(name)
	buf := new(bytes.Buffer)
	buf.Write(disc[:])
	if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type cancelOrdersArgs struct {
	MarketIndex *uint16                  `bin:"optional"`
	MarketType  *types.MarketType        `bin:"optional"`
	Direction   *types.PositionDirection `bin:"optional"`
}

// remaining account sections, in the program's canonical order
const (
	sectionOracle = iota
	sectionSpot
	sectionPerp
)

type remainingAccount struct {
	section  int
	pubkey   solana.PublicKey
	writable bool
}

// remainingAccounts assembles the canonical remaining-accounts list:
// oracles, then spot markets, then perp markets, each section sorted
// lexicographically by pubkey. A single account never appears twice; two
// per-kind bitmasks skip markets already included.
type remainingAccounts struct {
	programData *ProgramData
	accounts    []remainingAccount
	seen        [2]uint64 // [spot, perp] index bitmasks
	err         error
}

func newRemainingAccounts(programData *ProgramData) *remainingAccounts {
	return &remainingAccounts{programData: programData}
}

func (r *remainingAccounts) include(market types.MarketId, writable bool) {
	indexBit := uint64(1) << (market.Index % 64)
	seen := &r.seen[int(market.Kind)%2]
	if *seen&indexBit != 0 {
		return
	}
	*seen |= indexBit

	var account remainingAccount
	var oracle solana.PublicKey
	switch market.Kind {
	case types.MarketTypeSpot:
		config, ok := r.programData.SpotMarketConfig(market.Index)
		if !ok {
			r.fail(market)
			return
		}
		account = remainingAccount{section: sectionSpot, pubkey: config.Pubkey, writable: writable}
		oracle = config.Oracle
	case types.MarketTypePerp:
		config, ok := r.programData.PerpMarketConfig(market.Index)
		if !ok {
			r.fail(market)
			return
		}
		account = remainingAccount{section: sectionPerp, pubkey: config.Pubkey, writable: writable}
		oracle = config.Amm.Oracle
	}
	r.insert(account)
	r.insert(remainingAccount{section: sectionOracle, pubkey: oracle})
}

func (r *remainingAccounts) fail(market types.MarketId) {
	if r.err == nil {
		r.err = fmt.Errorf("unknown market %s", market)
	}
}

// insert keeps accounts sorted by (section, pubkey); duplicates are dropped.
func (r *remainingAccounts) insert(account remainingAccount) {
	idx := sort.Search(len(r.accounts), func(i int) bool {
		a := r.accounts[i]
		if a.section != account.section {
			return a.section >= account.section
		}
		return bytes.Compare(a.pubkey[:], account.pubkey[:]) >= 0
	})
	if idx < len(r.accounts) && r.accounts[idx].section == account.section && r.accounts[idx].pubkey == account.pubkey {
		return
	}
	r.accounts = append(r.accounts, remainingAccount{})
	copy(r.accounts[idx+1:], r.accounts[idx:])
	r.accounts[idx] = account
}

func (r *remainingAccounts) metas() solana.AccountMetaSlice {
	out := make(solana.AccountMetaSlice, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, solana.NewAccountMeta(a.pubkey, a.writable, false))
	}
	return out
}
