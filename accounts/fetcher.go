// Package accounts holds the SDK's live account mirrors: a generic
// slot-stamped concurrent cache and its market, oracle and user
// specializations, each fed by a bulk snapshot plus a streaming subscription.
package accounts

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/vortex-labs/vortex-go/types"
)

// KeyedAccount pairs an account's pubkey with its raw data.
type KeyedAccount struct {
	Pubkey solana.PublicKey
	Data   []byte
}

// Fetcher is the narrow RPC surface the maps need for bulk syncs and
// on-demand fetches. Every call returns the slot the data was observed at.
type Fetcher interface {
	// ProgramAccounts lists all program accounts matching filters.
	ProgramAccounts(ctx context.Context, filters []rpc.RPCFilter) ([]KeyedAccount, uint64, error)
	// MultipleAccounts fetches raw data for each key; a missing account
	// yields a nil entry at its index.
	MultipleAccounts(ctx context.Context, keys []solana.PublicKey) ([][]byte, uint64, error)
	// AccountData fetches one account's raw data.
	AccountData(ctx context.Context, key solana.PublicKey) ([]byte, uint64, error)
}

// RPCFetcher implements Fetcher over a JSON-RPC client.
type RPCFetcher struct {
	client     *rpc.Client
	program    solana.PublicKey
	commitment rpc.CommitmentType
}

// NewRPCFetcher creates a Fetcher scoped to the given program id.
func NewRPCFetcher(client *rpc.Client, program solana.PublicKey, commitment rpc.CommitmentType) *RPCFetcher {
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &RPCFetcher{client: client, program: program, commitment: commitment}
}

// ProgramAccounts issues one bounded getProgramAccounts call. The sync
// baseline slot is read up front so it can never be newer than the data.
func (f *RPCFetcher) ProgramAccounts(ctx context.Context, filters []rpc.RPCFilter) ([]KeyedAccount, uint64, error) {
	slot, err := f.client.GetSlot(ctx, f.commitment)
	if err != nil {
		return nil, 0, fmt.Errorf("get slot: %w", err)
	}
	res, err := f.client.GetProgramAccountsWithOpts(ctx, f.program, &rpc.GetProgramAccountsOpts{
		Commitment: f.commitment,
		Encoding:   solana.EncodingBase64,
		Filters:    filters,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("get program accounts: %w", err)
	}
	out := make([]KeyedAccount, 0, len(res))
	for _, keyed := range res {
		out = append(out, KeyedAccount{
			Pubkey: keyed.Pubkey,
			Data:   keyed.Account.Data.GetBinary(),
		})
	}
	return out, slot, nil
}

// MultipleAccounts issues one getMultipleAccounts call; the response slot
// applies uniformly to every returned entry.
func (f *RPCFetcher) MultipleAccounts(ctx context.Context, keys []solana.PublicKey) ([][]byte, uint64, error) {
	res, err := f.client.GetMultipleAccountsWithOpts(ctx, keys, &rpc.GetMultipleAccountsOpts{
		Commitment: f.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("get multiple accounts: %w", err)
	}
	out := make([][]byte, len(res.Value))
	for i, acc := range res.Value {
		if acc != nil {
			out[i] = acc.Data.GetBinary()
		}
	}
	return out, res.RPCContext.Context.Slot, nil
}

// AccountData fetches one account.
func (f *RPCFetcher) AccountData(ctx context.Context, key solana.PublicKey) ([]byte, uint64, error) {
	res, err := f.client.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{
		Commitment: f.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("get account info: %w", err)
	}
	if res.Value == nil {
		return nil, 0, types.ErrNotFound
	}
	return res.Value.Data.GetBinary(), res.RPCContext.Context.Slot, nil
}
