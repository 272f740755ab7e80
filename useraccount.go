package vortex

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/vortex-labs/vortex-go/stream"
	"github.com/vortex-labs/vortex-go/types"
)

// UserAccount is a live mirror of one specific user (sub)account, distinct
// from the global user map.
type UserAccount struct {
	Pubkey       solana.PublicKey
	SubAccountID uint16

	sub   *stream.AccountSubscriber
	unsub stream.Unsubscribe

	mu          sync.RWMutex
	dataAndSlot types.DataAndSlot[types.User]
}

func newUserAccount(ctx context.Context, b *backend, pubkey solana.PublicKey, subAccountID uint16) (*UserAccount, error) {
	user, err := getAccount(ctx, b, pubkey, types.DecodeUser)
	if err != nil {
		return nil, err
	}
	return &UserAccount{
		Pubkey:       pubkey,
		SubAccountID: subAccountID,
		sub: stream.NewAccountSubscriber(pubkey, stream.Options{
			WsURL:      WsURL(b.accountProvider.Endpoint()),
			Commitment: b.accountProvider.Commitment(),
		}),
		dataAndSlot: types.DataAndSlot[types.User]{Data: user},
	}, nil
}

// Subscribe starts mirroring account updates.
func (u *UserAccount) Subscribe(ctx context.Context) error {
	unsub, err := u.sub.Subscribe(ctx, func(update stream.AccountUpdate) {
		user, err := types.DecodeUser(update.Data)
		if err != nil {
			return
		}
		u.mu.Lock()
		if update.Slot >= u.dataAndSlot.Slot {
			u.dataAndSlot = types.DataAndSlot[types.User]{Data: user, Slot: update.Slot}
		}
		u.mu.Unlock()
	})
	if err != nil {
		return err
	}
	u.unsub = unsub
	return nil
}

// Unsubscribe stops the mirror.
func (u *UserAccount) Unsubscribe() {
	if u.unsub != nil {
		u.unsub()
		u.unsub = nil
	}
}

// GetUserAccountAndSlot returns a snapshot of the account with its slot.
func (u *UserAccount) GetUserAccountAndSlot() types.DataAndSlot[types.User] {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.dataAndSlot
}

// GetUserAccount returns a snapshot of the account data.
func (u *UserAccount) GetUserAccount() types.User {
	return u.GetUserAccountAndSlot().Data
}
