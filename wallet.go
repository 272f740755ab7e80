package vortex

import (
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"

	"github.com/vortex-labs/vortex-go/types"
)

// Wallet holds the signing key and the exchange authority it acts for.
// The signer is either the authority itself or a delegate.
type Wallet struct {
	signer    solana.PrivateKey
	authority solana.PublicKey
	stats     solana.PublicKey
	readOnly  bool
}

// NewWallet creates a wallet signing as the given keypair's authority.
func NewWallet(signer solana.PrivateKey) *Wallet {
	authority := signer.PublicKey()
	return &Wallet{
		signer:    signer,
		authority: authority,
		stats:     DeriveStatsAccount(authority),
	}
}

// WalletFromBase58 creates a wallet from a base58 encoded private key.
// Malformed keys are surfaced at construction, never later.
func WalletFromBase58(encoded string) (*Wallet, error) {
	signer, err := solana.PrivateKeyFromBase58(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidSeed, err)
	}
	return NewWallet(signer), nil
}

// WalletFromFile creates a wallet from a keygen JSON file.
func WalletFromFile(path string) (*Wallet, error) {
	signer, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidSeed, err)
	}
	return NewWallet(signer), nil
}

// WalletFromStr accepts either a file path or a base58 encoded key.
func WalletFromStr(pathOrKey string) (*Wallet, error) {
	if _, err := os.Stat(pathOrKey); err == nil {
		return WalletFromFile(pathOrKey)
	}
	return WalletFromBase58(pathOrKey)
}

// ReadOnlyWallet creates a wallet that can derive addresses but not sign.
func ReadOnlyWallet(authority solana.PublicKey) *Wallet {
	return &Wallet{
		authority: authority,
		stats:     DeriveStatsAccount(authority),
		readOnly:  true,
	}
}

// ToDelegated switches the wallet into delegated mode: the configured key
// keeps signing, while accounts derive from the given authority.
func (w *Wallet) ToDelegated(authority solana.PublicKey) {
	w.authority = authority
	w.stats = DeriveStatsAccount(authority)
}

// IsDelegated reports whether the signer differs from the authority.
func (w *Wallet) IsDelegated() bool {
	return !w.readOnly && w.signer.PublicKey() != w.authority
}

// Authority returns the exchange authority address.
func (w *Wallet) Authority() solana.PublicKey { return w.authority }

// Signer returns the signing address.
func (w *Wallet) Signer() solana.PublicKey { return w.signer.PublicKey() }

// StatsAccount returns the authority's stats account address.
func (w *Wallet) StatsAccount() solana.PublicKey { return w.stats }

// DefaultSubAccount returns the address of sub-account 0.
func (w *Wallet) DefaultSubAccount() solana.PublicKey { return w.SubAccount(0) }

// SubAccount returns the user account address for a sub-account id.
func (w *Wallet) SubAccount(subAccountID uint16) solana.PublicKey {
	return DeriveUserAccount(w.authority, subAccountID)
}

// SignTx sets the recent block hash on tx and signs it.
func (w *Wallet) SignTx(tx *solana.Transaction, recentBlockhash solana.Hash) error {
	if w.readOnly {
		return fmt.Errorf("read-only wallet cannot sign")
	}
	tx.Message.RecentBlockhash = recentBlockhash
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key == w.signer.PublicKey() {
			return &w.signer
		}
		return nil
	})
	return err
}

// DeriveUserAccount returns the PDA of a user (sub)account.
func DeriveUserAccount(authority solana.PublicKey, subAccountID uint16) solana.PublicKey {
	return findProgramAddress([][]byte{[]byte("user"), authority.Bytes(), indexSeed(subAccountID)})
}

// DeriveStatsAccount returns the PDA of an authority's stats account.
func DeriveStatsAccount(authority solana.PublicKey) solana.PublicKey {
	return findProgramAddress([][]byte{[]byte("user_stats"), authority.Bytes()})
}
