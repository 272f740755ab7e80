package vortex

import (
	"context"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/vortex-labs/vortex-go/stream"
	"github.com/vortex-labs/vortex-go/types"
)

// AccountProvider supplies raw account data to the facade. Implementations
// decide whether reads hit the network or a local mirror.
type AccountProvider interface {
	// GetAccount returns the raw data of account.
	GetAccount(ctx context.Context, account solana.PublicKey) ([]byte, error)
	// Endpoint returns the HTTP RPC endpoint URL.
	Endpoint() string
	// Commitment returns the provider's configured commitment level.
	Commitment() rpc.CommitmentType
}

// RPCAccountProvider always fetches from RPC.
type RPCAccountProvider struct {
	client     *rpc.Client
	endpoint   string
	commitment rpc.CommitmentType
}

// NewRPCAccountProvider creates a provider at confirmed commitment.
func NewRPCAccountProvider(endpoint string) *RPCAccountProvider {
	return NewRPCAccountProviderWithCommitment(endpoint, rpc.CommitmentConfirmed)
}

// NewRPCAccountProviderWithCommitment creates a provider with an explicit
// commitment level.
func NewRPCAccountProviderWithCommitment(endpoint string, commitment rpc.CommitmentType) *RPCAccountProvider {
	return &RPCAccountProvider{
		client:     rpc.New(endpoint),
		endpoint:   endpoint,
		commitment: commitment,
	}
}

// GetAccount fetches the account over RPC.
func (p *RPCAccountProvider) GetAccount(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	res, err := p.client.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Commitment: p.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		return nil, err
	}
	if res.Value == nil {
		return nil, types.ErrNotFound
	}
	return res.Value.Data.GetBinary(), nil
}

// Endpoint returns the RPC endpoint URL.
func (p *RPCAccountProvider) Endpoint() string { return p.endpoint }

// Commitment returns the provider's commitment level.
func (p *RPCAccountProvider) Commitment() rpc.CommitmentType { return p.commitment }

// WSAccountProvider fetches an account once, then keeps it fresh with a
// websocket subscription backed by a slow RPC poll. Subsequent reads are
// served from the in-memory mirror.
type WSAccountProvider struct {
	client     *rpc.Client
	endpoint   string
	commitment rpc.CommitmentType

	mu    sync.RWMutex
	cache map[solana.PublicKey]*watchedAccount
}

type watchedAccount struct {
	mu   sync.RWMutex
	data []byte
	slot uint64
}

// NewWSAccountProvider creates a websocket-backed provider.
func NewWSAccountProvider(endpoint string) *WSAccountProvider {
	return NewWSAccountProviderWithCommitment(endpoint, rpc.CommitmentConfirmed)
}

// NewWSAccountProviderWithCommitment creates a websocket-backed provider
// with an explicit commitment level.
func NewWSAccountProviderWithCommitment(endpoint string, commitment rpc.CommitmentType) *WSAccountProvider {
	return &WSAccountProvider{
		client:     rpc.New(endpoint),
		endpoint:   endpoint,
		commitment: commitment,
		cache:      make(map[solana.PublicKey]*watchedAccount),
	}
}

// GetAccount returns the mirrored account, fetching and subscribing on the
// first request for each pubkey.
func (p *WSAccountProvider) GetAccount(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	p.mu.RLock()
	watched, ok := p.cache[account]
	p.mu.RUnlock()
	if ok {
		watched.mu.RLock()
		defer watched.mu.RUnlock()
		return watched.data, nil
	}

	res, err := p.client.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Commitment: p.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		return nil, err
	}
	if res.Value == nil {
		return nil, types.ErrNotFound
	}
	data := res.Value.Data.GetBinary()

	watched = &watchedAccount{data: data}
	p.mu.Lock()
	if existing, ok := p.cache[account]; ok {
		p.mu.Unlock()
		existing.mu.RLock()
		defer existing.mu.RUnlock()
		return existing.data, nil
	}
	p.cache[account] = watched
	p.mu.Unlock()

	sub := stream.NewAccountSubscriber(account, stream.Options{
		WsURL:      WsURL(p.endpoint),
		Commitment: p.commitment,
	}, stream.WithPollFallback(p.client, 0))
	// detached: the watch lives for the provider's lifetime
	_, err = sub.Subscribe(context.Background(), func(update stream.AccountUpdate) {
		watched.mu.Lock()
		if update.Slot >= watched.slot {
			watched.data = update.Data
			watched.slot = update.Slot
		}
		watched.mu.Unlock()
	})
	if err != nil {
		return data, nil
	}
	return data, nil
}

// Endpoint returns the RPC endpoint URL.
func (p *WSAccountProvider) Endpoint() string { return p.endpoint }

// Commitment returns the provider's commitment level.
func (p *WSAccountProvider) Commitment() rpc.CommitmentType { return p.commitment }

// WsURL derives the websocket endpoint from an HTTP RPC endpoint.
func WsURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	default:
		return endpoint
	}
}
