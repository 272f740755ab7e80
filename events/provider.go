package events

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ClientProvider implements RPCProvider over a JSON-RPC client.
type ClientProvider struct {
	Client     *rpc.Client
	Commitment rpc.CommitmentType
}

// TxSignatures lists signatures for account, newest first.
func (p ClientProvider) TxSignatures(ctx context.Context, account solana.PublicKey, after solana.Signature, limit int) ([]solana.Signature, error) {
	opts := &rpc.GetSignaturesForAddressOpts{Commitment: p.commitment()}
	if !after.IsZero() {
		opts.Until = after
	}
	if limit > 0 {
		opts.Limit = &limit
	}
	res, err := p.Client.GetSignaturesForAddressWithOpts(ctx, account, opts)
	if err != nil {
		return nil, err
	}
	out := make([]solana.Signature, 0, len(res))
	for _, sig := range res {
		out = append(out, sig.Signature)
	}
	return out, nil
}

// Tx fetches one confirmed transaction's logs and static account keys.
func (p ClientProvider) Tx(ctx context.Context, signature solana.Signature) (*TxLogs, error) {
	maxVersion := uint64(0)
	res, err := p.Client.GetTransaction(ctx, signature, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     p.commitment(),
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, err
	}
	out := &TxLogs{}
	if res.Meta != nil {
		out.Logs = res.Meta.LogMessages
		out.Failed = res.Meta.Err != nil
	}
	if res.Transaction != nil {
		if tx, err := res.Transaction.GetTransaction(); err == nil && tx != nil {
			out.AccountKeys = tx.Message.AccountKeys
		}
	}
	return out, nil
}

func (p ClientProvider) commitment() rpc.CommitmentType {
	if p.Commitment == "" {
		return rpc.CommitmentConfirmed
	}
	return p.Commitment
}
