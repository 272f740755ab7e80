package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/rs/zerolog"
)

// AccountSubscriber maintains a resilient accountSubscribe stream for a
// single account. A periodic RPC poll backs the stream up; a polled value
// wins only when its slot is newer than the last streamed one.
type AccountSubscriber struct {
	account      solana.PublicKey
	opts         Options
	log          zerolog.Logger
	rpcClient    *rpc.Client
	pollInterval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// AccountSubscriberOption customizes an AccountSubscriber.
type AccountSubscriberOption func(*AccountSubscriber)

// WithPollFallback enables the RPC poll fallback using client at the given
// interval (10s if interval <= 0).
func WithPollFallback(client *rpc.Client, interval time.Duration) AccountSubscriberOption {
	return func(s *AccountSubscriber) {
		s.rpcClient = client
		if interval <= 0 {
			interval = 10 * time.Second
		}
		s.pollInterval = interval
	}
}

// NewAccountSubscriber creates a subscriber for a single account.
func NewAccountSubscriber(account solana.PublicKey, opts Options, extra ...AccountSubscriberOption) *AccountSubscriber {
	opts, log := opts.withDefaults("account-subscriber")
	s := &AccountSubscriber{
		account: account,
		opts:    opts,
		log:     log.With().Str("account", account.String()).Logger(),
	}
	for _, o := range extra {
		o(s)
	}
	return s
}

// Subscribe starts the stream task. onUpdate runs synchronously on the
// stream goroutine and must not block.
func (s *AccountSubscriber) Subscribe(ctx context.Context, onUpdate func(AccountUpdate)) (Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, errors.New("already subscribed")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	go s.streamLoop(ctx, onUpdate)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.running {
			s.cancel()
			s.running = false
		}
	}, nil
}

func (s *AccountSubscriber) streamLoop(ctx context.Context, onUpdate func(AccountUpdate)) {
	bo := newReconnectBackoff(s.opts)
	attempts := 0
	var lastSlot uint64

	for {
		gotUpdate, err := s.runConn(ctx, &lastSlot, onUpdate)
		if ctx.Err() != nil {
			return
		}
		if gotUpdate {
			attempts = 0
			bo.Reset()
		}
		attempts++
		if attempts >= s.opts.MaxAttempts {
			s.log.Warn().Err(err).Int("attempts", attempts).Msg("max reconnection attempts reached, stream task ending")
			return
		}
		delay := bo.NextBackOff()
		s.log.Warn().Err(err).Dur("retry_in", delay).Msg("account stream disconnected, reconnecting")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (s *AccountSubscriber) runConn(ctx context.Context, lastSlot *uint64, onUpdate func(AccountUpdate)) (bool, error) {
	client, err := ws.Connect(ctx, s.opts.WsURL)
	if err != nil {
		return false, err
	}
	defer client.Close()

	go func() {
		<-ctx.Done()
		client.Close()
	}()

	sub, err := client.AccountSubscribeWithOpts(s.account, s.opts.Commitment, s.opts.Encoding)
	if err != nil {
		return false, err
	}
	defer sub.Unsubscribe()

	s.log.Info().Msg("account stream connected")

	updates := make(chan AccountUpdate)
	recvErr := make(chan error, 1)
	go func() {
		for {
			update, err := recvWithTimeout(ctx, s.opts.ReadTimeout, s.log, sub.Recv, sub.Unsubscribe)
			if err != nil {
				recvErr <- err
				return
			}
			select {
			case updates <- AccountUpdate{
				Pubkey: s.account,
				Data:   update.Value.Data.GetBinary(),
				Slot:   update.Context.Slot,
			}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var pollC <-chan time.Time
	if s.rpcClient != nil {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		pollC = ticker.C
	}

	gotUpdate := false
	for {
		select {
		case update := <-updates:
			gotUpdate = true
			if update.Slot < *lastSlot {
				continue
			}
			*lastSlot = update.Slot
			onUpdate(update)
		case err := <-recvErr:
			return gotUpdate, err
		case <-pollC:
			s.pollOnce(ctx, lastSlot, onUpdate)
		case <-ctx.Done():
			return gotUpdate, ctx.Err()
		}
	}
}

// pollOnce fetches the account over RPC; the result is applied only if it
// is strictly newer than the last streamed update.
func (s *AccountSubscriber) pollOnce(ctx context.Context, lastSlot *uint64, onUpdate func(AccountUpdate)) {
	res, err := s.rpcClient.GetAccountInfoWithOpts(ctx, s.account, &rpc.GetAccountInfoOpts{
		Commitment: s.opts.Commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil || res.Value == nil {
		s.log.Debug().Err(err).Msg("account poll failed")
		return
	}
	slot := res.RPCContext.Context.Slot
	if slot <= *lastSlot {
		return
	}
	*lastSlot = slot
	onUpdate(AccountUpdate{
		Pubkey: s.account,
		Data:   res.Value.Data.GetBinary(),
		Slot:   slot,
	})
}
