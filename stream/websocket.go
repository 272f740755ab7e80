package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/rs/zerolog"
)

// ProgramSubscriber maintains a resilient programSubscribe stream of account
// updates matching a filter set. On stream termination or connect failure it
// reopens with exponential backoff (base delay doubling to a cap), retrying
// at most MaxAttempts times; a successful read resets the counter.
//
// Updates whose slot is older than the last emitted slot are dropped;
// equal-slot updates are forwarded, since a late packet of the same slot may
// carry newer data.
type ProgramSubscriber struct {
	program solana.PublicKey
	filters []rpc.RPCFilter
	opts    Options
	log     zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewProgramSubscriber creates a subscriber for accounts of program matching
// every filter. It does not connect until Subscribe is called.
func NewProgramSubscriber(program solana.PublicKey, filters []rpc.RPCFilter, opts Options) *ProgramSubscriber {
	opts, log := opts.withDefaults("program-subscriber")
	return &ProgramSubscriber{
		program: program,
		filters: filters,
		opts:    opts,
		log:     log,
	}
}

// Subscribe starts the stream task, delivering each matching update to
// onUpdate synchronously on the stream goroutine. onUpdate must not block.
// The returned handle tears the transport down and ends the task.
func (s *ProgramSubscriber) Subscribe(ctx context.Context, onUpdate func(ProgramUpdate)) (Unsubscribe, error) {
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

func (s *ProgramSubscriber) streamLoop(ctx context.Context, onUpdate func(ProgramUpdate)) {
	bo := newReconnectBackoff(s.opts)
	attempts := 0
	var lastSlot uint64

	for {
		gotUpdate, err := s.runConn(ctx, &lastSlot, onUpdate)
		if ctx.Err() != nil {
			s.log.Debug().Msg("subscription cancelled")
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
		s.log.Warn().Err(err).Dur("retry_in", delay).Msg("stream disconnected, reconnecting")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// runConn opens one websocket connection and pumps it until failure or
// cancellation. Returns whether at least one update was received.
func (s *ProgramSubscriber) runConn(ctx context.Context, lastSlot *uint64, onUpdate func(ProgramUpdate)) (bool, error) {
	client, err := ws.Connect(ctx, s.opts.WsURL)
	if err != nil {
		return false, err
	}
	defer client.Close()

	// the client must not outlive the subscription context
	go func() {
		<-ctx.Done()
		client.Close()
	}()

	sub, err := client.ProgramSubscribeWithOpts(s.program, s.opts.Commitment, s.opts.Encoding, s.filters)
	if err != nil {
		return false, err
	}
	defer sub.Unsubscribe()

	s.log.Info().Str("program", s.program.String()).Msg("program stream connected")

	gotUpdate := false
	for {
		update, err := recvWithTimeout(ctx, s.opts.ReadTimeout, s.log, sub.Recv, sub.Unsubscribe)
		if err != nil {
			return gotUpdate, err
		}
		gotUpdate = true
		slot := update.Context.Slot
		if slot < *lastSlot {
			s.log.Debug().Uint64("slot", slot).Uint64("last_slot", *lastSlot).Msg("dropping stale update")
			continue
		}
		*lastSlot = slot
		onUpdate(ProgramUpdate{
			Pubkey: update.Value.Pubkey,
			Data:   update.Value.Account.Data.GetBinary(),
			Slot:   slot,
		})
	}
}

// recvWithTimeout reads the next update, tearing the subscription down if
// nothing arrives within timeout so the caller reconnects.
func recvWithTimeout[T any](ctx context.Context, timeout time.Duration, log zerolog.Logger, recv func() (T, error), unsub func()) (T, error) {
	if timeout <= 0 {
		return recv()
	}
	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		<-readCtx.Done()
		if errors.Is(readCtx.Err(), context.DeadlineExceeded) {
			log.Warn().Dur("timeout", timeout).Msg("read deadline exceeded, terminating connection")
			unsub()
		}
	}()
	return recv()
}

func newReconnectBackoff(opts Options) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.BaseDelay
	bo.Multiplier = 2
	bo.MaxInterval = opts.MaxDelay
	bo.MaxElapsedTime = 0
	bo.RandomizationFactor = 0
	bo.Reset()
	return bo
}
