package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/rs/zerolog"
)

// LogSubscriber maintains a resilient logsSubscribe stream in mentions-pubkey
// filter mode: every transaction referencing the account is delivered with
// its full ordered list of log lines.
type LogSubscriber struct {
	mentions solana.PublicKey
	opts     Options
	log      zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewLogSubscriber creates a subscriber for transactions mentioning account.
func NewLogSubscriber(mentions solana.PublicKey, opts Options) *LogSubscriber {
	opts, log := opts.withDefaults("log-subscriber")
	return &LogSubscriber{
		mentions: mentions,
		opts:     opts,
		log:      log.With().Str("mentions", mentions.String()).Logger(),
	}
}

// Subscribe starts the stream task. onUpdate runs synchronously on the
// stream goroutine and must not block.
func (s *LogSubscriber) Subscribe(ctx context.Context, onUpdate func(LogUpdate)) (Unsubscribe, error) {
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

func (s *LogSubscriber) streamLoop(ctx context.Context, onUpdate func(LogUpdate)) {
	bo := newReconnectBackoff(s.opts)
	attempts := 0

	for {
		gotUpdate, err := s.runConn(ctx, onUpdate)
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
		s.log.Warn().Err(err).Dur("retry_in", delay).Msg("log stream disconnected, reconnecting")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (s *LogSubscriber) runConn(ctx context.Context, onUpdate func(LogUpdate)) (bool, error) {
	client, err := ws.Connect(ctx, s.opts.WsURL)
	if err != nil {
		return false, err
	}
	defer client.Close()

	go func() {
		<-ctx.Done()
		client.Close()
	}()

	sub, err := client.LogsSubscribeMentions(s.mentions, s.opts.Commitment)
	if err != nil {
		return false, err
	}
	defer sub.Unsubscribe()

	s.log.Info().Msg("log stream connected")

	gotUpdate := false
	for {
		update, err := recvWithTimeout(ctx, s.opts.ReadTimeout, s.log, sub.Recv, sub.Unsubscribe)
		if err != nil {
			return gotUpdate, err
		}
		gotUpdate = true
		onUpdate(LogUpdate{
			Signature: update.Value.Signature,
			Logs:      update.Value.Logs,
			Failed:    update.Value.Err != nil,
			Slot:      update.Context.Slot,
		})
	}
}
