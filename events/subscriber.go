package events

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/vortex-labs/vortex-go/stream"
)

const (
	logStreamCacheSize   = 256
	polledCacheSize      = 128
	eventChannelCapacity = 256
	pollInterval         = 400 * time.Millisecond
)

// TxLogs is the extractor's view of one confirmed transaction.
type TxLogs struct {
	// Logs are the transaction's log lines, in emission order.
	Logs []string
	// AccountKeys are the transaction's static account keys.
	AccountKeys []solana.PublicKey
	// Failed marks a transaction whose execution errored.
	Failed bool
}

// RPCProvider is the polling transport surface for event extraction.
type RPCProvider interface {
	// TxSignatures returns signatures of transactions referencing account,
	// newest first. A non-zero after bounds the scan to newer transactions;
	// limit > 0 bounds the count.
	TxSignatures(ctx context.Context, account solana.PublicKey, after solana.Signature, limit int) ([]solana.Signature, error)
	// Tx fetches the logs of a confirmed transaction.
	Tx(ctx context.Context, signature solana.Signature) (*TxLogs, error)
}

// EventStream is a cancellable stream of domain events for one sub-account.
type EventStream struct {
	ch     chan Event
	cancel context.CancelFunc
}

// Events returns the event channel. It is closed when the underlying task
// ends.
func (s *EventStream) Events() <-chan Event { return s.ch }

// Unsubscribe aborts the stream task.
func (s *EventStream) Unsubscribe() { s.cancel() }

// Subscriber extracts sub-account events from either a log subscription or
// historical transaction polling.
type Subscriber struct {
	// Program is the program id whose transactions carry the events.
	Program solana.PublicKey
	// Logger for extraction diagnostics. Nil uses the package default.
	Logger *zerolog.Logger
}

func (s Subscriber) logger() zerolog.Logger {
	base := s.Logger
	if base == nil {
		l := stream.DefaultLogger()
		base = &l
	}
	return base.With().Str("component", "events").Logger()
}

// SubscribeLogs streams events for subAccount backed by a websocket log
// subscription. Events arrive in transport order; within one transaction
// TxIdx preserves emission order.
func (s Subscriber) SubscribeLogs(ctx context.Context, subAccount solana.PublicKey, opts stream.Options) (*EventStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	es := &EventStream{ch: make(chan Event, eventChannelCapacity), cancel: cancel}
	log := s.logger().With().Str("sub_account", subAccount.String()).Logger()

	extractor := &logExtractor{
		subAccount: subAccount,
		cache:      newSignatureCache(logStreamCacheSize),
		out:        es.ch,
		log:        log,
	}

	sub := stream.NewLogSubscriber(subAccount, opts)
	unsub, err := sub.Subscribe(ctx, func(update stream.LogUpdate) {
		extractor.processLogs(ctx, update.Signature.String(), update.Logs, update.Failed)
	})
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		<-ctx.Done()
		unsub()
		close(es.ch)
	}()
	return es, nil
}

// SubscribePolled streams events for subAccount by polling the transaction
// history. Consumers see events in chronological order across transactions.
func (s Subscriber) SubscribePolled(ctx context.Context, provider RPCProvider, subAccount solana.PublicKey) *EventStream {
	ctx, cancel := context.WithCancel(ctx)
	es := &EventStream{ch: make(chan Event, eventChannelCapacity), cancel: cancel}
	log := s.logger().With().Str("sub_account", subAccount.String()).Logger()

	poller := &polledStream{
		program:    s.Program,
		subAccount: subAccount,
		provider:   provider,
		extractor: &logExtractor{
			subAccount: subAccount,
			cache:      newSignatureCache(polledCacheSize),
			out:        es.ch,
			log:        log,
		},
		log: log,
	}

	go func() {
		defer close(es.ch)
		poller.run(ctx)
	}()
	return es
}

// logExtractor turns one transaction's log lines into deduplicated,
// relevance-filtered events.
type logExtractor struct {
	subAccount solana.PublicKey
	cache      *signatureCache
	out        chan Event
	log        zerolog.Logger
}

var emptySignature = solana.Signature{}

// processLogs walks a transaction's log lines in order, assigning ascending
// tx indexes. The signature is recorded in the dedup cache even when no
// event decodes, so a replayed notification stays silent.
func (e *logExtractor) processLogs(ctx context.Context, signature string, logs []string, failed bool) {
	if failed {
		e.log.Debug().Str("signature", signature).Msg("skipping failed tx")
		return
	}
	if signature == emptySignature.String() {
		e.log.Debug().Msg("skipping empty signature")
		return
	}
	if e.cache.seen(signature) {
		e.log.Debug().Str("signature", signature).Msg("skipping cached tx")
		return
	}

	for txIdx, line := range logs {
		event, ok := ParseLog(line, signature, txIdx)
		if !ok {
			continue
		}
		// unrelated events from the same transaction are suppressed, e.g.
		// other participants' fills in a batch
		if !event.PertainsTo(e.subAccount) {
			continue
		}
		select {
		case e.out <- event:
		case <-ctx.Done():
			return
		}
	}
}

// polledStream anchors getSignaturesForAddress to the last seen signature
// and replays each transaction's logs in chronological order.
type polledStream struct {
	program    solana.PublicKey
	subAccount solana.PublicKey
	provider   RPCProvider
	extractor  *logExtractor
	log        zerolog.Logger
}

func (p *polledStream) run(ctx context.Context) {
	// anchor at the most recent tx so only new activity is streamed
	var lastSeen solana.Signature
	if initial, err := p.provider.TxSignatures(ctx, p.subAccount, solana.Signature{}, 1); err == nil && len(initial) > 0 {
		lastSeen = initial[0]
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		signatures, err := p.provider.TxSignatures(ctx, p.subAccount, lastSeen, 0)
		if err != nil {
			p.log.Warn().Err(err).Msg("poll tx signatures failed")
			continue
		}
		if len(signatures) == 0 {
			continue
		}

		// the RPC returns newest first; process in reverse so subscribers
		// receive events in chronological order
		abandoned := false
		for i := len(signatures) - 1; i >= 0; i-- {
			signature := signatures[i]
			tx, err := p.provider.Tx(ctx, signature)
			if err != nil {
				// abandon the batch; the next tick retries from lastSeen
				p.log.Warn().Err(err).Str("signature", signature.String()).Msg("poll tx fetch failed, abandoning batch")
				abandoned = true
				break
			}
			lastSeen = signature
			if tx.Failed {
				continue
			}
			if len(tx.AccountKeys) > 0 && !mentionsProgram(tx.AccountKeys, p.program) {
				continue
			}
			p.extractor.processLogs(ctx, signature.String(), tx.Logs, tx.Failed)
		}
		if abandoned {
			continue
		}
	}
}

func mentionsProgram(keys []solana.PublicKey, program solana.PublicKey) bool {
	for _, k := range keys {
		if k == program {
			return true
		}
	}
	return false
}
