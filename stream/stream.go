// Package stream provides the subscription runtime: resilient websocket and
// gRPC streams of account updates and transaction logs, with reconnect,
// backoff and slot-monotonicity filtering.
//
// Callbacks registered with any subscriber run synchronously on the stream
// goroutine. They MUST NOT block: a callback is expected to do at most a
// decode and one cache insert. Blocking work starves the stream.
package stream

import (
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
)

// Unsubscribe tears down a subscription task. It is safe to call more than
// once; updates are not delivered after it returns.
type Unsubscribe func()

// ProgramUpdate is one account change delivered by a program subscription.
type ProgramUpdate struct {
	Pubkey solana.PublicKey
	Data   []byte
	Slot   uint64
}

// AccountUpdate is one change of a single subscribed account.
type AccountUpdate struct {
	Pubkey solana.PublicKey
	Data   []byte
	Slot   uint64
}

// LogUpdate is one transaction's ordered log lines.
type LogUpdate struct {
	Signature solana.Signature
	Logs      []string
	Failed    bool
	Slot      uint64
}

// Options configures a websocket stream task.
type Options struct {
	// WsURL is the websocket endpoint.
	WsURL string
	// Commitment selects the confirmation level of delivered updates.
	Commitment rpc.CommitmentType
	// Encoding of account data on the wire.
	Encoding solana.EncodingType
	// MaxAttempts bounds consecutive reconnection attempts (minimum 5).
	MaxAttempts int
	// BaseDelay is the first reconnect delay; it doubles up to MaxDelay.
	BaseDelay time.Duration
	// MaxDelay caps the reconnect delay.
	MaxDelay time.Duration
	// ReadTimeout tears the connection down when no update arrives in time,
	// forcing a reconnect. Zero disables the check.
	ReadTimeout time.Duration
	// Logger for stream lifecycle events. Nil uses the package default.
	Logger *zerolog.Logger
}

const (
	defaultMaxAttempts = 20
	defaultBaseDelay   = 5 * time.Second
	defaultMaxDelay    = 80 * time.Second
)

func (o Options) withDefaults(component string) (Options, zerolog.Logger) {
	if o.MaxAttempts < 5 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = defaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = defaultMaxDelay
	}
	if o.Commitment == "" {
		o.Commitment = rpc.CommitmentConfirmed
	}
	if o.Encoding == "" {
		o.Encoding = solana.EncodingBase64
	}
	base := o.Logger
	if base == nil {
		l := DefaultLogger()
		base = &l
	}
	return o, base.With().Str("component", component).Logger()
}

// DefaultLogger returns the logger used when none is configured.
func DefaultLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}
