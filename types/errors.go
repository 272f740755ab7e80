package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the SDK's failure taxonomy. Stream-internal failures
// are absorbed by the runtime; only explicit API calls surface these.
var (
	// ErrNotFound is returned when a requested account does not exist.
	ErrNotFound = errors.New("account not found")
	// ErrInvalidAccount is returned when account bytes do not decode to the
	// expected type (wrong length or discriminator).
	ErrInvalidAccount = errors.New("invalid account data")
	// ErrInvalidOracle is returned when a market references an unknown oracle.
	ErrInvalidOracle = errors.New("invalid oracle")
	// ErrInvalidSeed is returned for malformed wallet seeds at construction.
	ErrInvalidSeed = errors.New("invalid seed")
	// ErrMaxReconnects is logged terminally when a stream task exhausts its
	// reconnection budget.
	ErrMaxReconnects = errors.New("max reconnection attempts reached")
)

// DecodeError wraps a failure to decode raw account bytes into a typed value.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// OutOfFundsError tags a sendTransaction rejection caused by an unfunded
// fee payer, so callers can distinguish it from other RPC failures.
type OutOfFundsError struct {
	Err error
}

func (e *OutOfFundsError) Error() string {
	return fmt.Sprintf("out of funds: %v", e.Err)
}

func (e *OutOfFundsError) Unwrap() error { return e.Err }

// WrapOutOfFunds converts a send error into an OutOfFundsError when the RPC
// response indicates an unfunded fee payer, otherwise returns err unchanged.
func WrapOutOfFunds(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "insufficient funds for") ||
		strings.Contains(msg, "Attempt to debit an account but found no record of a prior credit") {
		return &OutOfFundsError{Err: err}
	}
	return err
}

// IsOutOfFunds reports whether err is an out-of-funds send failure.
func IsOutOfFunds(err error) bool {
	var oof *OutOfFundsError
	return errors.As(err, &oof)
}
