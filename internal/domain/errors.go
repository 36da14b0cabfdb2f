package domain

import (
	"errors"
	"fmt"
)

// Typed outcomes for the execution engine. Transport-level transient
// failures are absorbed at the gateway boundary by retry; everything
// else propagates as one of these so the immediate caller can decide
// whether to skip a cycle or fail a specific order.
var (
	// ErrRateLimitTimeout: the caller waited past its budget for a token.
	ErrRateLimitTimeout = errors.New("rate limit timeout")

	// ErrExchangeRejected: the exchange returned a definitive error.
	// Never retried; a rejection implies a logic or balance problem.
	ErrExchangeRejected = errors.New("exchange rejected request")

	// ErrTransientNetwork: retried with backoff up to a bound, then surfaced.
	ErrTransientNetwork = errors.New("transient network failure")

	// ErrKillSwitchTripped: terminal for the session until an explicit reset.
	ErrKillSwitchTripped = errors.New("kill switch tripped")

	// ErrNotFound: no such ticker in the hub.
	ErrNotFound = errors.New("not found")
)

// VetoError is a risk rejection of an intent. It is an expected
// outcome, not an exception condition.
type VetoError struct {
	Reason string
}

func (e *VetoError) Error() string {
	return fmt.Sprintf("risk veto: %s", e.Reason)
}

// IsVeto reports whether err is a risk veto.
func IsVeto(err error) bool {
	var v *VetoError
	return errors.As(err, &v)
}
