package infra

import (
	"math/rand"
	"time"
)

// Backoff computes capped exponential delays with optional jitter.
// The zero value is not usable; construct with DefaultBackoff or fill
// every field.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64 // fraction of the delay, 0..1
}

// DefaultBackoff provides conservative retry defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   1 * time.Second,
		Max:    60 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next returns the backoff duration for the given attempt (0-based):
// Base * Factor^attempt, capped at Max, plus symmetric jitter.
func (b Backoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	wait := b.Base
	for i := 0; i < attempt; i++ {
		next := time.Duration(float64(wait) * b.Factor)
		if next > b.Max || next < wait {
			wait = b.Max
			break
		}
		wait = next
	}
	if wait > b.Max {
		wait = b.Max
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := b.Jitter
	if jitter > 1 {
		jitter = 1
	}
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}
