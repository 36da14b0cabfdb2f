package infra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aretelew/pm-bot/internal/domain"
)

// RateLimiter implements a token bucket rate limiter shared by the REST
// and streaming-reconnect paths. Tokens refill continuously and are
// computed lazily on each check. Grants are strictly first-come
// first-served among waiters, so a burst of callers cannot starve an
// earlier one.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time

	waiters     []chan struct{}
	dispatching bool
}

// NewRateLimiter creates a new rate limiter.
// burst: maximum burst size (bucket capacity)
// perSecond: refill rate (tokens per second)
func NewRateLimiter(burst int, perSecond float64) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: perSecond,
		lastRefill: time.Now(),
	}
}

// Acquire blocks until a token is available or ctx is done. The caller
// supplies the timeout through ctx; expiry surfaces as ErrRateLimitTimeout.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	r.mu.Lock()
	r.refill()
	if len(r.waiters) == 0 && r.tokens >= 1 {
		r.tokens--
		r.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	r.waiters = append(r.waiters, ready)
	if !r.dispatching {
		r.dispatching = true
		go r.dispatch()
	}
	r.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		r.mu.Lock()
		removed := r.removeWaiter(ready)
		r.mu.Unlock()
		if !removed {
			// Grant raced with cancellation; the token is ours.
			return nil
		}
		return fmt.Errorf("%w: %v", domain.ErrRateLimitTimeout, ctx.Err())
	}
}

// TryAcquire attempts to acquire a token without blocking. It never
// jumps the queue: pending waiters always win.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if len(r.waiters) == 0 && r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// Tokens returns the current token count (for monitoring).
func (r *RateLimiter) Tokens() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	return r.tokens
}

// dispatch grants tokens to waiters in arrival order. Exactly one
// dispatch goroutine runs while the queue is non-empty.
func (r *RateLimiter) dispatch() {
	for {
		r.mu.Lock()
		r.refill()
		for len(r.waiters) > 0 && r.tokens >= 1 {
			r.tokens--
			close(r.waiters[0])
			r.waiters = r.waiters[1:]
		}
		if len(r.waiters) == 0 {
			r.dispatching = false
			r.mu.Unlock()
			return
		}
		wait := time.Duration((1 - r.tokens) / r.refillRate * float64(time.Second))
		r.mu.Unlock()
		time.Sleep(wait)
	}
}

// refill adds tokens based on elapsed time. Must be called with mutex held.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.tokens += elapsed * r.refillRate
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}
	r.lastRefill = now
}

// removeWaiter drops ch from the queue. Returns false if ch was
// already granted. Must be called with mutex held.
func (r *RateLimiter) removeWaiter(ch chan struct{}) bool {
	for i, w := range r.waiters {
		if w == ch {
			r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
			return true
		}
	}
	return false
}
