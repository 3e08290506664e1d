package main

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cockroachdb/errors"
)

// Backoff wraps fallible remote calls with bounded retries and exponential
// delay plus jitter. It holds no shared state of its own; callers own the
// idempotency of the wrapped operation.
type Backoff struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// sleep is swapped out in tests for an instant, counting stub.
	sleep func(time.Duration)
}

// NewBackoff returns an executor with the default budget: 3 attempts
// starting from a 1s delay, doubling each attempt.
func NewBackoff() *Backoff {
	return &Backoff{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		sleep:       time.Sleep,
	}
}

// Do runs op until it succeeds, fails fatally, or exhausts the attempt
// budget. retryable partitions errors; only errors it accepts are retried.
// Exhaustion surfaces the last error marked ErrRetriesExhausted.
func (b *Backoff) Do(ctx context.Context, op func() error, retryable func(error) bool) error {
	delay := b.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= b.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == b.MaxAttempts {
			break
		}

		b.sleep(delay + jitter(delay))
		delay *= 2
	}

	return errors.Mark(errors.Wrapf(lastErr, "after %d attempts", b.MaxAttempts), ErrRetriesExhausted)
}

// jitter returns a random duration in [0, delay/2) so concurrent workers
// hitting the same rate limit don't retry in lockstep.
func jitter(delay time.Duration) time.Duration {
	if delay <= 1 {
		return 0
	}
	return rand.N(delay / 2)
}
