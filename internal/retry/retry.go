// Package retry runs an operation under an explicit retry policy.
package retry

import (
	"context"
	"time"
)

// Policy controls how many times an operation is attempted and how long to wait
// between attempts. A zero Multiplier keeps the delay fixed.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
	MaxDelay    time.Duration

	// Retryable decides whether a failed attempt is worth repeating.
	// A nil Retryable retries every error.
	Retryable func(error) bool

	// BeforeAttempt, when set, runs before every attempt after the first.
	// attempt is zero-based.
	BeforeAttempt func(attempt int)
}

// Fixed returns a policy that retries up to retries times with a constant delay.
func Fixed(retries int, delay time.Duration, retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: retries + 1,
		Delay:       delay,
		Retryable:   retryable,
	}
}

// Exponential returns a policy of at most attempts tries whose delay doubles each time.
func Exponential(attempts int, initial time.Duration) Policy {
	return Policy{
		MaxAttempts: attempts,
		Delay:       initial,
		Multiplier:  2,
	}
}

// DelayFor returns the wait before the given zero-based attempt.
func (p Policy) DelayFor(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := p.Delay
	if p.Multiplier > 1 {
		for i := 1; i < attempt; i++ {
			delay = time.Duration(float64(delay) * p.Multiplier)
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempts are
// exhausted. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, p.DelayFor(attempt)); err != nil {
				return lastErr
			}
			if p.BeforeAttempt != nil {
				p.BeforeAttempt(attempt)
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
