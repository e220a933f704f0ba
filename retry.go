package main

import (
	"context"
	"errors"
	"time"

	"github.com/jpillora/backoff"
)

// retryPolicy bounds how often a flaky native read is repeated. With the
// default Factor of 1 every wait is Interval; a larger Factor grows the wait
// per attempt up to MaxInterval.
type retryPolicy struct {
	Attempts    int
	Interval    time.Duration
	Factor      float64
	MaxInterval time.Duration
	Jitter      bool
}

func (p retryPolicy) backoff() *backoff.Backoff {
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	maxInterval := p.MaxInterval
	if maxInterval < p.Interval {
		maxInterval = p.Interval
	}
	return &backoff.Backoff{Min: p.Interval, Max: maxInterval, Factor: factor, Jitter: p.Jitter}
}

// delay is the wait after the given zero-based failed attempt.
func (p retryPolicy) delay(attempt int) time.Duration {
	if p.Interval <= 0 {
		return 0
	}
	return p.backoff().ForAttempt(float64(attempt))
}

// do calls fn until it succeeds or the attempts run out, sleeping between
// attempts. The last error is returned.
func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		wait := p.delay(i)
		if i == attempts-1 || wait <= 0 {
			continue
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}
