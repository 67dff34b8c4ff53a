// Package retry re-runs idempotent upstream calls with jittered exponential
// backoff.
package retry

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"time"
)

type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Retryable decides whether err is worth another attempt. Nil means
	// IsTransient.
	Retryable func(error) bool
}

// Default is two attempts, 500ms apart.
func Default() Config {
	return Config{
		MaxAttempts:  2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     4 * time.Second,
		Multiplier:   2.0,
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, or attempts
// run out. The last error is returned; a cancelled ctx between attempts
// returns ctx.Err().
func Do(ctx context.Context, cfg Config, fn func(attempt int) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var lastErr error
	delay := cfg.InitialDelay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts || !retryable(lastErr) {
			break
		}

		wait := jitter(delay)
		if cfg.MaxDelay > 0 && wait > cfg.MaxDelay {
			wait = cfg.MaxDelay
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}

// Budget is the longest Do can run when every attempt takes perAttempt and
// every backoff lands at the top of its jitter range.
func (c Config) Budget(perAttempt time.Duration) time.Duration {
	attempts := max(c.MaxAttempts, 1)
	multiplier := max(c.Multiplier, 1)
	total := time.Duration(attempts) * perAttempt
	delay := c.InitialDelay
	for i := 0; i < attempts-1; i++ {
		wait := delay + delay/4
		if c.MaxDelay > 0 && wait > c.MaxDelay {
			wait = c.MaxDelay
		}
		total += wait
		delay = time.Duration(float64(delay) * multiplier)
		if c.MaxDelay > 0 && delay > c.MaxDelay {
			delay = c.MaxDelay
		}
	}
	return total
}

// jitter spreads d over [0.75d, 1.25d).
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.75 + rand.Float64()*0.5))
}

// IsTransient reports network-level failures: timeouts, resets, EOF.
// Caller cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
