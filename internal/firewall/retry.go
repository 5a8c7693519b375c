package firewall

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig bounds the backoff used by Retry.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration // 0 means uncapped
	BackoffFactor float64
	Jitter        bool

	// RetryableErrors limits retries to errors matching one of these via
	// errors.Is. Empty retries every error.
	RetryableErrors []error
}

// DefaultRetryConfig is the dial backoff for the nftables store: four
// attempts, giving up within about a second.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   4,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      500 * time.Millisecond,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// Retry calls fn until it returns nil, returns an error cfg does not retry,
// or cfg.MaxAttempts calls have been made. The last error is returned.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)

	var err error
	for n := range attempts {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = fn(); err == nil || !cfg.retryable(err) || n == attempts-1 {
			return err
		}

		t := time.NewTimer(cfg.backoff(n))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

// backoff returns the wait after the n-th failed attempt (0-based).
func (c RetryConfig) backoff(n int) time.Duration {
	d := float64(c.InitialDelay)
	for range n {
		d *= c.BackoffFactor
	}
	if c.Jitter {
		d *= 1 + 0.25*rand.Float64()
	}
	if c.MaxDelay > 0 {
		d = min(d, float64(c.MaxDelay))
	}
	return time.Duration(d)
}

func (c RetryConfig) retryable(err error) bool {
	if len(c.RetryableErrors) == 0 {
		return true
	}
	for _, target := range c.RetryableErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
