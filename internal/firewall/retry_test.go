package firewall

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastRetry() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return cfg
}

// failing returns a func that fails with errs in order, then succeeds, and
// a pointer to its call count.
func failing(errs ...error) (func() error, *int) {
	calls := 0
	return func() error {
		calls++
		if calls <= len(errs) {
			return errs[calls-1]
		}
		return nil
	}, &calls
}

func TestRetry(t *testing.T) {
	onlyEINTR := fastRetry()
	onlyEINTR.RetryableErrors = []error{syscall.EINTR}

	threeTries := fastRetry()
	threeTries.MaxAttempts = 3

	zeroAttempts := fastRetry()
	zeroAttempts.MaxAttempts = 0

	tests := []struct {
		name      string
		cfg       RetryConfig
		errs      []error
		wantErr   error
		wantCalls int
	}{
		{"first try", fastRetry(), nil, nil, 1},
		{"transient then ok", fastRetry(), []error{syscall.EINTR, syscall.EAGAIN}, nil, 3},
		{"exhausted", threeTries, []error{syscall.EBUSY, syscall.EBUSY, syscall.EBUSY, syscall.EBUSY}, syscall.EBUSY, 3},
		{"not retryable", onlyEINTR, []error{syscall.EPERM}, syscall.EPERM, 1},
		{"retryable filter", onlyEINTR, []error{syscall.EINTR}, nil, 2},
		{"at least one attempt", zeroAttempts, []error{syscall.EBUSY}, syscall.EBUSY, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, calls := failing(tt.errs...)
			err := Retry(context.Background(), tt.cfg, fn)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantCalls, *calls)
		})
	}
}

func TestRetry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fn, calls := failing()
	assert.ErrorIs(t, Retry(ctx, fastRetry(), fn), context.Canceled)
	assert.Zero(t, *calls)
}

func TestRetry_CancelDuringBackoff(t *testing.T) {
	cfg := fastRetry()
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = 0

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, cfg, func() error {
		calls++
		cancel()
		return errors.New("busy")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, BackoffFactor: 2}

	assert.Equal(t, 100*time.Millisecond, cfg.backoff(0))
	assert.Equal(t, 200*time.Millisecond, cfg.backoff(1))
	assert.Equal(t, 300*time.Millisecond, cfg.backoff(5))

	cfg.MaxDelay = 0
	assert.Equal(t, 800*time.Millisecond, cfg.backoff(3))

	cfg.Jitter = true
	for range 20 {
		d := cfg.backoff(0)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}
