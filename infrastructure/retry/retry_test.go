package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/retry"
)

var errTransient = errors.New("connection refused")

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := retry.Retry(context.Background(), retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
	}, func() error {
		attempts++
		if attempts < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("schema mismatch")
	attempts := 0
	err := retry.Retry(context.Background(), retry.Config{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestRetry_Exhausted(t *testing.T) {
	err := retry.Retry(context.Background(), retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond}, func() error {
		return errTransient
	})

	require.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	require.ErrorIs(t, err, errTransient)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.Retry(ctx, retry.DefaultConfig(), func() error { return nil })
	require.ErrorIs(t, err, retry.ErrContextCancelled)
}

func TestConfig_Backoff(t *testing.T) {
	cfg := retry.Config{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}

	assert.Equal(t, time.Second, cfg.Backoff(1))
	assert.Equal(t, 2*time.Second, cfg.Backoff(2))
	assert.Equal(t, 4*time.Second, cfg.Backoff(3))
	assert.Equal(t, 5*time.Second, cfg.Backoff(4))
}
