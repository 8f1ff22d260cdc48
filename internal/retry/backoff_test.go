package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) BackoffConfig {
	return BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  attempts,
	}
}

func TestBackoff_Retry(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		attempts    int
		wantErr     bool
		wantAttempt int
	}{
		{"success first attempt", 0, 3, false, 1},
		{"success after failures", 2, 3, false, 3},
		{"exhausted", 5, 3, true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := NewBackoff(fastConfig(tt.attempts)).Retry(context.Background(), func() error {
				calls++
				if calls <= tt.failures {
					return errors.New("transient")
				}
				return nil
			})

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantAttempt, calls)
		})
	}
}

func TestBackoff_RetryWithPredicateStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("404")
	calls := 0

	err := NewBackoff(fastConfig(5)).RetryWithPredicate(context.Background(), func() error {
		calls++
		return permanent
	}, func(err error) bool { return !errors.Is(err, permanent) })

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := NewBackoff(fastConfig(3)).Retry(ctx, func() error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestBackoff_OnRetryCallback(t *testing.T) {
	var seen []int
	b := NewBackoff(fastConfig(3)).OnRetry(func(attempt int, _ time.Duration, _ error) {
		seen = append(seen, attempt)
	})

	_ = b.Retry(context.Background(), func() error { return errors.New("x") })
	assert.Equal(t, []int{1, 2}, seen)
}

func TestBackoff_DelayGrowsAndCaps(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     300 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  5,
	})

	assert.Equal(t, 100*time.Millisecond, b.GetNextDelay(1))
	assert.Equal(t, 200*time.Millisecond, b.GetNextDelay(2))
	assert.Equal(t, 300*time.Millisecond, b.GetNextDelay(3))
	assert.Equal(t, 300*time.Millisecond, b.GetNextDelay(8))
}

func TestBackoff_JitterStaysInBounds(t *testing.T) {
	cfg := fastConfig(3)
	cfg.InitialDelay = 100 * time.Millisecond
	cfg.MaxDelay = time.Second
	cfg.Jitter = true
	b := NewBackoff(cfg)

	for i := 0; i < 50; i++ {
		d := b.GetNextDelay(1)
		require.GreaterOrEqual(t, d, 75*time.Millisecond)
		require.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func TestNewBackoff_ClampsInvalidConfig(t *testing.T) {
	calls := 0
	_ = NewBackoff(BackoffConfig{}).Retry(context.Background(), func() error {
		calls++
		return errors.New("x")
	})
	assert.Equal(t, 1, calls)
}
