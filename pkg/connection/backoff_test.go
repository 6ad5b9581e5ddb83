package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedRand(v float64) func() float64 { return func() float64 { return v } }

func TestBackoffGrowsToMax(t *testing.T) {
	b := NewBackoff(BackoffConfig{Initial: time.Second, Max: 5 * time.Second, Jitter: -1})

	var got []time.Duration
	for range 5 {
		got = append(got, b.Next())
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second,
	}, got)
	assert.Equal(t, 5, b.Attempts())

	b.Reset()
	assert.Equal(t, 0, b.Attempts())
	assert.Equal(t, time.Second, b.Next())
}

func TestBackoffJitter(t *testing.T) {
	b := NewBackoff(BackoffConfig{Initial: time.Second, Jitter: 0.5, Rand: fixedRand(0.5)})
	assert.Equal(t, 1250*time.Millisecond, b.Next())
	assert.Equal(t, 2500*time.Millisecond, b.Next())
}

func TestBackoffDefaults(t *testing.T) {
	b := NewBackoff(BackoffConfig{Rand: fixedRand(0)})
	assert.Equal(t, InitialBackoff, b.Next())
	assert.Equal(t, 2*InitialBackoff, b.Next())
	assert.False(t, b.Exhausted())
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	b := NewBackoff(BackoffConfig{Initial: time.Millisecond, Jitter: -1})
	calls := 0
	var waits []time.Duration

	v, err := Retry(context.Background(), b, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("refused")
		}
		return 42, nil
	}, func(_ error, wait time.Duration) { waits = append(waits, wait) })

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, waits)
	assert.Equal(t, 0, b.Attempts())
}

func TestRetryGivesUp(t *testing.T) {
	b := NewBackoff(BackoffConfig{Initial: time.Millisecond, Jitter: -1, MaxAttempts: 2})
	dialErr := errors.New("refused")
	calls := 0

	_, err := Retry(context.Background(), b, func(context.Context) (string, error) {
		calls++
		return "", dialErr
	}, nil)

	require.ErrorIs(t, err, ErrGiveUp)
	require.ErrorIs(t, err, dialErr)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnCancel(t *testing.T) {
	b := NewBackoff(BackoffConfig{Initial: time.Hour, Jitter: -1})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := Retry(ctx, b, func(context.Context) (int, error) {
		cancel()
		return 0, errors.New("refused")
	}, nil)
	require.ErrorIs(t, err, context.Canceled)
}
