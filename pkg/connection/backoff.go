package connection

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff defaults.
const (
	InitialBackoff    = 1 * time.Second
	MaxBackoff        = 30 * time.Second
	BackoffMultiplier = 2.0

	// JitterFactor is the largest jitter as a fraction of the base delay.
	JitterFactor = 0.25
)

// ErrGiveUp is returned by Retry once MaxAttempts dials have failed.
var ErrGiveUp = errors.New("giving up")

// BackoffConfig configures a Backoff. Zero fields take the defaults;
// a negative Jitter disables jitter.
type BackoffConfig struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	Jitter      float64
	MaxAttempts int

	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

// Backoff computes reconnection delays.
type Backoff struct {
	mu       sync.Mutex
	cfg      BackoffConfig
	current  time.Duration
	attempts int
}

// NewBackoff creates a Backoff.
func NewBackoff(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialBackoff
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxBackoff
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = BackoffMultiplier
	}
	switch {
	case cfg.Jitter < 0:
		cfg.Jitter = 0
	case cfg.Jitter == 0:
		cfg.Jitter = JitterFactor
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	return &Backoff{cfg: cfg, current: cfg.Initial}
}

// Next returns the next delay and advances the base delay.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.current
	if b.cfg.Jitter > 0 {
		d += time.Duration(float64(d) * b.cfg.Jitter * b.cfg.Rand())
	}
	b.attempts++
	b.current = min(time.Duration(float64(b.current)*b.cfg.Multiplier), b.cfg.Max)
	return d
}

// Reset starts over from the initial delay. Call it after a successful
// connection.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.cfg.Initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Exhausted reports whether MaxAttempts delays have been handed out.
func (b *Backoff) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg.MaxAttempts > 0 && b.attempts >= b.cfg.MaxAttempts
}

// Retry calls dial until it succeeds, sleeping b.Next() between failures.
// onFail, when set, sees each failure and the delay before the next try.
// The backoff is reset on success.
func Retry[T any](ctx context.Context, b *Backoff, dial func(context.Context) (T, error), onFail func(err error, wait time.Duration)) (T, error) {
	var zero T
	for {
		v, err := dial(ctx)
		if err == nil {
			b.Reset()
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if b.Exhausted() {
			return zero, fmt.Errorf("%w after %d attempts: %w", ErrGiveUp, b.Attempts()+1, err)
		}

		wait := b.Next()
		if onFail != nil {
			onFail(err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
