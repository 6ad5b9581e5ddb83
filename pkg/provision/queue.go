package provision

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Queue defaults.
const (
	// DefaultCapacity is the default number of queued records.
	DefaultCapacity = 4

	// MinCapacity is the smallest allowed capacity.
	MinCapacity = 2

	// DefaultSendTimeout bounds how long Submit waits for a free slot.
	DefaultSendTimeout = 50 * time.Millisecond
)

// Queue errors.
var (
	ErrQueueFull       = errors.New("provisioning queue full")
	ErrInvalidCapacity = errors.New("invalid queue capacity")
)

// Queue is the bounded hand-off between the command channel and the
// provisioning subsystem.
type Queue struct {
	ch      chan Record
	timeout time.Duration
}

// NewQueue creates a queue. A non-positive timeout selects DefaultSendTimeout.
func NewQueue(capacity int, timeout time.Duration) (*Queue, error) {
	if capacity < MinCapacity {
		return nil, fmt.Errorf("%w: %d (minimum %d)", ErrInvalidCapacity, capacity, MinCapacity)
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Queue{
		ch:      make(chan Record, capacity),
		timeout: timeout,
	}, nil
}

// Submit validates rec and enqueues a copy of it, waiting at most the send
// timeout (or until ctx is done) for space.
func (q *Queue) Submit(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	// Fast path: no timer when there is room.
	select {
	case q.ch <- rec:
		return nil
	default:
	}

	timer := time.NewTimer(q.timeout)
	defer timer.Stop()

	select {
	case q.ch <- rec:
		return nil
	case <-timer.C:
		return ErrQueueFull
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrQueueFull, ctx.Err())
	}
}

// C returns the receive side for the provisioning subsystem.
func (q *Queue) C() <-chan Record {
	return q.ch
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Timeout returns the send timeout.
func (q *Queue) Timeout() time.Duration {
	return q.timeout
}
