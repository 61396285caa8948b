package infra

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Backoff yields exponentially growing delays with ±20% jitter, capped at maxDelay.
// The collector and sink share it for broker reconnects and Postgres conflict retries.
type Backoff struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	multiplier float64
	current    time.Duration
	attempts   int
	mu         sync.Mutex
}

// NewBackoff starts at min and multiplies the delay by mult after every attempt
func NewBackoff(min, max time.Duration, mult float64) *Backoff {
	return &Backoff{
		minDelay:   min,
		maxDelay:   max,
		multiplier: mult,
		current:    min,
	}
}

func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++

	jitterFactor := rand.Float64()*0.4 - 0.2
	jitter := time.Duration(jitterFactor * float64(b.current))
	wait := max(b.current+jitter, b.minDelay)

	b.current = min(time.Duration(float64(b.current)*b.multiplier), b.maxDelay)

	return wait
}

// Wait sleeps for the next delay. It returns false if ctx ended first.
func (b *Backoff) Wait(ctx context.Context) bool {
	select {
	case <-time.After(b.Next()):
		return true
	case <-ctx.Done():
		return false
	}
}

// Retry calls fn up to attempts times, waiting between calls while retryable
// accepts the error. A rejected error is returned as is.
func (b *Backoff) Retry(ctx context.Context, attempts int, retryable func(error) bool, fn func() error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil || !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if !b.Wait(ctx) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("failed after %d attempts (last error: %w)", attempts, err)
}

func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.minDelay
	b.attempts = 0
}

func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
