// Package backoff provides fixed-delay retry for flaky backend calls.
package backoff

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times, waiting delay between failures.
// It returns nil on the first success, the last error once attempts are
// exhausted, or the context error if ctx ends while waiting.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
