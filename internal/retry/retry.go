package retry

import (
	"context"
	"fmt"
	"time"
)

// Do runs fn up to len(delays)+1 times, sleeping delays[attempt] between
// failures. The context cancels the sleep, not a running fn. The last
// error is returned when every attempt fails.
func Do(ctx context.Context, delays []time.Duration, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= len(delays); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt < len(delays) {
			if err := Sleep(ctx, delays[attempt]); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", len(delays)+1, lastErr)
}

// Sleep blocks for d or until the context is done
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DelayFor returns the backoff delay for a given retry count, clamped
// to the last entry when the count runs past the table.
func DelayFor(delays []time.Duration, retryCount int) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[retryCount]
}
