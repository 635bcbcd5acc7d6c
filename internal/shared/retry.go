package shared

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryOnConflict runs fn up to attempts times, backing off exponentially
// from baseDelay while fn keeps failing with a SQLite conflict. Other errors
// are returned immediately.
func RetryOnConflict(ctx context.Context, op string, attempts int, baseDelay time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsSQLiteConflictError(err) || i == attempts-1 {
			break
		}

		slog.Debug("SQLite conflict, retrying", "op", op, "attempt", i+1)
		if werr := Backoff(ctx, baseDelay, i); werr != nil {
			return fmt.Errorf("%s: %w", op, werr)
		}
	}
	return fmt.Errorf("%s failed after retries: %w", op, err)
}

// maxBackoff caps a single Backoff wait.
const maxBackoff = 10 * time.Second

// Backoff waits baseDelay*2^attempt, capped at maxBackoff, or until ctx is
// done, in which case it returns ctx.Err().
func Backoff(ctx context.Context, baseDelay time.Duration, attempt int) error {
	if baseDelay <= 0 {
		return ctx.Err()
	}
	delay := baseDelay
	for i := 0; i < attempt && delay < maxBackoff; i++ {
		delay *= 2
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
