// Package poll provides a bounded, cancellable retry loop for data that
// arrives after the code waiting for it has already started.
package poll

import (
	"context"
	"time"
)

// Until evaluates check immediately and then once per interval until it
// reports true, maxAttempts evaluations have been made, or ctx is done.
//
// It returns true when check succeeded, false with a nil error when the
// attempt budget ran out, and false with ctx.Err() when cancelled.
// maxAttempts below 1 is treated as 1.
func Until(ctx context.Context, interval time.Duration, maxAttempts int, check func(context.Context) bool) (bool, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if check(ctx) {
			return true, nil
		}
		if attempt >= maxAttempts {
			return false, nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}

// Budget pairs an interval with an attempt count so call sites can carry
// their polling limits as a single value.
type Budget struct {
	Interval    time.Duration
	MaxAttempts int
}

// Total is the longest time a poll under this budget can wait between the
// first and the last check.
func (b Budget) Total() time.Duration {
	if b.MaxAttempts <= 1 {
		return 0
	}
	return time.Duration(b.MaxAttempts-1) * b.Interval
}

// Until runs the package-level Until with the budget's limits.
func (b Budget) Until(ctx context.Context, check func(context.Context) bool) (bool, error) {
	return Until(ctx, b.Interval, b.MaxAttempts, check)
}
