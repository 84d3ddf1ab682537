// Package clock holds the time helpers shared by the background workers.
package clock

import (
	"context"
	"time"
)

// SleepWithContext blocks for d, or until ctx is done, whichever comes first.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Due reports whether a recurring job whose next run is next should run at now.
// A nil next means the job is not scheduled.
func Due(next *time.Time, now time.Time) bool {
	return next != nil && !next.After(now)
}
