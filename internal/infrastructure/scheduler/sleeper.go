package scheduler

import (
	"context"
	"time"

	"FeedCurator/internal/ports"
)

// TimerSleeper waits on a real timer.
type TimerSleeper struct{}

var _ ports.Sleeper = TimerSleeper{}

// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
