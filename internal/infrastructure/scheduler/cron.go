package scheduler

import (
	"context"
	"sync"
	"time"

	"FeedCurator/internal/ports"
)

// DefaultTickInterval is how often due jobs are scanned.
const DefaultTickInterval = 5 * time.Minute

// TickScheduler invokes a job on a fixed interval using time.Ticker.
type TickScheduler struct {
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*TickScheduler)(nil)

// NewTickScheduler builds a driver that fires every interval.
func NewTickScheduler(interval time.Duration) *TickScheduler {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &TickScheduler{interval: interval}
}

// Start fires job immediately and then on every tick until Stop or ctx is done.
// Calling Start on a running scheduler is a no-op.
func (c *TickScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.stop, c.done = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		job(time.Now())
		for {
			select {
			case t := <-ticker.C:
				job(t)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine and waits for an in-flight job to return
// or ctx to expire.
func (c *TickScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
