package deviceflow

import (
	"context"
	"time"
)

// Clock abstracts wall-clock reads and cooperative sleeping so the polling
// loop can run deterministically in tests.
type Clock interface {
	Now() time.Time
	Sleep(executionContext context.Context, duration time.Duration) error
}

// SystemClock implements Clock over the runtime clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep waits for the duration or until the context is cancelled.
func (SystemClock) Sleep(executionContext context.Context, duration time.Duration) error {
	sleepTimer := time.NewTimer(duration)
	defer sleepTimer.Stop()
	select {
	case <-executionContext.Done():
		return executionContext.Err()
	case <-sleepTimer.C:
		return nil
	}
}
