package utils

import (
	"context"
	"time"
)

// RetryWithExpBackoff can be used to call several times a function until it
// returns no error or the maximum count of calls has been reached. Between two
// calls, it will wait, first by the given delay, and after that, the delay
// will double after each failure. It stops early if the context is canceled.
func RetryWithExpBackoff(ctx context.Context, count int, delay time.Duration, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	for i := 1; i < count; i++ {
		if errs := Sleep(ctx, delay); errs != nil {
			return err
		}
		delay *= 2
		err = fn()
		if err == nil {
			return nil
		}
	}
	return err
}

// Sleep waits for the given duration, or until the context is done. It
// returns the error of the context in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
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
