// Package lock serializes reservations that target the same date.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the key stays held past the wait budget.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker acquires a short-lived exclusive lock on key. The returned release
// func must be called exactly once; it is safe to call after ttl expiry.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// DateKey is the lock key for reservations on date (YYYY-MM-DD).
func DateKey(date string) string {
	return "venuebook:reserve:" + date
}

const retryDelay = 25 * time.Millisecond

// acquireWithRetry polls try until it succeeds, ctx is done or wait elapses.
func acquireWithRetry(ctx context.Context, wait time.Duration, try func() (bool, error)) error {
	deadline := time.Now().Add(wait)
	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}
