package lock

import (
	"context"
	"sync"
	"time"
)

// LocalLocker is an in-process Locker for single-instance deployments.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time // key -> expiry
	wait time.Duration
	now  func() time.Time
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &LocalLocker{held: make(map[string]time.Time), wait: wait, now: time.Now}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	var expiry time.Time
	err := acquireWithRetry(ctx, l.wait, func() (bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		now := l.now()
		if exp, ok := l.held[key]; ok && now.Before(exp) {
			return false, nil
		}
		expiry = now.Add(ttl)
		l.held[key] = expiry
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// Only drop our own hold; after expiry someone else may own the key.
			if exp, ok := l.held[key]; ok && exp.Equal(expiry) {
				delete(l.held, key)
			}
		})
	}, nil
}
