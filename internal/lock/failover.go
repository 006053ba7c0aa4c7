package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverLocker prefers primary and switches to fallback while primary is
// failing, retrying primary once per recoveryInterval.
type FailoverLocker struct {
	primary  Locker
	fallback Locker
	logger   zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverLocker(primary, fallback Locker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With().Str("component", "lock_failover").Logger(),
	}
}

func (f *FailoverLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if f.usePrimary() {
		release, err := f.primary.Acquire(ctx, key, ttl)
		if err == nil {
			if f.isDown.CompareAndSwap(true, false) {
				f.logger.Info().Msg("Primary locker recovered")
			}
			return release, nil
		}
		// Contention and cancellation are answers, not outages.
		if errors.Is(err, ErrNotAcquired) || ctx.Err() != nil {
			return nil, err
		}
		f.markDown(err)
	}
	return f.fallback.Acquire(ctx, key, ttl)
}

func (f *FailoverLocker) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) < recoveryInterval {
		return false
	}
	f.lastCheck = time.Now()
	return true
}

func (f *FailoverLocker) markDown(err error) {
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
	if !f.isDown.Swap(true) {
		f.logger.Warn().Err(err).Msg("Primary locker failed, switching to fallback")
	}
}
