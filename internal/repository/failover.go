package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"bookpoint/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// failover tracks whether the primary backend is considered down. While down,
// one call per recoveryInterval probes the primary again.
type failover struct {
	mu        sync.Mutex
	down      bool
	lastCheck time.Time
	now       func() time.Time
	logger    *zerolog.Logger
	name      string
}

func (f *failover) usePrimary() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.down {
		return true
	}
	if f.now().Sub(f.lastCheck) > recoveryInterval {
		f.lastCheck = f.now()
		return true
	}
	return false
}

func (f *failover) markDown(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.down {
		f.logger.Error().Err(err).Str("backend", f.name).Msg("Primary backend failed, falling back to memory")
	}
	f.down = true
	f.lastCheck = f.now()
}

func (f *failover) markUp() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		f.logger.Info().Str("backend", f.name).Msg("Primary backend recovered")
	}
	f.down = false
}

func (f *failover) isDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down
}

// FailoverLocker uses the primary locker and switches to the fallback when the
// primary errors. Contention and cancellation are not failures.
type FailoverLocker struct {
	primary  domain.SlotLocker
	fallback domain.SlotLocker
	state    failover
}

func NewFailoverLocker(primary, fallback domain.SlotLocker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{
		primary:  primary,
		fallback: fallback,
		state:    failover{now: time.Now, logger: logger, name: "locker"},
	}
}

func (l *FailoverLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l.state.usePrimary() {
		release, err := l.primary.Acquire(ctx, key, ttl)
		if err == nil {
			l.state.markUp()
			return release, nil
		}
		if errors.Is(err, ErrLockTimeout) || ctx.Err() != nil {
			return nil, err
		}
		l.state.markDown(err)
	}

	return l.fallback.Acquire(ctx, key, ttl)
}

// Degraded reports whether calls currently go to the fallback.
func (l *FailoverLocker) Degraded() bool { return l.state.isDown() }

type FailoverRateLimiter struct {
	primary  domain.RateLimiter
	fallback domain.RateLimiter
	state    failover
}

func NewFailoverRateLimiter(primary, fallback domain.RateLimiter, logger *zerolog.Logger) *FailoverRateLimiter {
	return &FailoverRateLimiter{
		primary:  primary,
		fallback: fallback,
		state:    failover{now: time.Now, logger: logger, name: "rate_limiter"},
	}
}

func (r *FailoverRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.state.usePrimary() {
		allowed, err := r.primary.Allow(ctx, key, limit, window)
		if err == nil {
			r.state.markUp()
			return allowed, nil
		}
		r.state.markDown(err)
	}

	return r.fallback.Allow(ctx, key, limit, window)
}

func (r *FailoverRateLimiter) Degraded() bool { return r.state.isDown() }
