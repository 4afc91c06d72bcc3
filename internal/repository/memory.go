package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker serializes holders of the same key inside one process.
// A lock not released within its TTL is released automatically.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]chan struct{})}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	for {
		l.mu.Lock()
		held, busy := l.locks[key]
		if !busy {
			done := make(chan struct{})
			l.locks[key] = done
			l.mu.Unlock()
			return l.releaser(key, done, ttl), nil
		}
		l.mu.Unlock()

		select {
		case <-held:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *MemoryLocker) releaser(key string, done chan struct{}, ttl time.Duration) func() {
	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			if l.locks[key] == done {
				delete(l.locks, key)
			}
			l.mu.Unlock()
			close(done)
		})
	}
	if ttl > 0 {
		timer := time.AfterFunc(ttl, release)
		return func() {
			timer.Stop()
			release()
		}
	}
	return release
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryRateLimiter is a fixed-window counter kept in process memory.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
	now     func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{entries: make(map[string]*rateLimitEntry), now: time.Now}
}

func (r *MemoryRateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.entries[key] = entry
		r.gc(now)
	}
	entry.count++

	return entry.count <= limit, nil
}

// gc drops expired windows so idle keys do not accumulate.
func (r *MemoryRateLimiter) gc(now time.Time) {
	if len(r.entries) < 1024 {
		return
	}
	for k, e := range r.entries {
		if now.After(e.expiresAt) {
			delete(r.entries, k)
		}
	}
}
