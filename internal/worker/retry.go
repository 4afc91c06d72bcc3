package worker

import (
	"time"

	"bookpoint/internal/config"
)

// RetryPolicy controls how failed outbox deliveries are rescheduled.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// PolicyFromConfig maps the sync section of the config file.
func PolicyFromConfig(cfg config.SyncConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: time.Duration(cfg.BaseDelayMS) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.MaxDelayMS) * time.Millisecond,
	}
}

// NextDelay returns the wait before retry number attempt (1-based).
// The result never exceeds MaxDelay when one is set.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := r.InitialDelay
	if delay <= 0 {
		delay = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 1 {
		factor = 2
	}

	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(delay) * factor)
		// переполнение или выход за потолок
		if next <= delay || (r.MaxDelay > 0 && next >= r.MaxDelay) {
			if r.MaxDelay > 0 {
				return r.MaxDelay
			}
			return delay
		}
		delay = next
	}

	if r.MaxDelay > 0 && delay > r.MaxDelay {
		return r.MaxDelay
	}
	return delay
}
