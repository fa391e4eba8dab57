// Package ratelimit implements the publish-quota and backoff math the spec
// names as an external collaborator (§6): "consulted by the facade before
// publish; its contract is 'returns true -> defer this publish'. Backoff
// returns a nanosecond sleep duration given an attempt count."
//
// Grounded on usrl_backpressure.h's PublishQuota (a fixed-window token
// bucket, 1ms windows) and its usrl_backoff_exponential/usrl_backoff_linear
// helpers.
package ratelimit

import (
	"sync"
	"time"
)

// window is the fixed bucket-refill window the original header hard-codes
// (publish_window_ns = 1,000,000 = 1ms).
const window = time.Millisecond

// LocalLimiter is an in-process token bucket: msgsPerSec/1000 tokens (at
// least one) refill every window, consumed one per allowed publish. It mirrors
// usrl_quota_init/usrl_quota_check's fixed-window behavior rather than a
// continuous leaky bucket, matching the original's actual math.
type LocalLimiter struct {
	mu sync.Mutex

	quota          uint64 // tokens granted per window
	windowStart    time.Time
	inWindow       uint64
	totalThrottled uint64
}

// NewLocalLimiter builds a limiter granting msgsPerSec/1000 publishes per
// 1ms window, or nil (meaning "no limit") if msgsPerSec is zero. The
// per-window quota is never below one, so any rate under 1000 allows up to
// 1000 publishes per second.
func NewLocalLimiter(msgsPerSec uint64) *LocalLimiter {
	if msgsPerSec == 0 {
		return nil
	}
	quota := msgsPerSec / 1000
	if quota == 0 {
		quota = 1
	}
	return &LocalLimiter{quota: quota, windowStart: time.Now()}
}

// Defer reports whether the caller should defer (not perform) a publish
// right now. A nil *LocalLimiter never defers, matching the facade
// contract for "rate limiting disabled".
func (l *LocalLimiter) Defer() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.windowStart) >= window {
		l.windowStart = now
		l.inWindow = 0
	}
	if l.inWindow >= l.quota {
		l.totalThrottled++
		return true
	}
	l.inWindow++
	return false
}

// TotalThrottled returns the cumulative count of deferred publishes.
func (l *LocalLimiter) TotalThrottled() uint64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalThrottled
}

// BackoffExponential returns a sleep duration for the given 1-based retry
// attempt: 1us * 2^(attempt-1), capped at 100ms, matching the original's
// usrl_backoff_exponential used by the facade's block_on_full path.
func BackoffExponential(attempt uint32) time.Duration {
	if attempt == 0 {
		attempt = 1
	}
	const base = time.Microsecond
	const cap = 100 * time.Millisecond
	d := base
	for i := uint32(1); i < attempt && d < cap; i++ {
		d *= 2
	}
	if d > cap {
		d = cap
	}
	return d
}

// BackoffLinear scales a sleep duration proportionally to how far behind a
// subscriber's lag has grown relative to maxLag, capped at 10ms.
func BackoffLinear(lag, maxLag uint64) time.Duration {
	if maxLag == 0 || lag >= maxLag {
		return 10 * time.Millisecond
	}
	frac := float64(lag) / float64(maxLag)
	return time.Duration(frac * float64(10*time.Millisecond))
}
