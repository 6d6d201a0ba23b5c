package websocket

import (
	"sync"
	"time"
)

// SlidingWindowRateLimiter allows at most maxRequests frames in any window.
// Repeated violations back off exponentially so a client cannot burst at
// window boundaries.
type SlidingWindowRateLimiter struct {
	maxRequests    int
	windowDuration time.Duration
	timestamps     []time.Time
	mutex          sync.Mutex

	violations   int
	lastViolated time.Time
	backoffUntil time.Time

	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time
}

// NewSlidingWindowRateLimiter creates a limiter for maxRequests per window.
func NewSlidingWindowRateLimiter(maxRequests int, window time.Duration) *SlidingWindowRateLimiter {
	return &SlidingWindowRateLimiter{
		maxRequests:    maxRequests,
		windowDuration: window,
		timestamps:     make([]time.Time, 0, maxRequests),
		baseBackoff:    time.Second,
		maxBackoff:     time.Minute,
		now:            time.Now,
	}
}

// IsAllowed records a frame and reports whether it is within the limit.
func (rl *SlidingWindowRateLimiter) IsAllowed() bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	if now.Before(rl.backoffUntil) {
		rl.recordViolation(now)
		return false
	}

	rl.cleanOldTimestamps(now)
	if len(rl.timestamps) >= rl.maxRequests {
		rl.recordViolation(now)
		return false
	}

	// Forgive clients that behaved for two windows.
	if rl.violations > 0 && now.Sub(rl.lastViolated) > 2*rl.windowDuration {
		rl.violations = 0
	}

	rl.timestamps = append(rl.timestamps, now)
	return true
}

// Reset forgets all history.
func (rl *SlidingWindowRateLimiter) Reset() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.timestamps = rl.timestamps[:0]
	rl.violations = 0
	rl.lastViolated = time.Time{}
	rl.backoffUntil = time.Time{}
}

// InBackoff reports whether the limiter currently rejects everything.
func (rl *SlidingWindowRateLimiter) InBackoff() bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return rl.now().Before(rl.backoffUntil)
}

// Must be called with the mutex held.
func (rl *SlidingWindowRateLimiter) recordViolation(now time.Time) {
	rl.violations++
	rl.lastViolated = now

	backoff := rl.baseBackoff
	for i := 1; i < rl.violations && backoff < rl.maxBackoff; i++ {
		backoff *= 2
	}
	if backoff > rl.maxBackoff {
		backoff = rl.maxBackoff
	}
	rl.backoffUntil = now.Add(backoff)
}

// Must be called with the mutex held.
func (rl *SlidingWindowRateLimiter) cleanOldTimestamps(now time.Time) {
	cutoff := now.Add(-rl.windowDuration)
	valid := 0
	for valid < len(rl.timestamps) && !rl.timestamps[valid].After(cutoff) {
		valid++
	}
	if valid > 0 {
		n := copy(rl.timestamps, rl.timestamps[valid:])
		rl.timestamps = rl.timestamps[:n]
	}
}
