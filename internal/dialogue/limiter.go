package dialogue

import (
	"sync"
	"time"
)

// Limiter caps how many dialogue calls may start per window. A nil Limiter
// or one with a non-positive max allows everything.
type Limiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	count   int
	resetAt time.Time
	now     func() time.Time
}

// NewLimiter creates a limiter allowing max calls per window.
func NewLimiter(max int, window time.Duration) *Limiter {
	return &Limiter{max: max, window: window, now: time.Now}
}

// WithClock replaces the limiter's time source. Used by tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow consumes one call from the budget. Returns false if the budget for
// the current window is spent.
func (l *Limiter) Allow() bool {
	if l == nil || l.max <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.After(l.resetAt) {
		l.count = 0
		l.resetAt = now.Add(l.window)
	}
	if l.count >= l.max {
		return false
	}
	l.count++
	return true
}
