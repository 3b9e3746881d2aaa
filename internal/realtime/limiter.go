package realtime

import (
	"sync"
	"time"
)

const (
	defaultRateEvents = 60
	defaultRateWindow = 10 * time.Second
)

// Limiter is a per-connection sliding-window limiter.
type Limiter struct {
	mu     sync.Mutex
	events []time.Time
	limit  int
	window time.Duration
}

// NewLimiter constructs a Limiter with safe defaults when inputs are invalid.
func NewLimiter(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = defaultRateEvents
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	return &Limiter{
		events: make([]time.Time, 0, limit+8),
		limit:  limit,
		window: window,
	}
}

// Allow reports whether an event at time "now" should be permitted.
func (l *Limiter) Allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cut := now.Add(-l.window)
	dst := l.events[:0]
	for _, t := range l.events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	l.events = dst

	if len(l.events) >= l.limit {
		return false
	}
	l.events = append(l.events, now)
	return true
}
