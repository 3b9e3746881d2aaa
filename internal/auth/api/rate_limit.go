package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// KeyedLimiter is a sliding-window limiter with one window per key. Keys are
// principal ids or anonymous pseudo-ids, so a noisy caller cannot starve the
// rest.
type KeyedLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
	window  time.Duration
}

// NewKeyedLimiter constructs a KeyedLimiter with safe defaults when inputs
// are invalid.
func NewKeyedLimiter(limit int, window time.Duration) *KeyedLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &KeyedLimiter{
		windows: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
	}
}

// Allow reports whether an event for key at time "now" should be permitted.
func (l *KeyedLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cut := now.Add(-l.window)
	dst := l.windows[key][:0]
	for _, t := range l.windows[key] {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}

	if len(dst) >= l.limit {
		l.windows[key] = dst
		return false
	}
	l.windows[key] = append(dst, now)
	return true
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
