package signal

import (
	"sync"
	"time"
)

// FrameRateLimiter caps how many frames a single client may push through
// the relay per sliding window. Over-limit frames are dropped by the read
// pump; the connection itself stays up.
type FrameRateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
}

func NewFrameRateLimiter(limit int, interval time.Duration) *FrameRateLimiter {
	return &FrameRateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *FrameRateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[client]

	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[client] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[client] = fresh
	return true
}

// Forget drops a client's history, typically on disconnect.
func (rl *FrameRateLimiter) Forget(client string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, client)
}
