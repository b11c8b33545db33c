package api

import (
	"sync"
	"time"
)

// windowLimiter is a per-client fixed-window counter. The first request in a
// window starts it; requests beyond the limit are rejected until the window
// rolls over. Fixed windows make the 429 boundary exactly predictable, which
// the evaluation and load tooling rely on.
type windowLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	clients map[string]*windowCount
	sweeps  int
}

type windowCount struct {
	start time.Time
	n     int
}

// sweepEvery bounds how often the limiter scans for stale client entries.
const sweepEvery = 256

func newWindowLimiter(limit int, window time.Duration, now func() time.Time) *windowLimiter {
	if now == nil {
		now = time.Now
	}
	return &windowLimiter{
		limit:   limit,
		window:  window,
		now:     now,
		clients: make(map[string]*windowCount),
	}
}

// allow records a request for key and reports whether it is within the
// window's budget. When rejected, retryAfter is the time until the window
// rolls over.
func (l *windowLimiter) allow(key string) (ok bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	l.sweeps++
	if l.sweeps >= sweepEvery {
		l.sweeps = 0
		for k, c := range l.clients {
			if now.Sub(c.start) >= l.window {
				delete(l.clients, k)
			}
		}
	}

	c, found := l.clients[key]
	if !found || now.Sub(c.start) >= l.window {
		l.clients[key] = &windowCount{start: now, n: 1}
		return true, 0
	}
	if c.n < l.limit {
		c.n++
		return true, 0
	}
	return false, c.start.Add(l.window).Sub(now)
}
