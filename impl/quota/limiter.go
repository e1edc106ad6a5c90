package quota

import (
	"sync"
	"time"
)

const sweepThreshold = 4096

// windowLimiter admits at most limit calls per key in a fixed window.
// State is process-local.
type windowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time
	mu     sync.Mutex
	items  map[string]*windowEntry
}

type windowEntry struct {
	windowStart time.Time
	count       int
}

func newWindowLimiter(limit int, window time.Duration) *windowLimiter {
	return &windowLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		items:  make(map[string]*windowEntry),
	}
}

func (l *windowLimiter) Allow(key string) bool {
	now := l.now().UTC()
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.items) >= sweepThreshold {
		l.sweep(now)
	}

	entry := l.items[key]
	if entry == nil || now.Sub(entry.windowStart) > l.window {
		entry = &windowEntry{windowStart: now}
		l.items[key] = entry
	}

	if entry.count >= l.limit {
		return false
	}

	entry.count++
	return true
}

// sweep drops entries whose window has closed; caller holds mu.
func (l *windowLimiter) sweep(now time.Time) {
	for key, entry := range l.items {
		if now.Sub(entry.windowStart) > l.window {
			delete(l.items, key)
		}
	}
}
