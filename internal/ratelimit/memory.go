package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int
	reset time.Time
}

// MemoryLimiter keeps fixed-window counters in process memory. It serves
// single-node deployments without Redis and the test suites.
type MemoryLimiter struct {
	mu      sync.Mutex
	minutes map[string]*window
	hours   map[string]*window

	now func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		minutes: make(map[string]*window),
		hours:   make(map[string]*window),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit Limit) (Result, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	minute := l.hit(l.minutes, key, now, minuteWindow)
	hour := l.hit(l.hours, key, now, hourWindow)

	res := Result{Allowed: true}

	if minute.count > limit.PerMinute {
		res.Allowed = false
		res.RetryAfter = minute.reset.Sub(now)
	}
	if hour.count > limit.PerHour {
		res.Allowed = false
		if d := hour.reset.Sub(now); d > res.RetryAfter {
			res.RetryAfter = d
		}
	}

	return res, nil
}

func (l *MemoryLimiter) hit(windows map[string]*window, key string, now time.Time, size time.Duration) *window {
	w, ok := windows[key]
	if !ok || !now.Before(w.reset) {
		w = &window{reset: now.Add(size)}
		windows[key] = w
	}
	w.count++
	return w
}
