package main

import (
	"sync"
	"time"
)

// RateLimiter allows limit requests per key in each fixed window.
type RateLimiter struct {
	limit  int
	window time.Duration
	mu     sync.Mutex
	counts map[string]*windowCount
	now    func() time.Time
}

type windowCount struct {
	start time.Time
	n     int
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		counts: make(map[string]*windowCount),
		now:    time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	wc, ok := rl.counts[key]
	if !ok || now.Sub(wc.start) >= rl.window {
		rl.counts[key] = &windowCount{start: now, n: 1}
		return rl.limit > 0
	}
	if wc.n >= rl.limit {
		return false
	}
	wc.n++
	return true
}

// Cleanup forgets keys whose window has ended.
func (rl *RateLimiter) Cleanup() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, wc := range rl.counts {
		if now.Sub(wc.start) >= rl.window {
			delete(rl.counts, key)
		}
	}
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.counts)
}
