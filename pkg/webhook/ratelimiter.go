package webhook

import (
	"sync"
	"time"
)

const rateWindow = time.Minute

// RateLimiter implements per-key rate limiting with a sliding window
type RateLimiter struct {
	limits            map[string][]time.Time
	maxRequestsPerMin int
	mu                sync.Mutex
	now               func() time.Time
	cleanupInterval   time.Duration
	stopCleanup       chan struct{}
	stopOnce          sync.Once
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxRequestsPerMinute int) *RateLimiter {
	rl := &RateLimiter{
		limits:            make(map[string][]time.Time),
		maxRequestsPerMin: maxRequestsPerMinute,
		now:               time.Now,
		cleanupInterval:   5 * time.Minute,
		stopCleanup:       make(chan struct{}),
	}

	go rl.startCleanup()

	return rl
}

// window drops requests older than the window. Caller holds mu.
func (rl *RateLimiter) window(key string, now time.Time) []time.Time {
	valid := rl.limits[key][:0]
	for _, at := range rl.limits[key] {
		if now.Sub(at) < rateWindow {
			valid = append(valid, at)
		}
	}
	return valid
}

// CheckLimit records a request for key and reports whether it is allowed
func (rl *RateLimiter) CheckLimit(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	requests := rl.window(key, now)

	if len(requests) >= rl.maxRequestsPerMin {
		rl.limits[key] = requests
		return false
	}

	rl.limits[key] = append(requests, now)
	return true
}

// GetRetryAfter returns the number of seconds until key may send again
func (rl *RateLimiter) GetRetryAfter(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	requests := rl.limits[key]
	if len(requests) == 0 {
		return 0
	}

	// the oldest request is the next to leave the window
	wait := rateWindow - rl.now().Sub(requests[0])
	if wait < 0 {
		return 0
	}

	// round up to whole seconds
	return int((wait + time.Second - 1) / time.Second)
}

// startCleanup periodically removes idle keys
func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key := range rl.limits {
		requests := rl.window(key, now)
		if len(requests) == 0 {
			delete(rl.limits, key)
		} else {
			rl.limits[key] = requests
		}
	}
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}
