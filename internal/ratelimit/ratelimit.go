// Package ratelimit implements per-key admission control for expensive
// external calls, primarily AI extraction requests.
//
// The limiter keeps a rolling window of recent call timestamps per key.
// When a key has exhausted its allowance the call is rejected with
// ErrRateLimited and the caller is told when the next slot opens, so HTTP
// handlers can surface a Retry-After.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a key has no remaining allowance in the
// current window. Clients should retry after the reported delay.
var ErrRateLimited = errors.New("rate limit exceeded, please try again later")

// Limiter admits or rejects calls per key.
type Limiter interface {
	// Allow records one call for the key if allowance remains. On
	// rejection it returns ErrRateLimited and the wait until a slot
	// frees up.
	Allow(key string, now time.Time) (retryAfter time.Duration, err error)
	// Remaining reports how many calls the key has left in the window.
	Remaining(key string, now time.Time) int
}

// RollingWindow is an in-memory Limiter. Safe for concurrent use.
type RollingWindow struct {
	limit  int
	window time.Duration

	mu    sync.Mutex
	calls map[string][]time.Time
}

// NewRollingWindow creates a limiter allowing limit calls per window for
// each key.
func NewRollingWindow(limit int, window time.Duration) *RollingWindow {
	return &RollingWindow{
		limit:  limit,
		window: window,
		calls:  make(map[string][]time.Time),
	}
}

// Allow implements the Limiter interface.
func (l *RollingWindow) Allow(key string, now time.Time) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.prune(key, now)
	if len(recent) >= l.limit {
		retryAfter := recent[0].Add(l.window).Sub(now)
		return retryAfter, ErrRateLimited
	}
	l.calls[key] = append(recent, now)
	return 0, nil
}

// Remaining implements the Limiter interface.
func (l *RollingWindow) Remaining(key string, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	left := l.limit - len(l.prune(key, now))
	if left < 0 {
		return 0
	}
	return left
}

// prune drops timestamps older than the window and stores the survivors.
// Caller must hold the lock.
func (l *RollingWindow) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	recent := l.calls[key][:0]
	for _, ts := range l.calls[key] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	if len(recent) == 0 {
		delete(l.calls, key)
		return nil
	}
	l.calls[key] = recent
	return recent
}

var _ Limiter = (*RollingWindow)(nil)
