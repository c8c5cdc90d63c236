// Package ratelimit throttles repeated authentication failures per key
// (identifier, optionally source address) to blunt credential stuffing.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRateLimited is returned by Allow while a key is locked out or over its
// failure budget. The transport layer surfaces it with a retry-after signal.
var ErrRateLimited = errors.New("too many failed attempts")

// LimitedError carries the retry-after hint alongside ErrRateLimited.
type LimitedError struct {
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("too many failed attempts, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *LimitedError) Unwrap() error { return ErrRateLimited }

// Limiter tracks per-key failure counters. It is injected into the auth
// service so multi-process deployments can back it with a shared store and
// tests can substitute a deterministic fake.
type Limiter interface {
	// Allow reports whether an attempt for key may proceed. Returns an error
	// wrapping ErrRateLimited when the key is over budget or locked out.
	Allow(ctx context.Context, key string) error
	// Fail records one failed attempt for key.
	Fail(ctx context.Context, key string)
	// Reset clears key's counters, typically on successful authentication.
	Reset(ctx context.Context, key string)
}

type entry struct {
	failures    []time.Time
	lockedUntil time.Time
	strikes     int
}

// MemoryLimiter is an in-process Limiter: a sliding window of failures per
// key, with a lockout that doubles on each consecutive trip up to a cap.
type MemoryLimiter struct {
	mu          sync.Mutex
	entries     map[string]*entry
	maxFailures int
	window      time.Duration
	lockout     time.Duration
	maxLockout  time.Duration
	nowF        func() time.Time
}

// NewMemoryLimiter returns a limiter that trips after maxFailures failed
// attempts within window, locking the key out for lockout (doubling per
// consecutive trip, capped at 16x).
func NewMemoryLimiter(maxFailures int, window, lockout time.Duration) *MemoryLimiter {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	if lockout <= 0 {
		lockout = window
	}
	return &MemoryLimiter{
		entries:     make(map[string]*entry),
		maxFailures: maxFailures,
		window:      window,
		lockout:     lockout,
		maxLockout:  16 * lockout,
		nowF:        func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the clock. Tests only.
func (l *MemoryLimiter) SetNow(f func() time.Time) { l.nowF = f }

// Allow reports whether an attempt for key may proceed.
func (l *MemoryLimiter) Allow(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return nil
	}
	now := l.nowF()
	if now.Before(e.lockedUntil) {
		return &LimitedError{RetryAfter: e.lockedUntil.Sub(now)}
	}
	e.failures = prune(e.failures, now.Add(-l.window))
	if len(e.failures) >= l.maxFailures {
		// Window still saturated after lockout lapse; trip again.
		l.trip(e, now)
		return &LimitedError{RetryAfter: e.lockedUntil.Sub(now)}
	}
	return nil
}

// Fail records one failed attempt for key, tripping the lockout when the
// window fills up.
func (l *MemoryLimiter) Fail(ctx context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	now := l.nowF()
	e.failures = append(prune(e.failures, now.Add(-l.window)), now)
	if len(e.failures) >= l.maxFailures && !now.Before(e.lockedUntil) {
		l.trip(e, now)
	}
}

// Reset clears key's counters and lockout.
func (l *MemoryLimiter) Reset(ctx context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

func (l *MemoryLimiter) trip(e *entry, now time.Time) {
	d := l.lockout << e.strikes
	if d > l.maxLockout || d <= 0 {
		d = l.maxLockout
	}
	e.lockedUntil = now.Add(d)
	e.strikes++
}

func prune(failures []time.Time, oldest time.Time) []time.Time {
	i := 0
	for i < len(failures) && failures[i].Before(oldest) {
		i++
	}
	return failures[i:]
}
