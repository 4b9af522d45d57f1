// Package ratelimit implements the per-caller request throttle guarding all
// sequencing-oracle invocations.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result reports the outcome of a single limiter check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetInMs int64
}

type entry struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window per-caller counter. Callers without an identity
// bypass the limiter entirely; anonymous and internal calls are unthrottled
// by policy.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	ceiling int
	window  time.Duration
	now     func() time.Time
}

// New creates a Limiter allowing ceiling calls per window per caller.
func New(ceiling int, window time.Duration) *Limiter {
	return &Limiter{
		entries: map[string]*entry{},
		ceiling: ceiling,
		window:  window,
		now:     time.Now,
	}
}

// Check records one call for callerID and reports whether it is allowed.
// The first call of a window resets the counter to 1; calls beyond the
// ceiling are rejected without incrementing further.
func (l *Limiter) Check(callerID string) Result {
	if callerID == "" {
		return Result{Allowed: true, Remaining: l.ceiling}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	e := l.entries[callerID]
	if e == nil || !now.Before(e.resetAt) {
		e = &entry{count: 1, resetAt: now.Add(l.window)}
		l.entries[callerID] = e
		return Result{Allowed: true, Remaining: l.ceiling - 1, ResetInMs: l.window.Milliseconds()}
	}
	if e.count >= l.ceiling {
		return Result{Allowed: false, Remaining: 0, ResetInMs: time.Until(e.resetAt).Milliseconds()}
	}
	e.count++
	return Result{Allowed: true, Remaining: l.ceiling - e.count, ResetInMs: time.Until(e.resetAt).Milliseconds()}
}

// StartJanitor periodically purges entries whose window has lapsed by more
// than one extra window. Housekeeping only; correctness does not depend on it.
func (l *Limiter) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(l.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.window)
	for id, e := range l.entries {
		if e.resetAt.Before(cutoff) {
			delete(l.entries, id)
		}
	}
}
