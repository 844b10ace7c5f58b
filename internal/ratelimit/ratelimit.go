// Package ratelimit implements per-client sliding-window admission control.
//
// Each client has an ordered window of request timestamps from the last 60
// seconds. A check prunes expired entries, then either denies (window full)
// or appends the current instant. Windows are keyed by client ID, never by
// raw API key.
package ratelimit

import (
	"math"
	"sync"
	"time"

	gateway "github.com/bastionlabs/bastion/internal"
)

// Window is the sliding-window period.
const Window = 60 * time.Second

// window holds one client's request timestamps. The mutex serializes the
// prune/append pair; windows for different clients proceed in parallel.
type window struct {
	mu       sync.Mutex
	stamps   []time.Time
	lastUsed time.Time
}

// Limiter manages per-client windows.
type Limiter struct {
	mu      sync.RWMutex
	windows map[string]*window

	now func() time.Time // injectable clock for tests
}

// New creates a Limiter using the monotonic wall clock.
func New() *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// NewWithClock creates a Limiter with an injected clock.
func NewWithClock(now func() time.Time) *Limiter {
	l := New()
	l.now = now
	return l
}

// Check records a request attempt for clientID against the given per-minute
// limit and reports the admission decision. Windows are created on first use.
func (l *Limiter) Check(clientID string, limit int) gateway.RateLimitResult {
	w := l.getOrCreate(clientID)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	w.lastUsed = now
	windowStart := now.Add(-Window)

	// Prune expired entries from the head.
	i := 0
	for i < len(w.stamps) && w.stamps[i].Before(windowStart) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}

	if len(w.stamps) >= limit {
		reset := w.stamps[0].Add(Window).Sub(now).Seconds()
		return gateway.RateLimitResult{
			Allowed:      false,
			Limit:        limit,
			Remaining:    0,
			ResetSeconds: round1(reset),
		}
	}

	w.stamps = append(w.stamps, now)
	reset := w.stamps[0].Add(Window).Sub(now).Seconds()
	return gateway.RateLimitResult{
		Allowed:      true,
		Limit:        limit,
		Remaining:    max(0, limit-len(w.stamps)),
		ResetSeconds: round1(reset),
	}
}

// Reset clears the window for clientID. Intended for tests.
func (l *Limiter) Reset(clientID string) {
	l.mu.Lock()
	delete(l.windows, clientID)
	l.mu.Unlock()
}

// EvictIdle removes windows unused since cutoff and returns the count.
// Pending in-flight checks hold the per-window mutex, so eviction never
// races a prune/append pair.
func (l *Limiter) EvictIdle(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for id, w := range l.windows {
		w.mu.Lock()
		idle := w.lastUsed.Before(cutoff)
		w.mu.Unlock()
		if idle {
			delete(l.windows, id)
			evicted++
		}
	}
	return evicted
}

// getOrCreate returns the window for clientID, creating one if needed.
func (l *Limiter) getOrCreate(clientID string) *window {
	l.mu.RLock()
	w, ok := l.windows[clientID]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Double-check after acquiring write lock.
	if w, ok := l.windows[clientID]; ok {
		return w
	}
	w = &window{}
	l.windows[clientID] = w
	return w
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
