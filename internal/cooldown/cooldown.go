// Package cooldown gates rule re-triggering on a per-rule window.
//
// The check and the last-fired update are fused into a single Acquire so
// two alerts matching the same rule concurrently cannot both pass the
// gate. Cooldown is measured from the start of the previous attempt.
package cooldown

import (
	"context"
	"sync"
	"time"
)

// Tracker decides whether a rule may fire and records when it did.
type Tracker interface {
	// Acquire returns true if the rule's cooldown has elapsed (or the
	// rule never fired) and atomically records now as the last-fired
	// instant. A false return leaves the existing timestamp untouched.
	Acquire(ctx context.Context, ruleID string, cooldown time.Duration) bool

	// LastFired returns the rule's last-fired instant, if any.
	LastFired(ctx context.Context, ruleID string) (time.Time, bool)
}

// MemoryTracker is the default in-process tracker.
type MemoryTracker struct {
	mu        sync.Mutex
	lastFired map[string]time.Time
	now       func() time.Time
}

// NewMemoryTracker creates an in-memory cooldown tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		lastFired: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Acquire implements Tracker.
func (t *MemoryTracker) Acquire(_ context.Context, ruleID string, cooldown time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.lastFired[ruleID]; ok && now.Sub(last) < cooldown {
		return false
	}
	t.lastFired[ruleID] = now
	return true
}

// LastFired implements Tracker.
func (t *MemoryTracker) LastFired(_ context.Context, ruleID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.lastFired[ruleID]
	return last, ok
}
