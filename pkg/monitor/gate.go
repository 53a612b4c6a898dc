package monitor

import (
	"sync"
	"time"
)

// Gate is the per-category notification throttle. A category is either OK
// or ALERTED; the first failing probe fires immediately, repeats are held
// back until the category's cooldown elapses, and the transition back to OK
// fires a single recovery.
type Gate struct {
	cooldownFor func(category string) time.Duration

	mu     sync.Mutex
	states map[string]*catState
}

type catState struct {
	alerted  bool
	lastSent time.Time
}

func NewGate(cooldownFor func(string) time.Duration) *Gate {
	return &Gate{
		cooldownFor: cooldownFor,
		states:      make(map[string]*catState),
	}
}

// Fire records a failing probe and reports whether a notification should go
// out now.
func (g *Gate) Fire(category string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.states[category]
	if st == nil {
		st = &catState{}
		g.states[category] = st
	}
	if !st.alerted {
		st.alerted = true
		st.lastSent = now
		return true
	}
	if now.Sub(st.lastSent) >= g.cooldownFor(category) {
		st.lastSent = now
		return true
	}
	return false
}

// Clear records a passing probe and reports whether this is the recovery
// edge (the category was previously alerted).
func (g *Gate) Clear(category string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.states[category]
	if st == nil || !st.alerted {
		return false
	}
	st.alerted = false
	return true
}

// Alerted reports whether the category currently holds an alert.
func (g *Gate) Alerted(category string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.states[category]
	return st != nil && st.alerted
}
