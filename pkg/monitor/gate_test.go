package monitor

import (
	"testing"
	"time"
)

func fixedCooldown(d time.Duration) func(string) time.Duration {
	return func(string) time.Duration { return d }
}

func TestGateFirstFireImmediate(t *testing.T) {
	g := NewGate(fixedCooldown(time.Hour))
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if !g.Fire("disk", now) {
		t.Fatal("first fire must pass immediately")
	}
	if g.Fire("disk", now.Add(time.Minute)) {
		t.Fatal("repeat inside cooldown must be suppressed")
	}
}

func TestGateCooldownWindow(t *testing.T) {
	g := NewGate(fixedCooldown(300 * time.Second))
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// probes every 100s inside one cooldown window: exactly one notification
	sent := 0
	for i := 0; i < 3; i++ {
		if g.Fire("cpu", base.Add(time.Duration(i)*100*time.Second)) {
			sent++
		}
	}
	if sent != 1 {
		t.Errorf("100s apart: %d notifications, want 1", sent)
	}

	// a probe 400s after the first crosses the window and fires again
	if !g.Fire("cpu", base.Add(400*time.Second)) {
		t.Error("fire past cooldown must pass")
	}
}

func TestGateRecoveryEdge(t *testing.T) {
	g := NewGate(fixedCooldown(time.Hour))
	now := time.Now()
	if g.Clear("internet") {
		t.Error("clear without prior alert must not report recovery")
	}
	g.Fire("internet", now)
	if !g.Alerted("internet") {
		t.Error("category should be alerted")
	}
	if !g.Clear("internet") {
		t.Error("first clear after alert is the recovery edge")
	}
	if g.Clear("internet") {
		t.Error("second clear must be silent")
	}
	// after recovery the next failure fires immediately again
	if !g.Fire("internet", now.Add(time.Second)) {
		t.Error("re-alert after recovery must fire immediately")
	}
}

func TestGateCategoriesIndependent(t *testing.T) {
	g := NewGate(fixedCooldown(time.Hour))
	now := time.Now()
	g.Fire("disk", now)
	if !g.Fire("cpu", now) {
		t.Error("categories must not share cooldown state")
	}
}

func TestGatePerCategoryCooldown(t *testing.T) {
	g := NewGate(func(cat string) time.Duration {
		if cat == "disk" {
			return 10 * time.Second
		}
		return time.Hour
	})
	base := time.Now()
	g.Fire("disk", base)
	g.Fire("cpu", base)
	later := base.Add(30 * time.Second)
	if !g.Fire("disk", later) {
		t.Error("disk cooldown of 10s should have elapsed")
	}
	if g.Fire("cpu", later) {
		t.Error("cpu cooldown of 1h should still hold")
	}
}
