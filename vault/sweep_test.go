package vault

import (
	"testing"
	"time"

	"github.com/vinayprograms/tandem/item"
)

func TestSweepTerminalRemovesOnlyExpired(t *testing.T) {
	v := newTestVault(t)
	now := time.Now().UTC()

	old := newTestItem("msg-old")
	old.Decisions = []item.Decision{{
		Actor: "desk", Action: "release", Timestamp: now.Add(-60 * 24 * time.Hour),
	}}
	if err := v.Create(old, Location{State: item.StateDone}); err != nil {
		t.Fatalf("Create old: %v", err)
	}

	fresh := newTestItem("msg-fresh")
	fresh.Decisions = []item.Decision{{
		Actor: "desk", Action: "release", Timestamp: now.Add(-24 * time.Hour),
	}}
	if err := v.Create(fresh, Location{State: item.StateDone}); err != nil {
		t.Fatalf("Create fresh: %v", err)
	}

	active := newTestItem("msg-active")
	if err := v.Create(active, Location{State: item.StateApproved}); err != nil {
		t.Fatalf("Create active: %v", err)
	}

	removed, err := v.SweepTerminal(30*24*time.Hour, now)
	if err != nil {
		t.Fatalf("SweepTerminal: %v", err)
	}
	if len(removed) != 1 || removed[0] != old.ID {
		t.Errorf("removed = %v, want only %s", removed, old.ID)
	}
	if _, err := v.Locate(fresh.ID); err != nil {
		t.Error("fresh terminal item was swept")
	}
	if _, err := v.Locate(active.ID); err != nil {
		t.Error("non-terminal item was swept")
	}
}

func TestSweepTerminalZeroRetentionKeepsAll(t *testing.T) {
	v := newTestVault(t)
	it := newTestItem("msg-keep")
	it.CreatedAt = time.Now().UTC().Add(-365 * 24 * time.Hour)
	if err := v.Create(it, Location{State: item.StateRejected}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	removed, err := v.SweepTerminal(0, time.Now().UTC())
	if err != nil {
		t.Fatalf("SweepTerminal: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("zero retention removed %v", removed)
	}
}
