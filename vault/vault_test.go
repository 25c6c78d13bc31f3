package vault

import (
	"errors"
	"testing"
	"time"

	"github.com/vinayprograms/tandem/item"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return v
}

func newTestItem(key string) *item.Item {
	return &item.Item{
		ID:        item.DeriveID("mail", key),
		Kind:      item.KindMessage,
		Domain:    item.DomainShared,
		Origin:    "mail",
		CreatedAt: time.Now().UTC(),
		Fields:    map[string]string{"sender": "someone@example.com"},
		Body:      "hello",
	}
}

func TestCreateAndLoad(t *testing.T) {
	v := newTestVault(t)
	it := newTestItem("msg-001")
	loc := Location{State: item.StateNew, Domain: item.DomainShared}

	if err := v.Create(it, loc); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := v.Load(it.ID, loc)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.State != item.StateNew {
		t.Errorf("Expected state new from location, got %s", got.State)
	}
	if got.Body != "hello" {
		t.Errorf("Expected body to survive, got %q", got.Body)
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	v := newTestVault(t)
	loc := Location{State: item.StateNew, Domain: item.DomainShared}

	if err := v.Create(newTestItem("msg-001"), loc); err != nil {
		t.Fatalf("First create failed: %v", err)
	}

	// Same natural key derives the same ID; second create must not
	// produce a second item, even at a different location.
	err := v.Create(newTestItem("msg-001"), Location{State: item.StateAwaitingTriage})
	if !errors.Is(err, ErrExists) {
		t.Fatalf("Expected ErrExists, got %v", err)
	}

	entries, err := v.Scan()
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected exactly one item in vault, got %d", len(entries))
	}
}

func TestLocationIsAuthoritativeOverHeader(t *testing.T) {
	v := newTestVault(t)
	it := newTestItem("msg-001")
	it.State = item.StateDone // stale cached header state
	loc := Location{State: item.StateApproved}

	if err := v.Create(it, loc); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := v.Load(it.ID, loc)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.State != item.StateApproved {
		t.Errorf("Expected folder membership to win, got %s", got.State)
	}
}

func TestRelocateAtomicMove(t *testing.T) {
	v := newTestVault(t)
	it := newTestItem("msg-001")
	approved := Location{State: item.StateApproved}
	claimed := Location{State: item.StateClaimed, Agent: "desk"}

	if err := v.Create(it, approved); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := v.Relocate(it.ID, approved, claimed); err != nil {
		t.Fatalf("Relocate failed: %v", err)
	}

	// Exactly one state folder holds the item.
	entries, err := v.Scan()
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected item in exactly one folder, got %d entries", len(entries))
	}
	if entries[0].Location.State != item.StateClaimed || entries[0].Location.Agent != "desk" {
		t.Errorf("Expected claimed/desk, got %s", entries[0].Location)
	}
}

func TestRelocateMissingIsNotAnError(t *testing.T) {
	v := newTestVault(t)
	err := v.Relocate("mail-000000000000",
		Location{State: item.StateApproved},
		Location{State: item.StateClaimed, Agent: "desk"})
	if !errors.Is(err, ErrMissing) {
		t.Fatalf("Expected ErrMissing sentinel, got %v", err)
	}
}

func TestAdvance(t *testing.T) {
	v := newTestVault(t)
	it := newTestItem("msg-001")
	triage := Location{State: item.StateAwaitingTriage}

	if err := v.Create(it, triage); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := v.Advance(it.ID, triage, Location{State: item.StateApproved}, "triage", "rules matched")
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if got.State != item.StateApproved {
		t.Errorf("Expected approved, got %s", got.State)
	}

	// Decision trail persisted at the destination.
	reloaded, err := v.Load(it.ID, Location{State: item.StateApproved})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(reloaded.Decisions) != 1 || reloaded.Decisions[0].Action != "approve" {
		t.Errorf("Expected persisted approve decision, got %+v", reloaded.Decisions)
	}
}

func TestAdvanceRejectsIllegalEdge(t *testing.T) {
	v := newTestVault(t)
	it := newTestItem("msg-001")
	triage := Location{State: item.StateAwaitingTriage}

	if err := v.Create(it, triage); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err := v.Advance(it.ID, triage, Location{State: item.StateDone}, "test", "")
	if !errors.Is(err, item.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}

	// Item did not move.
	loc, err := v.Locate(it.ID)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if loc.State != item.StateAwaitingTriage {
		t.Errorf("Expected item still in triage, got %s", loc)
	}
}

func TestListSortedAndFiltered(t *testing.T) {
	v := newTestVault(t)
	loc := Location{State: item.StateApproved}

	for _, key := range []string{"msg-b", "msg-a", "msg-c"} {
		if err := v.Create(newTestItem(key), loc); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	ids, err := v.List(loc)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(ids))
	}
	for n := 1; n < len(ids); n++ {
		if ids[n-1] >= ids[n] {
			t.Errorf("Expected sorted IDs, got %v", ids)
		}
	}
}

func TestAgents(t *testing.T) {
	v := newTestVault(t)

	if err := v.Create(newTestItem("msg-1"), Location{State: item.StateClaimed, Agent: "field"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := v.Create(newTestItem("msg-2"), Location{State: item.StateClaimed, Agent: "desk"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	agents, err := v.Agents(item.StateClaimed)
	if err != nil {
		t.Fatalf("Agents failed: %v", err)
	}
	if len(agents) != 2 || agents[0] != "desk" || agents[1] != "field" {
		t.Errorf("Expected [desk field], got %v", agents)
	}
}

func TestUpdatePersistsTrailInPlace(t *testing.T) {
	v := newTestVault(t)
	it := newTestItem("msg-001")
	loc := Location{State: item.StateFailed}

	if err := v.Create(it, loc); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	it.Record("operator", "annotate", "smtp 550 from executor")
	if err := v.Update(it, loc); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := v.Load(it.ID, loc)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got.Decisions) != 1 || got.Decisions[0].Rationale != "smtp 550 from executor" {
		t.Errorf("Expected annotation persisted, got %+v", got.Decisions)
	}
}
