package reconcile

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vinayprograms/tandem/audit"
	"github.com/vinayprograms/tandem/claim"
	"github.com/vinayprograms/tandem/item"
	"github.com/vinayprograms/tandem/logging"
	"github.com/vinayprograms/tandem/vault"
)

type replica struct {
	vault *vault.Vault
	hist  *MemoryHistory
	rec   *Reconciler
	mgr   *claim.Manager
	audit *audit.Log
}

func newReplica(t *testing.T, remote *MemoryRemote, agentID string, writer bool) *replica {
	t.Helper()
	dir := t.TempDir()
	v, err := vault.Open(dir)
	if err != nil {
		t.Fatalf("vault.Open: %v", err)
	}
	// Per-agent audit partitions keep concurrent appends out of the
	// same replicated file.
	al, err := audit.NewLog(filepath.Join(dir, vault.AuditDir, agentID))
	if err != nil {
		t.Fatalf("audit.NewLog: %v", err)
	}
	logger := logging.New()
	logger.SetOutput(io.Discard)
	h := NewMemoryHistory(dir, remote)
	rec := New(v, h, al, logger, Config{
		AgentID:      agentID,
		Writer:       writer,
		MaxRetries:   5,
		RetryBackoff: time.Millisecond,
	})
	mgr, err := claim.NewManager(v, agentID)
	if err != nil {
		t.Fatalf("claim.NewManager: %v", err)
	}
	return &replica{vault: v, hist: h, rec: rec, mgr: mgr, audit: al}
}

func approvedItem(id string) *item.Item {
	return &item.Item{
		ID:        id,
		Kind:      item.KindMessage,
		Domain:    item.DomainBusiness,
		State:     item.StateApproved,
		Origin:    "mail",
		CreatedAt: time.Now().UTC(),
		Body:      "pay the invoice",
	}
}

func (r *replica) run(t *testing.T) Summary {
	t.Helper()
	sum, err := r.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run(%s): %v", r.mgr.AgentID(), err)
	}
	return sum
}

func TestPassPropagatesNewItems(t *testing.T) {
	remote := NewMemoryRemote()
	desk := newReplica(t, remote, "desk", true)
	field := newReplica(t, remote, "field", false)

	if err := desk.vault.Create(approvedItem("mail-001"), vault.Location{State: item.StateApproved}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	sum := desk.run(t)
	if !sum.Published {
		t.Error("desk pass should publish the new item")
	}

	sum = field.run(t)
	if !sum.RemoteChanged {
		t.Error("field pass should report remote work")
	}
	loc, err := field.vault.Locate("mail-001")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if loc.State != item.StateApproved {
		t.Errorf("expected item in approved on field replica, got %s", loc)
	}
}

func TestPassIsIdleWhenNothingChanged(t *testing.T) {
	remote := NewMemoryRemote()
	desk := newReplica(t, remote, "desk", true)

	sum := desk.run(t)
	if sum.Published || sum.RemoteChanged || sum.Conflicts != 0 {
		t.Errorf("idle pass did work: %+v", sum)
	}
}

func TestCheckpointTracksHead(t *testing.T) {
	remote := NewMemoryRemote()
	desk := newReplica(t, remote, "desk", true)

	if err := desk.vault.Create(approvedItem("mail-001"), vault.Location{State: item.StateApproved}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	sum := desk.run(t)

	cp, err := desk.rec.Checkpoint()
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if cp == "" || cp != sum.Head {
		t.Errorf("checkpoint %q does not match pass head %q", cp, sum.Head)
	}
}

func TestMemoryHistoryDivergence(t *testing.T) {
	remote := NewMemoryRemote()
	desk := newReplica(t, remote, "desk", true)
	field := newReplica(t, remote, "field", false)
	ctx := context.Background()

	if err := desk.vault.Create(approvedItem("mail-001"), vault.Location{State: item.StateApproved}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := field.vault.Create(approvedItem("mail-002"), vault.Location{State: item.StateApproved}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := desk.hist.Commit(ctx, "desk"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := field.hist.Commit(ctx, "field"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := desk.hist.Publish(ctx); err != nil {
		t.Fatalf("desk Publish: %v", err)
	}
	if err := field.hist.Publish(ctx); !errors.Is(err, ErrDiverged) {
		t.Fatalf("expected ErrDiverged, got %v", err)
	}
	if err := field.hist.Integrate(ctx); err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	if err := field.hist.Publish(ctx); err != nil {
		t.Fatalf("Publish after integrate: %v", err)
	}

	// Both items survive the merge.
	if err := desk.hist.Integrate(ctx); err != nil {
		t.Fatalf("desk Integrate: %v", err)
	}
	for _, id := range []string{"mail-001", "mail-002"} {
		if _, err := desk.vault.Locate(id); err != nil {
			t.Errorf("desk replica missing %s after merge: %v", id, err)
		}
	}
}

func TestDoubleClaimResolvesToEarlierClaim(t *testing.T) {
	remote := NewMemoryRemote()
	desk := newReplica(t, remote, "desk", true)
	field := newReplica(t, remote, "field", false)

	if err := desk.vault.Create(approvedItem("mail-001"), vault.Location{State: item.StateApproved}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	desk.run(t)
	field.run(t)

	// Both agents claim from their unsynced replicas, desk first.
	if _, err := desk.mgr.Claim("mail-001"); err != nil {
		t.Fatalf("desk Claim: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := field.mgr.Claim("mail-001"); err != nil {
		t.Fatalf("field Claim: %v", err)
	}

	desk.run(t)
	sum := field.run(t)

	if sum.Conflicts != 1 {
		t.Errorf("expected 1 resolved conflict, got %d", sum.Conflicts)
	}
	loc, err := field.vault.Locate("mail-001")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if loc.State != item.StateClaimed || loc.Agent != "desk" {
		t.Errorf("item should reside only under the earlier claim, got %s", loc)
	}
	if field.mgr.Holds("mail-001") {
		t.Error("losing agent still holds the item; it must abort this work")
	}

	events, err := field.audit.Read(time.Now().UTC().Format("2006-01"))
	if err != nil {
		t.Fatalf("audit.Read: %v", err)
	}
	conflicts := 0
	for _, ev := range events {
		if ev.Type == audit.EventConflict {
			conflicts++
			if ev.ItemID != "mail-001" || ev.Details["winner"] != "desk" || ev.Details["loser"] != "field" {
				t.Errorf("wrong conflict record: %+v", ev)
			}
		}
	}
	if conflicts != 1 {
		t.Errorf("expected exactly one conflict audit event, got %d", conflicts)
	}

	// The winner keeps its claim across its own next pass.
	desk.run(t)
	if !desk.mgr.Holds("mail-001") {
		t.Error("winning agent lost its claim")
	}
}

func TestEqualTimestampsTieBreakByAgentID(t *testing.T) {
	remote := NewMemoryRemote()
	desk := newReplica(t, remote, "desk", true)
	field := newReplica(t, remote, "field", false)

	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, r := range []struct {
		rep   *replica
		agent string
	}{{desk, "desk"}, {field, "field"}} {
		it := approvedItem("mail-001")
		it.State = item.StateClaimed
		it.Decisions = []item.Decision{{
			Actor:     r.agent,
			Action:    "claim",
			Timestamp: ts,
		}}
		loc := vault.Location{State: item.StateClaimed, Agent: r.agent}
		if err := r.rep.vault.Create(it, loc); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	desk.run(t)
	sum := field.run(t)

	if sum.Conflicts != 1 {
		t.Errorf("expected 1 resolved conflict, got %d", sum.Conflicts)
	}
	loc, err := field.vault.Locate("mail-001")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if loc.Agent != "desk" {
		t.Errorf("tie must break to the lexicographically smaller agent, got %s", loc)
	}
}

func TestCompletedItemBeatsLateClaim(t *testing.T) {
	remote := NewMemoryRemote()
	desk := newReplica(t, remote, "desk", true)
	field := newReplica(t, remote, "field", false)

	if err := desk.vault.Create(approvedItem("mail-001"), vault.Location{State: item.StateApproved}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	desk.run(t)
	field.run(t)

	// Desk takes the item all the way to done while field, unsynced,
	// claims its stale approved copy.
	if _, err := desk.mgr.Claim("mail-001"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := desk.mgr.Begin("mail-001"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := desk.mgr.Release("mail-001", claim.OutcomeDone, "sent"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := field.mgr.Claim("mail-001"); err != nil {
		t.Fatalf("field Claim: %v", err)
	}

	desk.run(t)
	field.run(t)

	loc, err := field.vault.Locate("mail-001")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if loc.State != item.StateDone {
		t.Errorf("completed copy must win over the late claim, got %s", loc)
	}
	if field.mgr.Holds("mail-001") {
		t.Error("late claimer still holds a copy")
	}
}

// flakyHistory fails the first publish attempts, like a dropped
// network between commit and push.
type flakyHistory struct {
	*MemoryHistory
	failures int
}

func (h *flakyHistory) Publish(ctx context.Context) error {
	if h.failures > 0 {
		h.failures--
		return errors.New("remote unreachable")
	}
	return h.MemoryHistory.Publish(ctx)
}

func TestFailedPublishRetriesNextPass(t *testing.T) {
	remote := NewMemoryRemote()
	dir := t.TempDir()
	v, err := vault.Open(dir)
	if err != nil {
		t.Fatalf("vault.Open: %v", err)
	}
	logger := logging.New()
	logger.SetOutput(io.Discard)
	h := &flakyHistory{MemoryHistory: NewMemoryHistory(dir, remote), failures: 1}
	// No audit log: nothing else may dirty the tree between passes, so
	// the retry must come from the stranded commit itself.
	rec := New(v, h, nil, logger, Config{
		AgentID:      "field",
		MaxRetries:   5,
		RetryBackoff: time.Millisecond,
	})

	if err := v.Create(approvedItem("mail-001"), vault.Location{State: item.StateApproved}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := rec.Run(context.Background()); err == nil {
		t.Fatal("pass with unreachable remote should fail")
	}

	sum, err := rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run after recovery: %v", err)
	}
	if !sum.Published {
		t.Error("recovered pass did not publish the stranded commit")
	}

	desk := newReplica(t, remote, "desk", true)
	desk.run(t)
	if _, err := desk.vault.Locate("mail-001"); err != nil {
		t.Errorf("stranded commit never reached the other replica: %v", err)
	}
}

func TestSettledReplicasGoQuiet(t *testing.T) {
	remote := NewMemoryRemote()
	desk := newReplica(t, remote, "desk", true)
	field := newReplica(t, remote, "field", false)

	if err := desk.vault.Create(approvedItem("mail-001"), vault.Location{State: item.StateApproved}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	desk.run(t)
	field.run(t)

	// Both sides have seen everything; further passes must not keep
	// committing each other's sync records.
	for i, rep := range []*replica{desk, field, desk, field} {
		sum := rep.run(t)
		if sum.Published || sum.RemoteChanged || sum.Conflicts != 0 {
			t.Errorf("settled pass %d did work: %+v", i, sum)
		}
	}
}

func TestResolveToleratesConcurrentlyMovedItem(t *testing.T) {
	remote := NewMemoryRemote()
	desk := newReplica(t, remote, "desk", true)

	if err := desk.vault.Create(approvedItem("mail-001"), vault.Location{State: item.StateApproved}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := desk.mgr.Claim("mail-001"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	// The scan saw copies that the execute loop moved away before
	// resolve reached them.
	locs := []vault.Location{
		{State: item.StateClaimed, Agent: "desk"},
		{State: item.StateClaimed, Agent: "field"},
		{State: item.StateApproved},
	}
	n, err := desk.rec.resolveItem("mail-001", locs)
	if err != nil {
		t.Fatalf("resolveItem: %v", err)
	}
	if n != 0 {
		t.Errorf("vanished copies are not conflicts, got %d", n)
	}
	loc, err := desk.vault.Locate("mail-001")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if loc.State != item.StateClaimed || loc.Agent != "desk" {
		t.Errorf("surviving copy moved, got %s", loc)
	}
}

func TestNonWriterRestoresStatusDrift(t *testing.T) {
	remote := NewMemoryRemote()
	desk := newReplica(t, remote, "desk", true)
	field := newReplica(t, remote, "field", false)

	statusPath := filepath.Join(desk.vault.Root(), vault.StatusFile)
	if err := os.WriteFile(statusPath, []byte("# Status\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	desk.run(t)
	field.run(t)

	// A direct edit on the non-writer replica must not replicate.
	fieldStatus := filepath.Join(field.vault.Root(), vault.StatusFile)
	if err := os.WriteFile(fieldStatus, []byte("# Status\nrogue edit\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	field.run(t)

	data, err := os.ReadFile(fieldStatus)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(data), "rogue") {
		t.Errorf("direct status edit survived on the non-writer: %q", data)
	}
}
