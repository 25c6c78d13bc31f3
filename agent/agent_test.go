package agent

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vinayprograms/tandem/claim"
	"github.com/vinayprograms/tandem/config"
	"github.com/vinayprograms/tandem/errors"
	"github.com/vinayprograms/tandem/item"
	"github.com/vinayprograms/tandem/logging"
	"github.com/vinayprograms/tandem/triage"
	"github.com/vinayprograms/tandem/vault"
)

type stubAdapter struct {
	items []*item.Item
	err   error
}

func (s *stubAdapter) Ingest(ctx context.Context) ([]*item.Item, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := s.items
	s.items = nil
	return out, nil
}

func approveAll() triage.Classifier {
	return triage.ClassifierFunc(func(ctx context.Context, it *item.Item, policy triage.PolicyContext) (triage.Decision, error) {
		return triage.Decision{Disposition: triage.DispositionApprove, Rationale: "routine"}, nil
	})
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Agent = "desk"
	cfg.Store = t.TempDir()
	cfg.Writer = true
	return cfg
}

func quietLogger() *logging.Logger {
	l := logging.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestAgent(t *testing.T, cfg config.Config, opts ...Option) *Agent {
	t.Helper()
	opts = append(opts, WithLogger(quietLogger()))
	a, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func mailItem(id string) *item.Item {
	return &item.Item{
		ID:     id,
		Kind:   item.KindMessage,
		Origin: "mail",
		Fields: map[string]string{"subject": "quarterly report"},
		Body:   "please review the attached figures",
	}
}

func TestOncePipelineIngestToDone(t *testing.T) {
	cfg := testConfig(t)
	executed := 0
	a := newTestAgent(t, cfg,
		WithClassifier(approveAll()),
		WithAdapter("mail", &stubAdapter{items: []*item.Item{mailItem("mail-0001")}}),
		WithExecutor(item.KindMessage, ExecutorFunc(func(ctx context.Context, it *item.Item) (claim.Outcome, error) {
			executed++
			return claim.OutcomeDone, nil
		})),
	)

	if err := a.Once(context.Background()); err != nil {
		t.Fatalf("Once: %v", err)
	}
	if executed != 1 {
		t.Fatalf("executor ran %d times, want 1", executed)
	}
	loc, err := a.Vault().Locate("mail-0001")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if loc.State != item.StateDone {
		t.Errorf("item ended at %s, want %s", loc.State, item.StateDone)
	}
	if a.mgr.Holds("mail-0001") {
		t.Error("claim should be released after execution")
	}

	content, err := os.ReadFile(filepath.Join(cfg.Store, vault.StatusFile))
	if err != nil {
		t.Fatalf("reading status artifact: %v", err)
	}
	if !strings.Contains(string(content), "mail-0001") {
		t.Errorf("status artifact missing item entry:\n%s", content)
	}
	if !strings.Contains(string(content), "## Inbox") {
		t.Errorf("status artifact missing section:\n%s", content)
	}
}

func TestOnceIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	executed := 0
	ad := &stubAdapter{items: []*item.Item{mailItem("mail-0001")}}
	a := newTestAgent(t, cfg,
		WithClassifier(approveAll()),
		WithAdapter("mail", ad),
		WithExecutor(item.KindMessage, ExecutorFunc(func(ctx context.Context, it *item.Item) (claim.Outcome, error) {
			executed++
			return claim.OutcomeDone, nil
		})),
	)

	for i := 0; i < 3; i++ {
		if err := a.Once(context.Background()); err != nil {
			t.Fatalf("Once #%d: %v", i+1, err)
		}
	}
	if executed != 1 {
		t.Errorf("executor ran %d times across repeated passes, want 1", executed)
	}
}

func TestExecutorFailureRoutesToFailed(t *testing.T) {
	cfg := testConfig(t)
	a := newTestAgent(t, cfg,
		WithClassifier(approveAll()),
		WithAdapter("mail", &stubAdapter{items: []*item.Item{mailItem("mail-0002")}}),
		WithExecutor(item.KindMessage, ExecutorFunc(func(ctx context.Context, it *item.Item) (claim.Outcome, error) {
			return claim.OutcomeFailed, errors.ExecutorFailed("send rejected by upstream")
		})),
	)

	if err := a.Once(context.Background()); err != nil {
		t.Fatalf("Once: %v", err)
	}
	loc, err := a.Vault().Locate("mail-0002")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if loc.State != item.StateFailed {
		t.Errorf("item ended at %s, want %s", loc.State, item.StateFailed)
	}
}

func TestNoClassifierMeansManualReview(t *testing.T) {
	cfg := testConfig(t)
	a := newTestAgent(t, cfg,
		WithAdapter("mail", &stubAdapter{items: []*item.Item{mailItem("mail-0003")}}),
	)

	if err := a.Once(context.Background()); err != nil {
		t.Fatalf("Once: %v", err)
	}
	loc, err := a.Vault().Locate("mail-0003")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if loc.State != item.StateAwaitingApproval {
		t.Errorf("item ended at %s, want %s", loc.State, item.StateAwaitingApproval)
	}
}

func TestAuthFailureEscalatesOperatorAlert(t *testing.T) {
	cfg := testConfig(t)
	a := newTestAgent(t, cfg,
		WithAdapter("mail", &stubAdapter{err: errors.AuthFailed("token expired")}),
	)

	// Auth failure is handled by escalation, not returned as a pass
	// error.
	if err := a.Once(context.Background()); err != nil {
		t.Fatalf("Once: %v", err)
	}
	ids, err := a.Vault().List(vault.Location{State: item.StateAwaitingApproval})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("review queue has %d items, want 1 operator alert", len(ids))
	}
	alert, _, err := a.Vault().Get(ids[0])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if alert.Kind != item.KindOperatorAlert {
		t.Errorf("escalated item has kind %s, want %s", alert.Kind, item.KindOperatorAlert)
	}
	if alert.Field("adapter") != "mail" {
		t.Errorf("alert adapter field = %q, want mail", alert.Field("adapter"))
	}

	// Repeated failures do not duplicate the alert.
	a.adapters["mail"] = &stubAdapter{err: errors.AuthFailed("token expired")}
	if err := a.Once(context.Background()); err != nil {
		t.Fatalf("second Once: %v", err)
	}
	ids, _ = a.Vault().List(vault.Location{State: item.StateAwaitingApproval})
	if len(ids) != 1 {
		t.Errorf("review queue has %d items after repeat failure, want 1", len(ids))
	}
}

func TestInvalidPayloadIsQuarantined(t *testing.T) {
	cfg := testConfig(t)
	a := newTestAgent(t, cfg,
		WithAdapter("mail", &stubAdapter{items: []*item.Item{
			{Kind: item.KindMessage, Body: "no id on this one"},
		}}),
	)

	if err := a.Once(context.Background()); err != nil {
		t.Fatalf("Once: %v", err)
	}
	ids, err := a.Vault().List(vault.Location{State: item.StateFailed})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("failed folder has %d items, want 1 quarantined payload", len(ids))
	}
	it, _, err := a.Vault().Get(ids[0])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if it.Body != "no id on this one" {
		t.Errorf("quarantined payload lost its body: %q", it.Body)
	}
}

func TestDryRunLeavesVaultUntouched(t *testing.T) {
	cfg := testConfig(t)
	cfg.DryRun = true
	a := newTestAgent(t, cfg,
		WithClassifier(approveAll()),
		WithAdapter("mail", &stubAdapter{items: []*item.Item{mailItem("mail-0004")}}),
	)

	// Seed an item directly so triage has something it would move.
	seeded := mailItem("mail-0005")
	seeded.State = item.StateNew
	if err := a.Vault().Create(seeded, vault.Location{State: item.StateNew}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := a.Once(context.Background()); err != nil {
		t.Fatalf("Once: %v", err)
	}
	if _, err := a.Vault().Locate("mail-0004"); err == nil {
		t.Error("dry-run ingested an item into the vault")
	}
	loc, err := a.Vault().Locate("mail-0005")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if loc.State != item.StateNew {
		t.Errorf("dry-run moved seeded item to %s", loc.State)
	}
}

func TestStrandedExecutingItemIsReRun(t *testing.T) {
	cfg := testConfig(t)
	executed := 0
	a := newTestAgent(t, cfg,
		WithExecutor(item.KindMessage, ExecutorFunc(func(ctx context.Context, it *item.Item) (claim.Outcome, error) {
			executed++
			return claim.OutcomeDone, nil
		})),
	)

	// Simulate a crash mid-execution: item sits in this agent's
	// executing folder from a previous process.
	stranded := mailItem("mail-0006")
	stranded.State = item.StateExecuting
	loc := vault.Location{State: item.StateExecuting, Agent: cfg.Agent}
	if err := a.Vault().Create(stranded, loc); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := a.Once(context.Background()); err != nil {
		t.Fatalf("Once: %v", err)
	}
	if executed != 1 {
		t.Fatalf("stranded item executed %d times, want 1", executed)
	}
	got, err := a.Vault().Locate("mail-0006")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if got.State != item.StateDone {
		t.Errorf("stranded item ended at %s, want %s", got.State, item.StateDone)
	}
}

func TestNonWriterProposesWithoutFolding(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent = "field"
	cfg.Writer = false
	a := newTestAgent(t, cfg,
		WithClassifier(approveAll()),
		WithAdapter("mail", &stubAdapter{items: []*item.Item{mailItem("mail-0007")}}),
	)

	if err := a.Once(context.Background()); err != nil {
		t.Fatalf("Once: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Store, vault.StatusFile)); !os.IsNotExist(err) {
		t.Error("non-writer produced a status artifact")
	}
	envs, err := a.queue.List()
	if err != nil {
		t.Fatalf("List envelopes: %v", err)
	}
	if len(envs) == 0 {
		t.Error("non-writer queued no status envelopes")
	}
}

func TestTriageRoutesByDomainOverride(t *testing.T) {
	cfg := testConfig(t)
	rules := `[personal]
keywords = ["family"]

[business]
keywords = ["invoice"]

[overrides]
max_amount = 100.0
over_amount_action = "review"
`
	if err := os.WriteFile(cfg.RulesPath(), []byte(rules), 0o644); err != nil {
		t.Fatalf("writing rules: %v", err)
	}
	big := mailItem("ledger-0001")
	big.Kind = item.KindLedgerAlert
	big.Fields = map[string]string{"subject": "invoice overdue", "amount": "2500.00"}

	a := newTestAgent(t, cfg,
		WithClassifier(approveAll()),
		WithAdapter("ledger", &stubAdapter{items: []*item.Item{big}}),
	)
	if err := a.Once(context.Background()); err != nil {
		t.Fatalf("Once: %v", err)
	}

	// The hard amount override beats the approving classifier.
	loc, err := a.Vault().Locate("ledger-0001")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if loc.State != item.StateAwaitingApproval {
		t.Errorf("over-limit item ended at %s, want %s", loc.State, item.StateAwaitingApproval)
	}
}
