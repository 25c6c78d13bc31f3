package item

import (
	"testing"
	"time"
)

func TestDeriveIDStable(t *testing.T) {
	id1 := DeriveID("mail", "msg-20260815-001")
	id2 := DeriveID("mail", "msg-20260815-001")

	if id1 != id2 {
		t.Errorf("Expected identical IDs for same source event, got %s and %s", id1, id2)
	}
	if id1 == DeriveID("mail", "msg-20260815-002") {
		t.Error("Expected distinct IDs for distinct natural keys")
	}
	if id1 == DeriveID("calendar", "msg-20260815-001") {
		t.Error("Expected distinct IDs for distinct origins")
	}
}

func TestValidate(t *testing.T) {
	ok := &Item{ID: "mail-abc123", Kind: KindMessage, Origin: "mail"}
	if err := ok.Validate(); err != nil {
		t.Errorf("Expected valid item, got %v", err)
	}

	bad := []*Item{
		{Kind: KindMessage, Origin: "mail"},
		{ID: "mail-abc123", Origin: "mail"},
		{ID: "mail-abc123", Kind: KindMessage},
		{ID: "../escape", Kind: KindMessage, Origin: "mail"},
	}
	for n, it := range bad {
		if err := it.Validate(); err == nil {
			t.Errorf("Expected case %d to fail validation", n)
		}
	}
}

func TestAmount(t *testing.T) {
	it := &Item{Fields: map[string]string{"amount": "1500.00"}}
	v, ok := it.Amount()
	if !ok || v != 1500 {
		t.Errorf("Expected amount 1500, got %v (ok=%v)", v, ok)
	}

	if _, ok := (&Item{}).Amount(); ok {
		t.Error("Expected no amount on empty item")
	}
	if _, ok := (&Item{Fields: map[string]string{"amount": "n/a"}}).Amount(); ok {
		t.Error("Expected unparseable amount to report absent")
	}
}

func TestClaimedAt(t *testing.T) {
	it := &Item{}
	it.Record("triage", "approve", "")
	it.Record("desk", "claim", "")

	if _, ok := it.ClaimedAt("field"); ok {
		t.Error("Expected no claim timestamp for agent that never claimed")
	}
	ts, ok := it.ClaimedAt("desk")
	if !ok || ts.IsZero() {
		t.Errorf("Expected claim timestamp for desk, got %v (ok=%v)", ts, ok)
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	it := &Item{ExpiresAt: now.Add(-time.Hour)}
	if !it.Expired(now) {
		t.Error("Expected item past expiry to be expired")
	}
	if (&Item{}).Expired(now) {
		t.Error("Expected zero expiry to mean never")
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := &Item{
		ID:     "mail-abc123",
		Kind:   KindMessage,
		Origin: "mail",
		Fields: map[string]string{"sender": "a@example.com"},
	}
	orig.Record("triage", "approve", "")

	clone := orig.Clone()
	clone.Fields["sender"] = "b@example.com"
	clone.Record("desk", "claim", "")

	if orig.Fields["sender"] != "a@example.com" {
		t.Error("Expected clone field mutation not to leak into original")
	}
	if len(orig.Decisions) != 1 {
		t.Errorf("Expected original trail untouched, got %d entries", len(orig.Decisions))
	}
}
