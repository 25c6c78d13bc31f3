package audit

import (
	"testing"
	"time"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := NewLog(t.TempDir())
	if err != nil {
		t.Fatalf("NewLog failed: %v", err)
	}
	return l
}

func TestAppendAndRead(t *testing.T) {
	l := newTestLog(t)
	l.now = func() time.Time { return time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC) }

	ev := Event{
		Type:      EventTransition,
		AgentID:   "desk",
		ItemID:    "mail-abc123",
		From:      "triage",
		To:        "approved",
		Actor:     "triage",
		Rationale: "rules matched",
	}
	if err := l.Append(ev); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	events, err := l.Read("2026-08")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	got := events[0]
	if got.ID == "" {
		t.Error("Expected generated event ID")
	}
	if got.Time.IsZero() {
		t.Error("Expected filled timestamp")
	}
	if got.Type != EventTransition || got.ItemID != "mail-abc123" || got.To != "approved" {
		t.Errorf("Unexpected event: %+v", got)
	}
}

func TestAppendOrderPreserved(t *testing.T) {
	l := newTestLog(t)
	l.now = func() time.Time { return time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC) }

	for _, id := range []string{"a", "b", "c"} {
		if err := l.Append(Event{Type: EventClaim, ItemID: id}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	events, err := l.Read("2026-08")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	for n, want := range []string{"a", "b", "c"} {
		if events[n].ItemID != want {
			t.Errorf("Expected append order preserved, got %v", events)
			break
		}
	}
}

func TestPartitioningByPeriod(t *testing.T) {
	l := newTestLog(t)

	times := []time.Time{
		time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
	}
	for _, ts := range times {
		if err := l.Append(Event{Type: EventSync, Time: ts}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	periods, err := l.Partitions()
	if err != nil {
		t.Fatalf("Partitions failed: %v", err)
	}
	want := []string{"2026-06", "2026-07", "2026-08"}
	if len(periods) != len(want) {
		t.Fatalf("Expected %v, got %v", want, periods)
	}
	for n := range want {
		if periods[n] != want[n] {
			t.Errorf("Expected %v, got %v", want, periods)
			break
		}
	}
}

func TestPurgeExpiredPartitions(t *testing.T) {
	l := newTestLog(t)
	l.now = func() time.Time { return time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC) }

	for _, ts := range []time.Time{
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	} {
		if err := l.Append(Event{Type: EventSync, Time: ts}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	// 90 day horizon: only the February partition has fully expired.
	removed, err := l.Purge(90 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if len(removed) != 1 || removed[0] != "2026-02" {
		t.Errorf("Expected [2026-02] removed, got %v", removed)
	}

	periods, err := l.Partitions()
	if err != nil {
		t.Fatalf("Partitions failed: %v", err)
	}
	if len(periods) != 2 {
		t.Errorf("Expected 2 surviving partitions, got %v", periods)
	}
}

func TestReadMissingPartition(t *testing.T) {
	l := newTestLog(t)
	events, err := l.Read("1999-01")
	if err != nil {
		t.Fatalf("Expected missing partition to read empty, got %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected no events, got %d", len(events))
	}
}
