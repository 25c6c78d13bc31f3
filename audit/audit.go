// Package audit provides the append-only forensic record of every
// lifecycle transition, triage decision, claim and sync conflict.
// Records are JSON lines partitioned by month; partitions are immutable
// after write and purged once they pass the retention horizon.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies what kind of coordination event a record captures.
type EventType string

const (
	// EventTransition is a lifecycle state change.
	EventTransition EventType = "transition"

	// EventTriage is a triage disposition.
	EventTriage EventType = "triage"

	// EventClaim is a local claim acquisition.
	EventClaim EventType = "claim"

	// EventConflict is a double-claim resolved at reconciliation.
	EventConflict EventType = "conflict"

	// EventSync is a reconciliation pass that had history to move.
	EventSync EventType = "sync"

	// EventError is an operator-visible failure.
	EventError EventType = "error"
)

// Event is one immutable audit record.
type Event struct {
	ID        string            `json:"id"`
	Time      time.Time         `json:"time"`
	Type      EventType         `json:"type"`
	AgentID   string            `json:"agent_id,omitempty"`
	ItemID    string            `json:"item_id,omitempty"`
	From      string            `json:"from,omitempty"`
	To        string            `json:"to,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	Rationale string            `json:"rationale,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// periodFormat partitions records by calendar month.
const periodFormat = "2006-01"

// Log is an append-only audit log rooted at one directory.
type Log struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

// NewLog creates a log writing into the given directory.
func NewLog(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating audit dir: %w", err)
	}
	return &Log{dir: dir, now: time.Now}, nil
}

// Append writes one record to the current period's partition. The
// record's ID and timestamp are filled in if absent; nothing already
// written is ever modified.
func (l *Log) Append(ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = l.now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding audit event: %w", err)
	}

	path := filepath.Join(l.dir, ev.Time.UTC().Format(periodFormat)+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// Partitions lists the existing period partitions, sorted ascending.
func (l *Log) Partitions() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}
	var periods []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		periods = append(periods, strings.TrimSuffix(name, ".jsonl"))
	}
	sort.Strings(periods)
	return periods, nil
}

// Read returns all records in one period partition, in append order.
func (l *Log) Read(period string) ([]Event, error) {
	f, err := os.Open(filepath.Join(l.dir, period+".jsonl"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, fmt.Errorf("corrupt audit record in %s: %w", period, err)
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}

// Purge removes partitions whose period ended more than the retention
// horizon ago. Returns the removed period names.
func (l *Log) Purge(retention time.Duration) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	periods, err := l.Partitions()
	if err != nil {
		return nil, err
	}

	cutoff := l.now().UTC().Add(-retention)
	var removed []string
	for _, p := range periods {
		start, err := time.Parse(periodFormat, p)
		if err != nil {
			continue // not a period partition, leave it alone
		}
		end := start.AddDate(0, 1, 0)
		if end.Before(cutoff) {
			if err := os.Remove(filepath.Join(l.dir, p+".jsonl")); err != nil {
				return removed, err
			}
			removed = append(removed, p)
		}
	}
	return removed, nil
}
