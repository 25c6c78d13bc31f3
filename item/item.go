package item

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Common errors.
var (
	// ErrInvalidTransition indicates the requested lifecycle edge is not
	// in the legal transition table.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrInvalidItem indicates the item is missing required fields.
	ErrInvalidItem = errors.New("invalid item")

	// ErrImmutablePayload indicates an attempt to change the payload of an
	// existing item. Only state and the decision trail change after creation.
	ErrImmutablePayload = errors.New("payload is immutable after creation")
)

// Kind identifies the shape of work an item represents.
type Kind string

const (
	KindMessage       Kind = "message"
	KindScheduled     Kind = "scheduled-event"
	KindLedgerAlert   Kind = "ledger-alert"
	KindContentDraft  Kind = "content-draft"
	KindOperatorAlert Kind = "operator-alert"
)

// Domain partitions items by sphere of responsibility.
type Domain string

const (
	DomainPersonal Domain = "personal"
	DomainBusiness Domain = "business"
	DomainShared   Domain = "shared"
)

// Valid reports whether d is one of the known domains.
func (d Domain) Valid() bool {
	switch d {
	case DomainPersonal, DomainBusiness, DomainShared:
		return true
	}
	return false
}

// Decision is one immutable entry in an item's decision trail.
// Entries are append-only; they are never mutated once written.
type Decision struct {
	Actor     string    `yaml:"actor"`
	Action    string    `yaml:"action"`
	Timestamp time.Time `yaml:"timestamp"`
	Rationale string    `yaml:"rationale,omitempty"`
}

// Item is one unit of work tracked through the lifecycle.
//
// The payload (Fields + Body) is immutable after creation; only State and
// Decisions change. An item's physical location in the vault is the sole
// truth for its state - the State field here is a cached copy that loses
// to folder membership on mismatch.
type Item struct {
	// ID is the stable identifier, derived from origin plus the source's
	// natural key so re-ingesting the same source event is idempotent.
	ID string

	// Kind is the shape of work (message, scheduled-event, ...).
	Kind Kind

	// Domain is assigned at triage; DomainShared until then.
	Domain Domain

	// State is the cached lifecycle state. Folder membership wins.
	State State

	// Priority orders items within a state folder. Higher is sooner.
	Priority int

	// CreatedAt is when the item was ingested.
	CreatedAt time.Time

	// ExpiresAt is when the item stops being actionable. Zero means never.
	ExpiresAt time.Time

	// Origin is the name of the producing adapter.
	Origin string

	// Fields holds the structured payload fields downstream consumers
	// need (sender, subject, amount, ...). Immutable after creation.
	Fields map[string]string

	// Body is the opaque payload content. Immutable after creation.
	Body string

	// Decisions is the ordered, append-only decision trail.
	Decisions []Decision
}

// DeriveID computes the stable item identifier for a source event.
// The same origin and natural key always yield the same ID.
func DeriveID(origin, naturalKey string) string {
	sum := sha256.Sum256([]byte(origin + "\x00" + naturalKey))
	return origin + "-" + hex.EncodeToString(sum[:])[:12]
}

// Validate checks that the item carries everything the vault requires.
func (i *Item) Validate() error {
	if i.ID == "" || i.Kind == "" || i.Origin == "" {
		return ErrInvalidItem
	}
	if strings.ContainsAny(i.ID, "/\\") {
		return ErrInvalidItem
	}
	return nil
}

// Field returns the named structured payload field, or "".
func (i *Item) Field(name string) string {
	if i.Fields == nil {
		return ""
	}
	return i.Fields[name]
}

// Amount parses the monetary amount field, if present.
func (i *Item) Amount() (float64, bool) {
	raw := i.Field("amount")
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Expired reports whether the item has passed its expiry at the given time.
func (i *Item) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// Record appends one decision to the trail. The trail is append-only;
// this is the only way it grows.
func (i *Item) Record(actor, action, rationale string) {
	i.Decisions = append(i.Decisions, Decision{
		Actor:     actor,
		Action:    action,
		Timestamp: time.Now().UTC(),
		Rationale: rationale,
	})
}

// ClaimedAt returns the timestamp of the most recent claim decision by
// the given agent, if any. Reconciliation uses this to order competing
// claims deterministically.
func (i *Item) ClaimedAt(agentID string) (time.Time, bool) {
	for n := len(i.Decisions) - 1; n >= 0; n-- {
		d := i.Decisions[n]
		if d.Action == "claim" && d.Actor == agentID {
			return d.Timestamp, true
		}
	}
	return time.Time{}, false
}

// Clone creates a deep copy of the item.
func (i *Item) Clone() *Item {
	clone := *i
	if i.Fields != nil {
		clone.Fields = make(map[string]string, len(i.Fields))
		for k, v := range i.Fields {
			clone.Fields[k] = v
		}
	}
	if i.Decisions != nil {
		clone.Decisions = make([]Decision, len(i.Decisions))
		copy(clone.Decisions, i.Decisions)
	}
	return &clone
}
