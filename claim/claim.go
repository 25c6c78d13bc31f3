package claim

import (
	"errors"
	"fmt"

	"github.com/vinayprograms/tandem/item"
	"github.com/vinayprograms/tandem/vault"
)

// Common errors.
var (
	// ErrInvalidOutcome indicates an unrecognized release outcome.
	ErrInvalidOutcome = errors.New("invalid release outcome")

	// ErrInvalidAgentID indicates the agent ID is empty or unusable
	// as a folder name.
	ErrInvalidAgentID = errors.New("invalid agent ID")
)

// Outcome is the result an executor reports when releasing a claim.
type Outcome string

const (
	// OutcomeDone indicates the executor completed the side effect.
	OutcomeDone Outcome = "done"

	// OutcomeFailed indicates execution failed; the item keeps the
	// failure reason and stays eligible for manual retry.
	OutcomeFailed Outcome = "failed"
)

// Manager provides exclusive, crash-safe item ownership for one agent.
//
// Ownership is represented by placement alone: claiming atomically
// relocates the item from the shared approved pool into this agent's
// in-progress area. The rename may succeed locally even while the other
// agent performs the same rename on its own unsynced replica; that
// temporary dual claim is accepted and resolved deterministically at the
// next reconciliation. There is no lease or heartbeat - a crashed agent
// leaves its items in place until Resume or an operator returns them.
type Manager struct {
	vault   *vault.Vault
	agentID string
}

// NewManager creates a claim manager for the given agent.
func NewManager(v *vault.Vault, agentID string) (*Manager, error) {
	if agentID == "" {
		return nil, ErrInvalidAgentID
	}
	for _, r := range agentID {
		if r == '/' || r == '\\' || r == '.' {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAgentID, agentID)
		}
	}
	return &Manager{vault: v, agentID: agentID}, nil
}

// AgentID returns the owning agent's identifier.
func (m *Manager) AgentID() string {
	return m.agentID
}

// claimedLoc returns this agent's in-progress area.
func (m *Manager) claimedLoc() vault.Location {
	return vault.Location{State: item.StateClaimed, Agent: m.agentID}
}

func (m *Manager) executingLoc() vault.Location {
	return vault.Location{State: item.StateExecuting, Agent: m.agentID}
}

// Claim takes exclusive ownership of an approved item by atomic
// relocation into this agent's claimed area. A vault.ErrMissing result
// means the item is no longer in the pool (taken by the other agent or
// already advanced) and is a valid outcome for the caller to skip past.
func (m *Manager) Claim(id string) (*item.Item, error) {
	return m.vault.Advance(id,
		vault.Location{State: item.StateApproved},
		m.claimedLoc(),
		m.agentID, "")
}

// Begin hands a claimed item to an executor, moving it to the agent's
// executing area.
func (m *Manager) Begin(id string) (*item.Item, error) {
	return m.vault.Advance(id, m.claimedLoc(), m.executingLoc(), m.agentID, "")
}

// Release relinquishes the claim by relocating the item onward per the
// outcome. This is the only way a claim ends on the happy path.
func (m *Manager) Release(id string, outcome Outcome, reason string) (*item.Item, error) {
	var to vault.Location
	switch outcome {
	case OutcomeDone:
		to = vault.Location{State: item.StateDone}
	case OutcomeFailed:
		to = vault.Location{State: item.StateFailed}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}
	return m.vault.Advance(id, m.executingLoc(), to, m.agentID, reason)
}

// Requeue returns a claimed item to the shared approved pool. This is
// operator recovery for stranded items, not a lifecycle transition: it
// undoes the claim relocation and records a release decision.
func (m *Manager) Requeue(id string) error {
	from := m.claimedLoc()
	it, err := m.vault.Load(id, from)
	if err != nil {
		return err
	}
	to := vault.Location{State: item.StateApproved}
	if err := m.vault.Relocate(id, from, to); err != nil {
		return err
	}
	it.Record(m.agentID, "release", "returned to pool")
	return m.vault.Update(it, to)
}

// Stranded lists the items left in this agent's in-progress areas, in
// claim order. On restart the agent re-adopts these before taking new
// work, which is the crash recovery path: idempotent re-scan instead of
// leases.
func (m *Manager) Stranded() (claimed, executing []string, err error) {
	claimed, err = m.vault.List(m.claimedLoc())
	if err != nil {
		return nil, nil, err
	}
	executing, err = m.vault.List(m.executingLoc())
	if err != nil {
		return nil, nil, err
	}
	return claimed, executing, nil
}

// Holds reports whether this agent currently holds the item in either
// in-progress area. After reconciliation a losing agent finds this false
// for an item it thought it owned, and aborts that work.
func (m *Manager) Holds(id string) bool {
	for _, loc := range []vault.Location{m.claimedLoc(), m.executingLoc()} {
		if _, err := m.vault.Load(id, loc); err == nil {
			return true
		}
	}
	return false
}
