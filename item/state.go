package item

import "fmt"

// State represents an item's position in the lifecycle. The string value
// doubles as the vault folder name for that state.
type State string

const (
	// StateNew indicates the item was just produced by an adapter.
	StateNew State = "new"

	// StateAwaitingTriage indicates the item is queued for triage.
	StateAwaitingTriage State = "triage"

	// StateAwaitingApproval indicates a human decision is required.
	StateAwaitingApproval State = "review"

	// StateApproved indicates the item is in the shared pool, ready to claim.
	StateApproved State = "approved"

	// StateRejected indicates the item will not be acted on.
	StateRejected State = "rejected"

	// StateClaimed indicates an agent holds exclusive ownership.
	StateClaimed State = "claimed"

	// StateExecuting indicates the claiming agent handed the item to an executor.
	StateExecuting State = "executing"

	// StateDone indicates the executor reported success.
	StateDone State = "done"

	// StateFailed indicates execution failed or the payload was quarantined.
	StateFailed State = "failed"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal returns true if the state ends the active lifecycle.
// Failed is not terminal: it can be re-routed to review or rejected.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateRejected
}

// AgentScoped returns true if the state's vault folder is subdivided
// per agent (the in-progress areas).
func (s State) AgentScoped() bool {
	return s == StateClaimed || s == StateExecuting
}

// Valid reports whether s is one of the canonical states.
func (s State) Valid() bool {
	_, ok := legalEdges[s]
	return ok || s == StateDone || s == StateRejected
}

// legalEdges is the central transition table. Any edge not listed here
// is rejected with ErrInvalidTransition, never silently dropped.
var legalEdges = map[State][]State{
	StateNew:              {StateAwaitingTriage},
	StateAwaitingTriage:   {StateApproved, StateRejected, StateAwaitingApproval},
	StateAwaitingApproval: {StateApproved, StateRejected},
	StateApproved:         {StateClaimed},
	StateClaimed:          {StateExecuting},
	StateExecuting:        {StateDone, StateFailed},
	StateFailed:           {StateAwaitingApproval, StateRejected},
}

// CanTransition reports whether the edge from -> to is legal.
func CanTransition(from, to State) bool {
	for _, next := range legalEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStates returns the legal target states from the given state.
func NextStates(from State) []State {
	next := legalEdges[from]
	out := make([]State, len(next))
	copy(out, next)
	return out
}

// Transition moves the item to the target state, recording one decision
// trail entry. It returns ErrInvalidTransition if the edge is not in the
// legal table.
func (i *Item) Transition(to State, actor, rationale string) error {
	if !CanTransition(i.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, i.State, to)
	}
	i.State = to
	i.Record(actor, transitionAction(to), rationale)
	return nil
}

// transitionAction names the decision trail action for a target state.
func transitionAction(to State) string {
	switch to {
	case StateAwaitingTriage:
		return "ingest"
	case StateApproved:
		return "approve"
	case StateRejected:
		return "reject"
	case StateAwaitingApproval:
		return "defer"
	case StateClaimed:
		return "claim"
	case StateExecuting:
		return "execute"
	case StateDone:
		return "complete"
	case StateFailed:
		return "fail"
	default:
		return "transition"
	}
}
