package agent

import (
	"context"

	"github.com/vinayprograms/tandem/claim"
	"github.com/vinayprograms/tandem/item"
)

// Adapter translates one external event source into item records. Each
// adapter runs isolated inside the ingestion loop: its failure is
// logged and retried per the error taxonomy without blocking any other
// adapter.
type Adapter interface {
	// Ingest returns the source's new items since the last call.
	// Returning an item that already exists in the vault is fine;
	// ingestion is idempotent on item identity.
	Ingest(ctx context.Context) ([]*item.Item, error)
}

// Executor performs the final side effect for one item kind. The item
// is already claimed and in this agent's executing area when Execute is
// called.
type Executor interface {
	// Execute performs the side effect and reports the outcome.
	// An error becomes the failure reason on the item's trail.
	Execute(ctx context.Context, it *item.Item) (claim.Outcome, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, it *item.Item) (claim.Outcome, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, it *item.Item) (claim.Outcome, error) {
	return f(ctx, it)
}
