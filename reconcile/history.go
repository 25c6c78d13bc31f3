package reconcile

import (
	"context"
	"errors"
	"time"
)

// Common errors.
var (
	// ErrDiverged indicates the remote history moved past the local
	// replica; the caller must integrate remote changes before
	// publishing again.
	ErrDiverged = errors.New("remote history diverged")

	// ErrRetriesExhausted indicates a pass could not publish within the
	// configured retry budget. The pass is abandoned and retried whole
	// on the next cycle; the history is never force-overwritten.
	ErrRetriesExhausted = errors.New("publish retries exhausted")
)

// History is the version-controlled replication layer beneath one vault
// replica. The reconciler drives it through the fixed push/pull
// protocol: commit local changes, publish, and on divergence integrate
// the remote side first.
type History interface {
	// Commit records all local vault changes as one history point.
	// Returns false when there is nothing to record.
	Commit(ctx context.Context, message string) (bool, error)

	// Publish makes local history points visible to the other replica.
	// Returns ErrDiverged when the remote moved first.
	Publish(ctx context.Context) error

	// Integrate folds remote history points into the local replica,
	// fast-forwarding when possible and three-way merging otherwise.
	Integrate(ctx context.Context) error

	// Ahead reports whether local history points exist that the remote
	// has not seen. Covers commits left behind by a failed publish.
	Ahead(ctx context.Context) (bool, error)

	// Head identifies the current local history point.
	Head(ctx context.Context) (string, error)

	// Modified reports whether the given path (relative to the replica
	// root) carries uncommitted local changes.
	Modified(ctx context.Context, path string) (bool, error)

	// Restore discards uncommitted local changes to the given path.
	Restore(ctx context.Context, path string) error
}

// Config holds reconciler settings.
type Config struct {
	// AgentID identifies this replica's agent in commits and audit
	// records.
	AgentID string

	// Writer marks the status-artifact writer. The non-writer never
	// carries direct status edits into history; any drift is restored
	// and must travel as an envelope instead.
	Writer bool

	// MaxRetries bounds publish attempts per pass.
	// Default: 3
	MaxRetries int

	// RetryBackoff is the wait between publish attempts.
	// Default: 2s
	RetryBackoff time.Duration
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		RetryBackoff: 2 * time.Second,
	}
}
