// Package reconcile implements the periodic sync pass between two vault
// replicas sharing a version-controlled history.
//
// # Protocol
//
// Each pass commits local changes, integrates remote work (fast-forward
// when possible, three-way merge otherwise), repairs any invariant the
// merge broke, and publishes. A rejected publish means the other agent
// moved first: the pass integrates again and retries a bounded number
// of times, then gives up until the next cycle. The history is never
// force-overwritten.
//
// # Double-claims
//
// Both agents may claim the same item from their unsynced replicas; the
// union merge then shows the item in two in-progress areas. The claim
// with the earlier decision timestamp wins, lexicographically smaller
// agent ID on a tie. The losing copy is removed and a conflict audit
// event recorded; the losing agent notices the disappearance on its own
// next pass and abandons that work.
//
// # Implementations
//
// GitHistory shells out to a git binary against a shared remote.
// MemoryHistory pairs replicas through an in-process MemoryRemote and
// exercises the same divergence protocol in tests.
package reconcile
