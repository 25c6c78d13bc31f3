// Package claim provides exclusive, crash-safe item ownership on top of
// a storage medium that only offers atomic local rename plus periodic,
// batched cross-replica sync.
//
// # Overview
//
// A claim is not a persisted entity. It is represented implicitly by an
// item's placement inside an agent-scoped in-progress area:
//
//	approved/           the shared pool
//	claimed/<agent>/    claimed, not yet executing
//	executing/<agent>/  handed to an executor
//
// Claim acquires by atomically relocating the item out of the pool;
// Release relocates it onward per the executor's outcome. Because the
// two agents see each other's state only eventually, both may claim the
// same item on their own replicas; that dual claim is tolerated and
// resolved deterministically by the reconciler, and a losing agent
// discovers the loss as a missing file (Holds returns false).
//
// # Crash Safety
//
// There is no heartbeat or lease. A crashed agent leaves its items in
// place; on restart, Stranded lists them for re-adoption, and an
// operator can Requeue anything that should go back to the pool. This
// favors simplicity and human recoverability over automatic expiry.
package claim
