// Package agent wires the coordination packages into a running agent
// process.
//
// # Loops
//
// An agent is a set of single-threaded polling loops over one vault
// replica: ingestion (when adapters are registered), triage, execution
// (when executors are registered), reconciliation (when a history is
// configured) and, on the writer, the envelope drain. Each loop runs
// on its own interval and fails in isolation; a bad pass is logged and
// retried on the next cycle, never crashing the process.
//
// # Roles
//
// Exactly one agent runs with Writer set. It is the only process that
// rewrites the status artifact; every other agent proposes status
// changes through envelopes that ride the next sync. Both roles claim
// and execute work the same way.
//
// # Run-once
//
// Once executes a single pass of every loop in pipeline order. It is
// the cron-style surface and what the tests drive: repeated calls are
// idempotent because every pass re-derives its work from folder
// membership.
package agent
