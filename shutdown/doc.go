// Package shutdown coordinates orderly process stop in phases.
//
// Handlers register with a phase number; lower phases stop first and
// handlers sharing a phase stop concurrently. The agent uses phase 1
// for the final envelope drain and phase 2 for external connections,
// so the status artifact is settled before the notifier goes away.
package shutdown
