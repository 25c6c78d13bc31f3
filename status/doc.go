// Package status maintains the shared status artifact under a strict
// single-writer discipline.
//
// # Ownership
//
// Exactly one agent holds the Writer. Every other agent proposes changes
// by appending Envelopes to the Queue, a folder of one-file-per-update
// JSON records inside the vault. The writer periodically drains the
// queue, folding each envelope into the artifact and consuming it.
// Write-write conflicts on the artifact are impossible by construction.
//
// # Folding
//
// Updates are content-addressable, not positional. Each envelope names
// an item ID; the artifact carries one marker-delimited block per item.
// Folding replaces the block in place when present, otherwise inserts
// it under the envelope's section. Applying the same envelope twice
// leaves the artifact unchanged, so a crash between apply and consume
// is harmless.
package status
