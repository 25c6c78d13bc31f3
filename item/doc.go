// Package item defines the unit of work tracked by tandem and its
// lifecycle rules.
//
// # Overview
//
// An Item is created once by an ingestion adapter, flows through triage
// and (possibly) human review into the shared approved pool, is claimed
// by exactly one agent, executed, and ends in done, rejected or failed.
// The payload is immutable after creation; only the state and the
// append-only decision trail change.
//
// # Lifecycle
//
// The legal transition table is central and closed:
//
//	new -> triage
//	triage -> approved | rejected | review
//	review -> approved | rejected
//	approved -> claimed
//	claimed -> executing
//	executing -> done | failed
//	failed -> review | rejected
//
// Any other edge is rejected with ErrInvalidTransition. Every transition
// appends one decision trail entry.
//
// # Record Format
//
// Items are stored as text documents with a YAML front-matter header
// block over an opaque body:
//
//	---
//	id: mail-3f9a21c04b7d
//	kind: message
//	domain: business
//	state: approved
//	...
//	---
//
//	(payload body)
//
// Header keys are the only contractually stable surface. The header's
// state field is a cached copy: folder membership in the vault is
// authoritative on mismatch.
package item
