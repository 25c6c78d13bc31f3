// Package triage classifies new items: which domain they belong to and
// whether they proceed automatically, get rejected, or await a human.
//
// # Overview
//
// Domain resolution is purely local: the item's text and sender metadata
// are scored against the personal and business keyword/sender rule sets
// from triage.toml; zero or tied scores fall back to the shared domain.
//
// Disposition is a layered policy:
//
//  1. Hard overrides run first and entirely in-process. An amount above
//     the configured threshold forces review or rejection before any
//     network call, so a classifier outage can never bypass a safety
//     limit.
//  2. A pluggable Classifier (normally ModelClassifier over an
//     llm.Provider) returns approve, reject or manual plus a rationale.
//  3. Any classifier failure defaults to manual review. Nothing is ever
//     silently auto-approved on error.
//
// Every disposition, whether policy- or classifier-derived, carries a
// rationale string that ends up in the item's decision trail.
package triage
