// Package errors provides the structured error taxonomy for tandem's
// coordination loops. It defines the error codes and categories that the
// polling loops use to choose between retry with backoff, longer fixed
// backoff, quarantine, graceful abort, and operator escalation.
//
// # Error Categories
//
// Errors are classified into five categories:
//
//   - Transient: Temporary failures where retry may succeed (source timeouts, etc.)
//   - Permanent: Failures where retry will not help (validation, auth, etc.)
//   - Resource: Resource exhaustion issues (rate limits, quotas)
//   - Protocol: Expected coordination outcomes (a claim lost at reconciliation)
//   - Internal: Unexpected errors indicating bugs or corrupt records
//
// # Error Codes
//
// Each error has a specific code that identifies the type of failure:
//
//   - TRANSIENT_SOURCE: Source temporarily unreachable, retried with backoff
//   - AUTH_FAILED: Credentials rejected, fatal for that adapter
//   - RATE_LIMITED: Rate limit hit, longer fixed backoff then auto-resume
//   - VALIDATION: Payload rejected, item quarantined with payload attached
//   - CLAIM_CONFLICT: Claim lost to the other agent, loser aborts gracefully
//   - EXECUTOR_FAILED: Executor reported failure, item kept for manual retry
//   - And more...
//
// # Usage
//
// Create a new error:
//
//	err := errors.TransientSource("imap fetch failed", errors.WithOrigin("mail"))
//
// Wrap an existing error with context:
//
//	wrapped := errors.Wrap(err, "ingesting item")
//
// Check if an error is retryable:
//
//	if errors.IsRetryable(err) {
//	    // back off and retry
//	}
//
// # JSON Serialization
//
// All errors serialize to JSON so they can be attached to operator error
// items and audit records:
//
//	data, err := json.Marshal(coordErr)
package errors
