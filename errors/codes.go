package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: source API timeouts, temporary classifier unavailability.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: malformed payloads, illegal lifecycle transitions.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates resource exhaustion or quota issues.
	// Examples: source API rate limiting, classifier quota exhausted.
	CategoryResource ErrorCategory = "resource"

	// CategoryProtocol indicates expected coordination outcomes that are
	// surfaced as errors for control flow but are not failures.
	// Examples: a claim lost to the other agent at reconciliation.
	CategoryProtocol ErrorCategory = "protocol"

	// CategoryInternal indicates unexpected errors, bugs, or system failures.
	// Examples: corrupt item records, invariant violations in the vault.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for the coordination failure taxonomy.
const (
	// Transient errors
	ErrCodeTransientSource ErrorCode = "TRANSIENT_SOURCE" // Source temporarily unreachable
	ErrCodeTimeout         ErrorCode = "TIMEOUT"          // Operation timed out
	ErrCodeUnavailable     ErrorCode = "UNAVAILABLE"      // Dependency temporarily unavailable
	ErrCodeSyncDiverged    ErrorCode = "SYNC_DIVERGED"    // Replicas diverged, retry next cycle

	// Permanent errors
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"          // Item or record does not exist
	ErrCodeValidation        ErrorCode = "VALIDATION"         // Payload failed validation
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION" // Lifecycle edge not in legal table
	ErrCodeAuthFailed        ErrorCode = "AUTH_FAILED"        // Source credentials rejected
	ErrCodeAlreadyExists     ErrorCode = "ALREADY_EXISTS"     // Item with this identity exists
	ErrCodeCanceled          ErrorCode = "CANCELED"           // Operation was canceled

	// Resource errors
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED" // Source or classifier rate limit hit

	// Protocol outcomes
	ErrCodeClaimConflict ErrorCode = "CLAIM_CONFLICT" // Claim lost to the other agent
	ErrCodeClaimRevoked  ErrorCode = "CLAIM_REVOKED"  // Item reassigned during processing

	// Executor errors
	ErrCodeExecutorFailed ErrorCode = "EXECUTOR_FAILED" // Executor reported failure

	// Internal errors
	ErrCodeInternal   ErrorCode = "INTERNAL"   // Unexpected internal error
	ErrCodeCorruption ErrorCode = "CORRUPTION" // Record corruption detected
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTransientSource, ErrCodeTimeout, ErrCodeUnavailable, ErrCodeSyncDiverged:
		return CategoryTransient

	case ErrCodeNotFound, ErrCodeValidation, ErrCodeInvalidTransition,
		ErrCodeAuthFailed, ErrCodeAlreadyExists, ErrCodeCanceled,
		ErrCodeExecutorFailed:
		return CategoryPermanent

	case ErrCodeRateLimited:
		return CategoryResource

	case ErrCodeClaimConflict, ErrCodeClaimRevoked:
		return CategoryProtocol

	case ErrCodeInternal, ErrCodeCorruption:
		return CategoryInternal

	default:
		return CategoryInternal
	}
}

// DefaultRetryable returns whether this error code is typically retryable.
func (c ErrorCode) DefaultRetryable() bool {
	return c.DefaultCategory().IsRetryable()
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[ErrorCode]string{
	ErrCodeTransientSource:   "source temporarily unreachable",
	ErrCodeTimeout:           "operation timed out",
	ErrCodeUnavailable:       "dependency temporarily unavailable",
	ErrCodeSyncDiverged:      "replicas diverged",
	ErrCodeNotFound:          "item not found",
	ErrCodeValidation:        "payload failed validation",
	ErrCodeInvalidTransition: "lifecycle transition not allowed",
	ErrCodeAuthFailed:        "authentication failed",
	ErrCodeAlreadyExists:     "item already exists",
	ErrCodeCanceled:          "operation canceled",
	ErrCodeRateLimited:       "rate limit exceeded",
	ErrCodeClaimConflict:     "claim lost to other agent",
	ErrCodeClaimRevoked:      "claim revoked during processing",
	ErrCodeExecutorFailed:    "executor reported failure",
	ErrCodeInternal:          "internal error",
	ErrCodeCorruption:        "record corruption detected",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
