package audit

// Category classifies an audit event by the subsystem that produced it.
type Category string

// Event categories.
const (
	// CategoryAuth covers authentication-related events.
	CategoryAuth Category = "auth"

	// CategoryAccess covers guarded operations and detector hits.
	CategoryAccess Category = "access"

	// CategoryInput covers input handling events.
	CategoryInput Category = "input"

	// CategoryRateLimit covers admission-control decisions.
	CategoryRateLimit Category = "rate_limit"

	// CategoryCSRF covers token validation outcomes.
	CategoryCSRF Category = "csrf"
)

// Event action constants. These ensure consistency across the codebase and
// prevent typos when logging security-relevant events.
const (
	// ActionRateLimitExceeded is logged when a caller exceeds an action's window capacity.
	ActionRateLimitExceeded = "rate_limit_exceeded"

	// ActionCSRFValidationFailed is logged when a request carries a missing or stale token.
	// Always recorded: a failed token check is a potential forgery signal.
	ActionCSRFValidationFailed = "csrf_validation_failed"

	// ActionSuspiciousActivity is logged when a detector signature matches
	// an identifier or payload.
	ActionSuspiciousActivity = "suspicious_activity_detected"
)

// SuccessAction returns the audit action name recorded when a guarded
// operation completes, e.g. "node_creation_success".
func SuccessAction(action string) string {
	return action + "_success"
}

// FailureAction returns the audit action name recorded when a guarded
// operation fails, e.g. "node_creation_failed".
func FailureAction(action string) string {
	return action + "_failed"
}
