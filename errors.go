package guard

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error kind codes. Callers branch on Kind, never on message text.
const (
	KindRateLimitExceeded  = "rate_limit_exceeded"
	KindCSRFInvalid        = "csrf_invalid"
	KindValidationFailed   = "validation_failed"
	KindSuspiciousActivity = "suspicious_activity_detected"
	KindUpstreamFailure    = "upstream_failure"
	KindUnknownAction      = "unknown_action"
)

// genericDenialMessage is shown for CSRF and suspicious-activity failures.
// Deliberately uninformative: detection details must not leak to a
// potential attacker.
const genericDenialMessage = "request could not be completed"

// Error is a guard failure. Kind identifies which gate failed; the
// remaining fields carry kind-specific data.
type Error struct {
	// Kind is one of the Kind* constants.
	Kind string

	// Action is the guarded action being attempted.
	Action string

	// Message is safe to show to the end user.
	Message string

	// ResetIn is how long the caller must wait before retrying.
	// Set only for KindRateLimitExceeded.
	ResetIn time.Duration

	// Fields holds itemized validation errors.
	// Set only for KindValidationFailed.
	Fields []string

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Action, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped upstream error, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// ErrRateLimited reports that the action's window capacity is exhausted.
// The caller must wait ResetIn before retrying; the guard never retries.
func ErrRateLimited(action string, resetIn time.Duration) *Error {
	return &Error{
		Kind:    KindRateLimitExceeded,
		Action:  action,
		ResetIn: resetIn,
		Message: fmt.Sprintf("too many requests, retry in %d seconds", int(resetIn.Seconds())+1),
	}
}

// ErrCSRFInvalid reports a missing or stale request token. The caller
// must re-issue and resubmit.
func ErrCSRFInvalid(action string) *Error {
	return &Error{
		Kind:    KindCSRFInvalid,
		Action:  action,
		Message: genericDenialMessage,
	}
}

// ErrValidationFailed reports caller-correctable input problems, one entry
// per violated rule.
func ErrValidationFailed(action string, fields []string) *Error {
	return &Error{
		Kind:    KindValidationFailed,
		Action:  action,
		Fields:  fields,
		Message: strings.Join(fields, "; "),
	}
}

// ErrSuspiciousActivity reports a detector hit for callers that opted in
// to hard-fail on detection.
func ErrSuspiciousActivity(action string) *Error {
	return &Error{
		Kind:    KindSuspiciousActivity,
		Action:  action,
		Message: genericDenialMessage,
	}
}

// ErrUpstreamFailure wraps an error raised by the guarded operation
// itself. The guard does not interpret it; Unwrap returns the original
// cause intact.
func ErrUpstreamFailure(action string, cause error) *Error {
	return &Error{
		Kind:    KindUpstreamFailure,
		Action:  action,
		Message: "operation failed",
		cause:   cause,
	}
}

// ErrUnknownAction reports a call with an action outside the configured
// set. This is a programming error at the call site, not traffic.
func ErrUnknownAction(action string) *Error {
	return &Error{
		Kind:    KindUnknownAction,
		Action:  action,
		Message: fmt.Sprintf("action %q is not configured", action),
	}
}

// IsKind reports whether err is a guard Error of the given kind.
func IsKind(err error, kind string) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
