package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span and metric attribute keys.
//
// Never attach actual sensitive values (CSRF tokens, passwords, raw
// payloads) to traces or metrics. Only metadata such as action names,
// denial reasons and signature names belongs here: traces are persisted,
// replicated, and readable by a wider audience than the request path.
const (
	// Admission attributes
	AttrAction       = "guard.action"        // guarded action name
	AttrActorID      = "guard.actor_id"      // caller identifier (non-secret)
	AttrDenialReason = "guard.denial_reason" // which gate denied the call
	AttrOperationOK  = "guard.operation_ok"  // whether the wrapped operation succeeded
	AttrResetIn      = "guard.reset_in_ms"   // rate limit window remainder

	// Detection attributes
	AttrSignature = "guard.signature" // matched detector signature name

	// Audit attributes
	AttrAuditCategory = "guard.audit.category"
	AttrAuditAction   = "guard.audit.action"
)

// RecordError records an error on a span with proper status codes (nil-safe).
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe).
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe).
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddGuardAttributes adds common guarded-call attributes to a span (nil-safe).
func AddGuardAttributes(span trace.Span, action, actorID string) {
	if action != "" {
		SetSpanAttributes(span, attribute.String(AttrAction, action))
	}
	if actorID != "" {
		SetSpanAttributes(span, attribute.String(AttrActorID, actorID))
	}
}
