package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the guard library.
type Metrics struct {
	// Admission metrics
	ChecksTotal          metric.Int64Counter
	DenialsTotal         metric.Int64Counter
	OperationDuration    metric.Float64Histogram
	LimiterActiveEntries metric.Int64ObservableGauge

	// Detection metrics
	SuspiciousDetected metric.Int64Counter

	// Audit metrics, observed from the audit logger's cumulative
	// counters on each collection.
	AuditEventsTotal   metric.Int64ObservableCounter
	AuditEventsDropped metric.Int64ObservableCounter
}

// newMetrics creates and registers all metric instruments.
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	admission := inst.Meter("admission")
	detect := inst.Meter("detect")
	auditMeter := inst.Meter("audit")

	var err error
	m.ChecksTotal, err = admission.Int64Counter(
		"guard.checks.total",
		metric.WithDescription("Total number of guarded calls checked"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create checks.total counter: %w", err)
	}

	m.DenialsTotal, err = admission.Int64Counter(
		"guard.denials.total",
		metric.WithDescription("Guarded calls denied before the operation ran, by reason"),
		metric.WithUnit("{denial}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create denials.total counter: %w", err)
	}

	m.OperationDuration, err = admission.Float64Histogram(
		"guard.operation.duration",
		metric.WithDescription("Wrapped operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation.duration histogram: %w", err)
	}

	m.LimiterActiveEntries, err = admission.Int64ObservableGauge(
		"guard.ratelimit.active_entries",
		metric.WithDescription("Identifiers currently tracked by the rate limiters"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.active_entries gauge: %w", err)
	}

	m.SuspiciousDetected, err = detect.Int64Counter(
		"guard.suspicious.detected",
		metric.WithDescription("Suspicious activity signature hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create suspicious.detected counter: %w", err)
	}

	m.AuditEventsTotal, err = auditMeter.Int64ObservableCounter(
		"guard.audit.events.total",
		metric.WithDescription("Audit events emitted to the sink"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events.total counter: %w", err)
	}

	m.AuditEventsDropped, err = auditMeter.Int64ObservableCounter(
		"guard.audit.events.dropped",
		metric.WithDescription("Audit events lost to flood control or sink failures"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events.dropped counter: %w", err)
	}

	return m, nil
}

// RecordCheck records one guarded call for an action (nil-safe).
func (m *Metrics) RecordCheck(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.ChecksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrAction, action),
	))
}

// RecordDenial records a pre-operation denial with its reason (nil-safe).
func (m *Metrics) RecordDenial(ctx context.Context, action, reason string) {
	if m == nil {
		return
	}
	m.DenialsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrAction, action),
		attribute.String(AttrDenialReason, reason),
	))
}

// RecordOperationDuration records how long the wrapped operation ran, in
// milliseconds (nil-safe).
func (m *Metrics) RecordOperationDuration(ctx context.Context, action string, ms float64, succeeded bool) {
	if m == nil {
		return
	}
	m.OperationDuration.Record(ctx, ms, metric.WithAttributes(
		attribute.String(AttrAction, action),
		attribute.Bool(AttrOperationOK, succeeded),
	))
}

// RecordSuspicious records a detector hit (nil-safe).
func (m *Metrics) RecordSuspicious(ctx context.Context, action, signature string) {
	if m == nil {
		return
	}
	m.SuspiciousDetected.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrAction, action),
		attribute.String(AttrSignature, signature),
	))
}
