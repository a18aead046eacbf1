// Package instrumentation provides OpenTelemetry metrics and tracing for
// the guard library. Instrumentation is optional: when disabled (or not
// configured at all) every instrument is backed by a no-op provider with
// zero overhead.
package instrumentation

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceVersion is used when no version is provided.
	DefaultServiceVersion = "unknown"
)

// Config holds instrumentation configuration.
type Config struct {
	// ServiceName identifies the embedding service.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Enabled attaches instruments to the globally registered
	// OpenTelemetry providers, so whatever exporter the embedding
	// application installed receives guard telemetry. When false, no-op
	// providers are used for zero overhead.
	Enabled bool

	// Resource allows custom resource attributes. If nil, a default
	// resource is created from service name and version.
	Resource *resource.Resource
}

// Instrumentation provides OpenTelemetry instrumentation components for
// the guard.
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	metrics *Metrics

	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates a new instrumentation instance.
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = "guard"
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}

	var res *resource.Resource
	var err error
	if config.Resource != nil {
		res = config.Resource
	} else {
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:   config,
		resource: res,
	}

	if config.Enabled {
		inst.meterProvider = otel.GetMeterProvider()
		inst.tracerProvider = otel.GetTracerProvider()
	} else {
		inst.meterProvider = noop.NewMeterProvider()
		inst.tracerProvider = tracenoop.NewTracerProvider()
	}

	inst.metrics, err = newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return inst, nil
}

// Shutdown gracefully shuts down all instrumentation providers. Safe to
// call multiple times.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var shutdownErr error

	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})

	return shutdownErr
}

// Meter returns a named meter for the given scope. Scopes are layer names
// like "admission", "audit", "detect".
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter("github.com/mindgraph/guard/" + scope)
}

// Tracer returns a named tracer for the given scope.
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer("github.com/mindgraph/guard/" + scope)
}

// Metrics returns the metrics holder for recording metric values.
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// TracerProvider returns the underlying tracer provider.
func (i *Instrumentation) TracerProvider() trace.TracerProvider {
	return i.tracerProvider
}

// MeterProvider returns the underlying meter provider.
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}

// EntriesCallback reports the current number of tracked identifiers for
// one action's limiter.
type EntriesCallback func() int64

// AuditCountersCallback reports the cumulative number of audit events
// emitted and dropped.
type AuditCountersCallback func() (recorded, dropped int64)

// RegisterLimiterEntriesCallback registers an observable gauge callback
// reporting active rate limiter entries, so dashboards can watch limiter
// memory without polling.
func (i *Instrumentation) RegisterLimiterEntriesCallback(cb EntriesCallback) error {
	if i.meterProvider == nil {
		return fmt.Errorf("meter provider not initialized")
	}

	meter := i.Meter("admission")
	_, err := meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			if cb != nil {
				observer.ObserveInt64(i.metrics.LimiterActiveEntries, cb())
			}
			return nil
		},
		i.metrics.LimiterActiveEntries,
	)
	return err
}

// RegisterAuditCountersCallback registers an observable callback feeding
// the audit event counters from the audit logger's own totals, so the
// metric surface stays consistent with Recorded()/Dropped() without a
// second count on the hot path.
func (i *Instrumentation) RegisterAuditCountersCallback(cb AuditCountersCallback) error {
	if i.meterProvider == nil {
		return fmt.Errorf("meter provider not initialized")
	}

	meter := i.Meter("audit")
	_, err := meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			if cb != nil {
				recorded, dropped := cb()
				observer.ObserveInt64(i.metrics.AuditEventsTotal, recorded)
				observer.ObserveInt64(i.metrics.AuditEventsDropped, dropped)
			}
			return nil
		},
		i.metrics.AuditEventsTotal,
		i.metrics.AuditEventsDropped,
	)
	return err
}
