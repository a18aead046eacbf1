// Package audit provides append-only structured security event logging
// with field redaction.
//
// Every event passes through RedactDetail before it reaches a sink, so
// sensitively-named fields (passwords, tokens, keys) never leave this
// package in the clear. Recording is best-effort by contract: a sink
// failure is logged and dropped, never surfaced to the guarded operation.
package audit

import (
	"context"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"
)

// Event is a single audit record.
type Event struct {
	// ID is a unique event identifier for correlation. Assigned by the
	// logger if empty.
	ID string

	// Timestamp is when the event was recorded. Assigned by the logger.
	Timestamp time.Time

	// Category classifies the event source.
	Category Category

	// Action names what happened, e.g. "node_creation_success".
	Action string

	// ActorID identifies the caller, if known.
	ActorID string

	// Detail carries event-specific fields. Redacted before emission.
	Detail map[string]any
}

// Sink receives redacted audit events. The default sink writes to slog;
// production deployments plug in a remote collector. No acknowledgement or
// replay contract is required.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// SlogSink emits events as structured log records. Suitable as the
// development sink.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink writing to the given logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Emit writes the event as a single log record.
func (s *SlogSink) Emit(ctx context.Context, event Event) error {
	s.logger.InfoContext(ctx, "security_audit",
		"event_id", event.ID,
		"category", string(event.Category),
		"action", event.Action,
		"actor_id", event.ActorID,
		"detail", event.Detail,
		"timestamp", event.Timestamp,
	)
	return nil
}

// Config holds audit logger configuration.
type Config struct {
	// Enabled controls whether events are recorded at all.
	Enabled bool

	// Sink receives redacted events. Defaults to a SlogSink.
	Sink Sink

	// HashActorIDs replaces actor identifiers with a short hash before
	// emission, for deployments where raw identifiers count as PII.
	HashActorIDs bool

	// MaxEventsPerSecond caps sink throughput. Events beyond the cap are
	// counted and dropped rather than blocking the guarded call.
	// Zero disables flood control.
	MaxEventsPerSecond int
}

// Logger records redacted audit events to a sink.
type Logger struct {
	cfg     Config
	sink    Sink
	logger  *slog.Logger
	limiter *rate.Limiter
	now     func() time.Time

	totalRecorded atomic.Int64
	totalDropped  atomic.Int64
}

// NewLogger creates an audit logger. The slog logger is used for the
// logger's own diagnostics, not for events; pass a Sink in cfg to control
// where events go.
func NewLogger(cfg Config, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = NewSlogSink(logger)
	}

	l := &Logger{
		cfg:    cfg,
		sink:   cfg.Sink,
		logger: logger,
		now:    time.Now,
	}
	if cfg.MaxEventsPerSecond > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(cfg.MaxEventsPerSecond), cfg.MaxEventsPerSecond)
	}
	return l
}

// Record redacts and emits an event. Never fails: disabled loggers and
// sink errors are absorbed, flood-control drops are counted.
func (l *Logger) Record(ctx context.Context, event Event) {
	if !l.cfg.Enabled {
		return
	}

	if l.limiter != nil && !l.limiter.Allow() {
		l.totalDropped.Add(1)
		return
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.Timestamp = l.now()
	event.Detail = RedactDetail(event.Detail)
	if l.cfg.HashActorIDs && event.ActorID != "" {
		event.ActorID = hashActorID(event.ActorID)
	}

	if err := l.sink.Emit(ctx, event); err != nil {
		// Best-effort path: an audit write failure must never fail the
		// guarded operation.
		l.totalDropped.Add(1)
		l.logger.Warn("Audit sink emit failed",
			"event_id", event.ID,
			"action", event.Action,
			"error", err)
		return
	}

	l.totalRecorded.Add(1)
}

// Recorded returns the number of events successfully emitted.
func (l *Logger) Recorded() int64 {
	return l.totalRecorded.Load()
}

// Dropped returns the number of events lost to flood control or sink
// failures.
func (l *Logger) Dropped() int64 {
	return l.totalDropped.Load()
}

// hashActorID returns a short stable hash of an actor identifier so events
// remain correlatable without carrying the raw identifier.
func hashActorID(actorID string) string {
	sum := blake2b.Sum256([]byte(actorID))
	return hex.EncodeToString(sum[:])[:16]
}
