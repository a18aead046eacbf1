package guard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/mindgraph/guard/audit"
	"github.com/mindgraph/guard/csrf"
	"github.com/mindgraph/guard/detect"
	"github.com/mindgraph/guard/instrumentation"
	"github.com/mindgraph/guard/ratelimit"
	"github.com/mindgraph/guard/validate"
)

// Operation is the externally-owned business call executed once every
// gate passes. The guard imposes no timeout; cancellation is the
// operation's own concern via ctx.
type Operation func(ctx context.Context) (any, error)

// Request carries the caller-specific inputs of one guarded call.
type Request struct {
	// ActorID identifies the caller. Empty means anonymous.
	ActorID string

	// SessionID scopes the CSRF token. The empty string is a valid
	// default session.
	SessionID string

	// CSRFToken is the candidate token supplied by the caller. Checked
	// only when Options.RequireCSRF is set.
	CSRFToken string

	// Payload is the raw action payload inspected by the suspicious
	// activity detector. Detection runs on the unsanitized string so
	// injection attempts are seen before any stripping.
	Payload string

	// Fields, when non-nil, are validated before any other gate runs.
	Fields *validate.Input
}

// Options enumerates the recognized per-call flags.
type Options struct {
	// RequireCSRF validates the request token before the operation runs.
	RequireCSRF bool

	// DetectSuspicious runs the signature detector over the identifier
	// and payload. Hits are always audited.
	DetectSuspicious bool

	// FailOnSuspicious aborts the call on a detector hit. Without it
	// detection is advisory only: recorded, not blocking.
	FailOnSuspicious bool
}

// Guard owns all admission-control state: the per-action limiter pool,
// the CSRF token store, the audit logger and the detector. Construct one
// per process with New, inject it at every call site, and Stop it on
// shutdown. There are no package-level singletons, so tests construct
// isolated instances.
type Guard struct {
	cfg      Config
	logger   *slog.Logger
	limiters *ratelimit.Pool
	csrf     *csrf.Store
	auditLog *audit.Logger
	detector *detect.Detector
	inst     *instrumentation.Instrumentation
	stopOnce sync.Once
}

// New creates a Guard from cfg, applying defaults for unset values.
func New(cfg Config) (*Guard, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limits := cfg.RateLimit.Limits
	if len(limits) == 0 {
		limits = DefaultLimits()
	}

	auditLog := audit.NewLogger(cfg.Audit, logger)

	detector, err := detect.New(cfg.Detector.ExtraSignatures, auditLog, logger)
	if err != nil {
		return nil, err
	}

	g := &Guard{
		cfg:      cfg,
		logger:   logger,
		limiters: ratelimit.NewPoolWithConfig(limits, cfg.RateLimit.CleanupInterval, logger),
		csrf:     csrf.NewStoreWithConfig(cfg.CSRF.SessionTTL, cfg.CSRF.CleanupInterval, logger),
		auditLog: auditLog,
		detector: detector,
		inst:     cfg.Instrumentation,
	}

	if g.inst != nil {
		if err := g.inst.RegisterLimiterEntriesCallback(g.activeLimiterEntries); err != nil {
			logger.Warn("Failed to register limiter entries gauge", "error", err)
		}
		if err := g.inst.RegisterAuditCountersCallback(func() (int64, int64) {
			return g.auditLog.Recorded(), g.auditLog.Dropped()
		}); err != nil {
			logger.Warn("Failed to register audit event counters", "error", err)
		}
	}

	return g, nil
}

// Stop terminates the background cleanup goroutines. Safe to call
// multiple times.
func (g *Guard) Stop() {
	g.stopOnce.Do(func() {
		g.limiters.Stop()
		g.csrf.Stop()
	})
}

// Do runs the admission gates in order and, if all pass, invokes op.
// Gates short-circuit: nothing after a failed gate executes and op never
// runs unless every gate passed. The returned error is always a *Error
// whose Kind names the failed gate; upstream failures wrap the original
// cause unchanged.
func (g *Guard) Do(ctx context.Context, action string, req Request, opts Options, op Operation) (any, error) {
	metrics := g.metrics()
	metrics.RecordCheck(ctx, action)

	var span trace.Span
	if g.inst != nil {
		ctx, span = g.inst.Tracer("admission").Start(ctx, "guard.do")
		defer span.End()
	}

	identifier := req.ActorID
	if identifier == "" {
		identifier = AnonymousIdentifier
	}
	instrumentation.AddGuardAttributes(span, action, identifier)

	limiter, ok := g.limiters.Limiter(action)
	if !ok {
		err := ErrUnknownAction(action)
		instrumentation.RecordError(span, err)
		return nil, err
	}

	// Validation runs before admission so callers get every field error
	// at once even when they are about to be rate limited anyway.
	// Validation failures are caller-correctable input problems, not
	// security events: they are returned, never audited.
	if req.Fields != nil {
		if res := validate.Validate(*req.Fields); !res.OK() {
			metrics.RecordDenial(ctx, action, KindValidationFailed)
			err := ErrValidationFailed(action, res.Errors)
			instrumentation.RecordError(span, err)
			return nil, err
		}
	}

	if !limiter.Allow(identifier) {
		resetIn := limiter.ResetIn(identifier)
		g.auditLog.Record(ctx, audit.Event{
			Category: audit.CategoryRateLimit,
			Action:   audit.ActionRateLimitExceeded,
			ActorID:  identifier,
			Detail: map[string]any{
				"guarded_action": action,
				"reset_in_ms":    resetIn.Milliseconds(),
			},
		})
		metrics.RecordDenial(ctx, action, KindRateLimitExceeded)
		err := ErrRateLimited(action, resetIn)
		instrumentation.RecordError(span, err)
		return nil, err
	}

	if opts.RequireCSRF && !g.csrf.Validate(req.SessionID, req.CSRFToken) {
		// Always audited: a failed token check is a potential forgery
		// signal even when it is just a stale tab.
		g.auditLog.Record(ctx, audit.Event{
			Category: audit.CategoryCSRF,
			Action:   audit.ActionCSRFValidationFailed,
			ActorID:  identifier,
			// The key must not contain "token" or redaction blanks the
			// value before it reaches the sink.
			Detail: map[string]any{
				"guarded_action":     action,
				"candidate_supplied": req.CSRFToken != "",
			},
		})
		metrics.RecordDenial(ctx, action, KindCSRFInvalid)
		err := ErrCSRFInvalid(action)
		instrumentation.RecordError(span, err)
		return nil, err
	}

	if opts.DetectSuspicious {
		if hit, signature := g.detector.Check(ctx, identifier, req.Payload); hit {
			metrics.RecordSuspicious(ctx, action, signature)
			if opts.FailOnSuspicious {
				metrics.RecordDenial(ctx, action, KindSuspiciousActivity)
				err := ErrSuspiciousActivity(action)
				instrumentation.RecordError(span, err)
				return nil, err
			}
		}
	}

	start := time.Now()
	result, opErr := op(ctx)
	elapsed := time.Since(start)
	metrics.RecordOperationDuration(ctx, action, float64(elapsed.Microseconds())/1000.0, opErr == nil)

	if opErr != nil {
		g.auditLog.Record(ctx, audit.Event{
			Category: audit.CategoryAccess,
			Action:   audit.FailureAction(action),
			ActorID:  identifier,
			Detail: map[string]any{
				"error": opErr.Error(),
			},
		})
		err := ErrUpstreamFailure(action, opErr)
		instrumentation.RecordError(span, err)
		return nil, err
	}

	g.auditLog.Record(ctx, audit.Event{
		Category: audit.CategoryAccess,
		Action:   audit.SuccessAction(action),
		ActorID:  identifier,
	})
	instrumentation.SetSpanSuccess(span)
	return result, nil
}

// IssueCSRFToken generates a new token for the session, invalidating any
// previous one. The caller attaches it to outgoing requests; transport is
// the caller's concern.
func (g *Guard) IssueCSRFToken(sessionID string) string {
	return g.csrf.Issue(sessionID)
}

// CurrentCSRFToken returns the session's active token, if any.
func (g *Guard) CurrentCSRFToken(sessionID string) (string, bool) {
	return g.csrf.Current(sessionID)
}

// ValidateCSRFToken reports whether candidate is the session's active
// token.
func (g *Guard) ValidateCSRFToken(sessionID, candidate string) bool {
	return g.csrf.Validate(sessionID, candidate)
}

// EndSession drops the session's CSRF token.
func (g *Guard) EndSession(sessionID string) {
	g.csrf.End(sessionID)
}

// RateLimitStats returns per-action limiter statistics for monitoring.
func (g *Guard) RateLimitStats() map[string]ratelimit.Stats {
	return g.limiters.Stats()
}

// Audit returns the guard's audit logger so collaborating subsystems can
// record their own events through the same redacting pipeline.
func (g *Guard) Audit() *audit.Logger {
	return g.auditLog
}

func (g *Guard) metrics() *instrumentation.Metrics {
	if g.inst == nil {
		return nil
	}
	return g.inst.Metrics()
}

func (g *Guard) activeLimiterEntries() int64 {
	var total int64
	for _, s := range g.limiters.Stats() {
		total += s.ActiveEntries
	}
	return total
}
