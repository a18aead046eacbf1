// Package guard is the admission-control and request-integrity layer for
// the knowledge graph: every state-mutating operation (node and
// relationship creation, uploads, search, login) passes through a guarded
// call before any real work happens.
//
// A guarded call runs a fixed gate sequence, short-circuiting on the
// first failure:
//
//  1. field validation (when fields are supplied)
//  2. per-action, per-caller fixed-window rate limiting
//  3. CSRF token validation (opt-in per call)
//  4. suspicious-activity detection (opt-in, advisory by default)
//  5. the wrapped business operation
//  6. audit logging of the outcome
//
// The wrapped operation is never invoked if a gate fails, and audit
// writes are best-effort: they can never fail the call.
//
// # Usage
//
//	g, err := guard.New(guard.Config{
//	    Audit: audit.Config{Enabled: true},
//	})
//	if err != nil {
//	    return err
//	}
//	defer g.Stop()
//
//	token := g.IssueCSRFToken(sessionID)
//
//	result, err := g.Do(ctx, guard.ActionNodeCreation,
//	    guard.Request{
//	        ActorID:   userID,
//	        SessionID: sessionID,
//	        CSRFToken: token,
//	        Payload:   title,
//	    },
//	    guard.Options{RequireCSRF: true, DetectSuspicious: true},
//	    func(ctx context.Context) (any, error) {
//	        return store.CreateNode(ctx, title, content)
//	    })
//
// Failures are *guard.Error values; branch on Kind:
//
//	if guard.IsKind(err, guard.KindRateLimitExceeded) {
//	    // surface err.(*guard.Error).ResetIn to the user
//	}
//
// Validation, sanitization, rate limiting, CSRF, auditing and detection
// are also usable on their own via the validate, sanitize, ratelimit,
// csrf, audit and detect subpackages.
package guard
