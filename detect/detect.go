// Package detect flags request payloads and caller identifiers that match
// known-bad signatures (script injection, SQL splicing, path traversal).
//
// Detection is a best-effort heuristic, not a security boundary: a hit is
// reported to the caller and recorded as an audit event, but whether to
// abort the request is the caller's decision. Signatures are matched
// against both the identifier and the payload, which can false-positive on
// legitimate identifiers; that tradeoff is accepted in exchange for
// catching injection attempts smuggled through either field.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/mindgraph/guard/audit"
)

// Signature is one named detection pattern.
type Signature struct {
	Name    string
	pattern *regexp.Regexp
}

// defaultSignatures are the built-in known-bad patterns.
var defaultSignatures = []Signature{
	{Name: "script_tag", pattern: regexp.MustCompile(`(?i)<script\b`)},
	{Name: "sql_union_select", pattern: regexp.MustCompile(`(?i)union\s+select`)},
	{Name: "sql_drop_table", pattern: regexp.MustCompile(`(?i)drop\s+table`)},
	{Name: "sql_statement_splice", pattern: regexp.MustCompile(`(?i);\s*(drop|delete|insert|update)\b`)},
	{Name: "path_traversal", pattern: regexp.MustCompile(`\.\./\.\./`)},
	{Name: "javascript_url", pattern: regexp.MustCompile(`(?i)javascript\s*:`)},
	{Name: "inline_event_handler", pattern: regexp.MustCompile(`(?i)\bon(load|error|click|mouseover)\s*=`)},
}

// Detector pattern-matches identifiers and payloads against its signature
// list and records hits through the audit logger.
type Detector struct {
	signatures []Signature
	auditLog   *audit.Logger
	logger     *slog.Logger
}

// New creates a detector with the built-in signatures plus any extra
// deployment-specific patterns. Invalid extra patterns are rejected here
// rather than silently never matching.
func New(extraPatterns []string, auditLog *audit.Logger, logger *slog.Logger) (*Detector, error) {
	if logger == nil {
		logger = slog.Default()
	}

	signatures := make([]Signature, 0, len(defaultSignatures)+len(extraPatterns))
	signatures = append(signatures, defaultSignatures...)

	for i, p := range extraPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid extra signature %q: %w", p, err)
		}
		signatures = append(signatures, Signature{
			Name:    fmt.Sprintf("custom_%d", i),
			pattern: re,
		})
	}

	return &Detector{
		signatures: signatures,
		auditLog:   auditLog,
		logger:     logger,
	}, nil
}

// Check matches the identifier and payload against every signature.
// Returns whether anything matched and the name of the first matching
// signature. Every hit is independently recorded as an audit event; the
// raw payload is never included in the event, only its length.
func (d *Detector) Check(ctx context.Context, identifier, payload string) (bool, string) {
	for _, sig := range d.signatures {
		if sig.pattern.MatchString(payload) || sig.pattern.MatchString(identifier) {
			d.logger.Warn("Suspicious activity detected",
				"signature", sig.Name,
				"identifier", identifier)

			if d.auditLog != nil {
				d.auditLog.Record(ctx, audit.Event{
					Category: audit.CategoryAccess,
					Action:   audit.ActionSuspiciousActivity,
					ActorID:  identifier,
					Detail: map[string]any{
						"signature":      sig.Name,
						"payload_length": len(payload),
					},
				})
			}
			return true, sig.Name
		}
	}
	return false, ""
}

// SignatureNames returns the names of all active signatures, for
// diagnostics.
func (d *Detector) SignatureNames() []string {
	names := make([]string, len(d.signatures))
	for i, sig := range d.signatures {
		names[i] = sig.Name
	}
	return names
}
