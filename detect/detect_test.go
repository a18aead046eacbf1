package detect

import (
	"context"
	"sync"
	"testing"

	"github.com/mindgraph/guard/audit"
)

// captureSink records audit events emitted by the detector.
type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureSink) Emit(_ context.Context, event audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func newTestDetector(t *testing.T) (*Detector, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	log := audit.NewLogger(audit.Config{Enabled: true, Sink: sink}, nil)
	d, err := New(nil, log, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d, sink
}

func TestDetector_Check(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		payload    string
		wantHit    bool
		wantSig    string
	}{
		{"benign", "u1", "hello world", false, ""},
		{"sql splice", "u1", "1; DROP TABLE users", true, "sql_drop_table"},
		{"union select", "u1", "x' UNION SELECT * FROM secrets --", true, "sql_union_select"},
		{"script tag", "u1", "<script>alert(1)</script>", true, "script_tag"},
		{"path traversal", "u1", "../../etc/passwd", true, "path_traversal"},
		{"javascript url", "u1", `<a href="javascript:evil()">x</a>`, true, "javascript_url"},
		{"bare javascript url", "u1", "javascript:evil()", true, "javascript_url"},
		{"event handler", "u1", `<img onerror=alert(1)>`, true, "inline_event_handler"},
		{"suspicious identifier", "<script>alert(1)</script>", "harmless", true, "script_tag"},
		{"delete splice", "u1", "name; DELETE FROM nodes", true, "sql_statement_splice"},
		{"empty payload", "u1", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDetector(t)
			hit, sig := d.Check(context.Background(), tt.identifier, tt.payload)
			if hit != tt.wantHit {
				t.Errorf("Check() hit = %v, want %v", hit, tt.wantHit)
			}
			if sig != tt.wantSig {
				t.Errorf("Check() signature = %q, want %q", sig, tt.wantSig)
			}
		})
	}
}

func TestDetector_HitsAreAudited(t *testing.T) {
	d, sink := newTestDetector(t)

	d.Check(context.Background(), "u1", "1; DROP TABLE users")

	if len(sink.events) != 1 {
		t.Fatalf("audit events = %d, want 1", len(sink.events))
	}
	got := sink.events[0]
	if got.Category != audit.CategoryAccess {
		t.Errorf("Category = %q, want access", got.Category)
	}
	if got.Action != audit.ActionSuspiciousActivity {
		t.Errorf("Action = %q, want %q", got.Action, audit.ActionSuspiciousActivity)
	}
	if got.Detail["signature"] != "sql_drop_table" {
		t.Errorf("Detail.signature = %v, want sql_drop_table", got.Detail["signature"])
	}
	// The raw payload must never reach the audit stream.
	if _, ok := got.Detail["payload"]; ok {
		t.Error("Detail should not carry the raw payload")
	}
}

func TestDetector_BenignNotAudited(t *testing.T) {
	d, sink := newTestDetector(t)

	d.Check(context.Background(), "u1", "hello world")

	if len(sink.events) != 0 {
		t.Errorf("audit events = %d, want 0", len(sink.events))
	}
}

func TestNew_ExtraPatterns(t *testing.T) {
	sink := &captureSink{}
	log := audit.NewLogger(audit.Config{Enabled: true, Sink: sink}, nil)

	d, err := New([]string{`(?i)forbidden_word`}, log, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	hit, sig := d.Check(context.Background(), "u1", "contains Forbidden_Word here")
	if !hit || sig != "custom_0" {
		t.Errorf("Check() = %v, %q, want hit on custom_0", hit, sig)
	}
}

func TestNew_InvalidExtraPattern(t *testing.T) {
	if _, err := New([]string{`(unclosed`}, nil, nil); err == nil {
		t.Error("New() should reject an invalid extra pattern")
	}
}

func TestDetector_NilAuditLogger(t *testing.T) {
	d, err := New(nil, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Must not panic without an audit logger.
	hit, _ := d.Check(context.Background(), "u1", "1; DROP TABLE users")
	if !hit {
		t.Error("Check() should still detect without an audit logger")
	}
}
