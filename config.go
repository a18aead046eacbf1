package guard

import (
	"log/slog"
	"time"

	"github.com/mindgraph/guard/audit"
	"github.com/mindgraph/guard/instrumentation"
	"github.com/mindgraph/guard/ratelimit"
)

// Config holds the guard configuration. Zero values get safe defaults in
// New; only genuinely unusable configuration is rejected.
type Config struct {
	// RateLimit configures per-action admission limits.
	RateLimit RateLimitConfig

	// CSRF configures the session token store.
	CSRF CSRFConfig

	// Audit configures security event logging.
	Audit audit.Config

	// Detector configures suspicious-activity detection.
	Detector DetectorConfig

	// Logger for structured logging (optional, uses default if not
	// provided).
	Logger *slog.Logger

	// Instrumentation is the optional OpenTelemetry holder. Nil disables
	// metrics and tracing.
	Instrumentation *instrumentation.Instrumentation
}

// RateLimitConfig holds admission-control configuration.
type RateLimitConfig struct {
	// Limits maps action names to their window capacity. Empty means
	// DefaultLimits(). Immutable after New.
	Limits map[string]ratelimit.Config

	// CleanupInterval is how often expired limiter entries are swept.
	// Must be coarser than any individual window.
	CleanupInterval time.Duration
}

// CSRFConfig holds token store configuration.
type CSRFConfig struct {
	// SessionTTL is how long an issued token stays valid without
	// re-issue.
	SessionTTL time.Duration

	// CleanupInterval is how often expired sessions are dropped.
	CleanupInterval time.Duration
}

// DetectorConfig holds suspicious-activity detector configuration.
type DetectorConfig struct {
	// ExtraSignatures are deployment-specific regex patterns checked in
	// addition to the built-in set. Invalid patterns fail New.
	ExtraSignatures []string
}
