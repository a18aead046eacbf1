package guard

import (
	"time"

	"github.com/mindgraph/guard/ratelimit"
)

// Guarded action names. The set is fixed: every state-mutating operation
// in the product goes through one of these.
const (
	ActionAPI                  = "api"
	ActionSearch               = "search"
	ActionLogin                = "login"
	ActionUpload               = "upload"
	ActionNodeCreation         = "node_creation"
	ActionRelationshipCreation = "relationship_creation"
	ActionNotification         = "notification"
)

// AnonymousIdentifier is the rate-limit key used when no authenticated
// caller is known.
const AnonymousIdentifier = "anonymous"

// DefaultLimits returns the product's per-action admission limits. These
// are configuration, not behavior: deployments tune them via
// Config.RateLimit.Limits.
func DefaultLimits() map[string]ratelimit.Config {
	return map[string]ratelimit.Config{
		ActionAPI:                  {Capacity: 60, Window: time.Minute},
		ActionSearch:               {Capacity: 30, Window: time.Minute},
		ActionLogin:                {Capacity: 5, Window: 5 * time.Minute},
		ActionUpload:               {Capacity: 20, Window: time.Hour},
		ActionNodeCreation:         {Capacity: 10, Window: time.Minute},
		ActionRelationshipCreation: {Capacity: 10, Window: time.Minute},
		ActionNotification:         {Capacity: 30, Window: time.Minute},
	}
}
