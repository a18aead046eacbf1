package audit

import "regexp"

// RedactedPlaceholder replaces any value whose key looks sensitive. The
// replacement is irreversible: no unredacted copy leaves this package.
const RedactedPlaceholder = "[REDACTED]"

// sensitiveKeyPattern is the key-name heuristic for values that must never
// reach a sink. Matched case-insensitively anywhere in the key.
var sensitiveKeyPattern = regexp.MustCompile(`(?i)(password|passwd|token|secret|key|credential|auth)`)

// isSensitiveKey reports whether a detail key matches the sensitive-name
// heuristic.
func isSensitiveKey(key string) bool {
	return sensitiveKeyPattern.MatchString(key)
}

// RedactDetail returns a deep copy of detail with every sensitively-named
// value replaced by RedactedPlaceholder. Redaction recurses into nested
// maps and slices; the input is never mutated.
func RedactDetail(detail map[string]any) map[string]any {
	if detail == nil {
		return nil
	}

	out := make(map[string]any, len(detail))
	for key, value := range detail {
		if isSensitiveKey(key) {
			out[key] = RedactedPlaceholder
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

func redactValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return RedactDetail(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactValue(item)
		}
		return out
	default:
		return value
	}
}
