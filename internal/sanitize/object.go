package sanitize

import (
	"bytes"
	"encoding/json"
)

// Object walks a decoded JSON-like value and applies the declared rule per
// field key (default: text). Strings are transformed; non-string scalars pass
// through unchanged; maps and slices recurse. The key of the nearest
// enclosing field selects the rule for strings inside arrays.
func Object(value any, rules map[string]Rule) any {
	return sanitizeValue(value, RuleText, rules)
}

func sanitizeValue(value any, rule Rule, rules map[string]Rule) any {
	switch v := value.(type) {
	case string:
		return Apply(rule, v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, inner := range v {
			fieldRule, ok := rules[key]
			if !ok {
				fieldRule = RuleText
			}
			out[key] = sanitizeValue(inner, fieldRule, rules)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = sanitizeValue(inner, rule, rules)
		}
		return out
	default:
		return v
	}
}

// InspectJSON serializes v without HTML escaping and runs the deny list over
// the result. It is the mandatory second line of defense after Object: a
// match here means the enclosing save must be rejected, not re-sanitized.
func InspectJSON(v any) (bool, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return false, err
	}
	return ContainsDangerous(buf.String()), nil
}
