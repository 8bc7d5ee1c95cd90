package vector

import "strconv"

// String reads a string payload value; other types yield "".
func String(v any) string {
	s, _ := v.(string)
	return s
}

// Bool reads a boolean payload value. Strings "true"/"false" are accepted
// because older points stored every field as a string.
func Bool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	}
	return false
}

// Float reads a numeric payload value.
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// Strings reads a list-of-strings payload value. Non-string elements are skipped.
func Strings(v any) []string {
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Matches reports whether payload satisfies every equality predicate in f.
func (f Filter) Matches(payload map[string]any) bool {
	for k, want := range f {
		got, ok := payload[k]
		if !ok {
			return false
		}
		switch w := want.(type) {
		case string:
			if s, ok := got.(string); !ok || s != w {
				return false
			}
		case bool:
			if b, ok := got.(bool); !ok || b != w {
				return false
			}
		case int:
			n, ok := Float(got)
			if !ok || n != float64(w) {
				return false
			}
		default:
			return false
		}
	}
	return true
}
