// Package specification holds the window specification record, the static
// field table, and the priority-tiered validator that decides after every
// turn whether a quote can be produced.
package specification

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Specification maps a field name to the raw value collected so far.
type Specification map[string]any

// Clone returns a shallow copy. Values are scalars so a shallow copy is a full copy.
func (s Specification) Clone() Specification {
	out := make(Specification, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge returns a new specification with updates layered on top of s.
// New values win for the same key.
func (s Specification) Merge(updates Specification) Specification {
	out := s.Clone()
	for k, v := range updates {
		out[k] = v
	}
	return out
}

// IsPresent reports whether name holds a value. nil and blank strings count
// as absent; false and 0 are present.
func (s Specification) IsPresent(name string) bool {
	v, ok := s[name]
	if !ok || v == nil {
		return false
	}
	if str, ok := v.(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return true
}

// Keys returns the keys of s that hold a value.
func (s Specification) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		if s.IsPresent(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Number reads name as a float64.
func (s Specification) Number(name string) (float64, bool) {
	if !s.IsPresent(name) {
		return 0, false
	}
	return ToFloat(s[name])
}

// String reads name as a lower-cased, trimmed string.
func (s Specification) String(name string) (string, bool) {
	if !s.IsPresent(name) {
		return "", false
	}
	str, ok := s[name].(string)
	if !ok {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(str)), true
}

// Bool reads name as a bool. The strings "true"/"false" are accepted.
func (s Specification) Bool(name string) (bool, bool) {
	if !s.IsPresent(name) {
		return false, false
	}
	return ToBool(s[name])
}

// NumberValue keeps whole numbers as ints so they read back the way users typed them.
func NumberValue(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1e9 {
		return int(f)
	}
	return f
}

// Normalized returns a copy with whole float64 values turned into ints.
// JSON decoding yields float64 for every number; this undoes that.
func (s Specification) Normalized() Specification {
	out := make(Specification, len(s))
	for k, v := range s {
		if f, ok := v.(float64); ok {
			out[k] = NumberValue(f)
			continue
		}
		out[k] = v
	}
	return out
}

// ToFloat coerces the numeric shapes a specification value can arrive in.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ToBool coerces bools and their string spellings.
func ToBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return parsed, err == nil
	default:
		return false, false
	}
}
