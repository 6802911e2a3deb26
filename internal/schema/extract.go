// Package schema maps arbitrary nested JSON payloads into normalized fields
// through a declarative, versioned schema.
package schema

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Field locates one leaf value in a payload.
type Field struct {
	Path    string // dot-separated, e.g. "five_hour.utilization"
	Default any
}

// Group is a named set of fields.
type Group map[string]Field

// Schema is the full field mapping for one payload shape.
type Schema struct {
	Version string
	Groups  map[string]Group
}

// GetNestedValue walks obj along a dot-separated path. It returns def when obj
// is nil, any segment is missing, or the leaf is null. Zero values such as 0,
// false and "" are real values and are returned as-is.
func GetNestedValue(obj any, path string, def any) any {
	if obj == nil {
		return def
	}
	cur := obj
	if path != "" {
		for _, seg := range strings.Split(path, ".") {
			m, ok := cur.(map[string]any)
			if !ok {
				return def
			}
			v, ok := m[seg]
			if !ok {
				return def
			}
			cur = v
		}
	}
	if cur == nil {
		return def
	}
	return cur
}

// ExtractFromSchema resolves every field of s against payload and returns a
// mapping with the same group/field shape.
func ExtractFromSchema(payload any, s Schema) map[string]map[string]any {
	out := make(map[string]map[string]any, len(s.Groups))
	for groupName, group := range s.Groups {
		fields := make(map[string]any, len(group))
		for fieldName, f := range group {
			fields[fieldName] = GetNestedValue(payload, f.Path, f.Default)
		}
		out[groupName] = fields
	}
	return out
}

// Decode unmarshals a JSON body into the generic form GetNestedValue expects.
func Decode(body []byte) (any, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Number coerces a loosely typed leaf into a float. Numeric strings, with or
// without a trailing "%", are accepted.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(n), "%")
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return 0, false
}

// Utilization normalizes a utilization leaf to a percentage in [0,100].
// Values at or below 1.0 are treated as fractions. Returns nil when the leaf
// is absent or unparseable.
func Utilization(v any) *float64 {
	f, ok := Number(v)
	if !ok {
		return nil
	}
	if f <= 1.0 {
		f *= 100
	}
	if f < 0 {
		f = 0
	}
	if f > 100 {
		f = 100
	}
	f = math.Round(f*100) / 100
	return &f
}

// String returns the leaf as a string, or "" if it is not one.
func String(v any) string {
	s, _ := v.(string)
	return s
}

// Bool returns the leaf as a bool, or false if it is not one.
func Bool(v any) bool {
	b, _ := v.(bool)
	return b
}
