// Package schema validates document bodies against a JSON Schema subset and
// can enforce a schema on every write to a store.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Violation is one failed constraint, located by a JSONPath-like path.
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError lists every violation found in a document.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Path+": "+v.Message)
	}
	return strings.Join(parts, "; ")
}

// Validate checks a document against a JSON Schema (draft-07 subset).
// Returns nil if validation passes or the schema is nil, otherwise a
// *ValidationError. Top-level fields starting with "_" are store metadata and
// are not validated.
//
// Supported JSON Schema keywords:
//   - type (string, number, integer, boolean, object, array, null)
//   - properties, required, additionalProperties
//   - items (for arrays)
//   - minimum, maximum, exclusiveMinimum, exclusiveMaximum
//   - minLength, maxLength
//   - minItems, maxItems
//   - enum
func Validate(schema map[string]any, doc map[string]any) error {
	if schema == nil {
		return nil
	}
	body := make(map[string]any, len(doc))
	for k, v := range doc {
		if strings.HasPrefix(k, "_") {
			continue
		}
		body[k] = v
	}

	var w walker
	w.value(schema, body, "$")
	if len(w.violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: w.violations}
}

// walker accumulates violations while descending a document.
type walker struct {
	violations []Violation
}

func (w *walker) fail(path, format string, args ...any) {
	w.violations = append(w.violations, Violation{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (w *walker) value(schema map[string]any, value any, path string) {
	if expected, ok := schema["type"].(string); ok && !typeMatches(expected, value) {
		w.fail(path, "expected type %q, got %q", expected, jsonType(value))
		return
	}
	if allowed, ok := schema["enum"].([]any); ok && !inEnum(allowed, value) {
		w.fail(path, "value not in enum %v", allowed)
	}

	switch v := value.(type) {
	case map[string]any:
		w.object(schema, v, path)
	case []any:
		w.array(schema, v, path)
	case string:
		w.length(schema, "minLength", "maxLength", "string length", len(v), path)
	default:
		if n, ok := toFloat(value); ok {
			w.number(schema, n, path)
		}
	}
}

func (w *walker) object(schema map[string]any, obj map[string]any, path string) {
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if field, ok := r.(string); ok {
				if _, exists := obj[field]; !exists {
					w.fail(path, "missing required field %q", field)
				}
			}
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for _, field := range sortedKeys(props) {
		val, exists := obj[field]
		if !exists {
			continue
		}
		if ps, ok := props[field].(map[string]any); ok {
			w.value(ps, val, path+"."+field)
		}
	}

	if ap, ok := schema["additionalProperties"].(bool); ok && !ap {
		var extra []string
		for _, field := range sortedKeys(obj) {
			if _, defined := props[field]; !defined {
				extra = append(extra, field)
			}
		}
		if len(extra) > 0 {
			w.fail(path, "additional properties not allowed: %s", strings.Join(extra, ", "))
		}
	}
}

func (w *walker) array(schema map[string]any, arr []any, path string) {
	w.length(schema, "minItems", "maxItems", "array length", len(arr), path)
	if itemSchema, ok := schema["items"].(map[string]any); ok {
		for i, elem := range arr {
			w.value(itemSchema, elem, fmt.Sprintf("%s[%d]", path, i))
		}
	}
}

func (w *walker) length(schema map[string]any, minKey, maxKey, what string, n int, path string) {
	if v, ok := toFloat(schema[minKey]); ok && float64(n) < v {
		w.fail(path, "%s %d is less than %s %v", what, n, minKey, v)
	}
	if v, ok := toFloat(schema[maxKey]); ok && float64(n) > v {
		w.fail(path, "%s %d is greater than %s %v", what, n, maxKey, v)
	}
}

func (w *walker) number(schema map[string]any, n float64, path string) {
	if v, ok := toFloat(schema["minimum"]); ok && n < v {
		w.fail(path, "%v is less than minimum %v", n, v)
	}
	if v, ok := toFloat(schema["maximum"]); ok && n > v {
		w.fail(path, "%v is greater than maximum %v", n, v)
	}
	if v, ok := toFloat(schema["exclusiveMinimum"]); ok && n <= v {
		w.fail(path, "%v is not greater than exclusiveMinimum %v", n, v)
	}
	if v, ok := toFloat(schema["exclusiveMaximum"]); ok && n >= v {
		w.fail(path, "%v is not less than exclusiveMaximum %v", n, v)
	}
}

func typeMatches(expected string, value any) bool {
	actual := jsonType(value)
	switch expected {
	case "integer":
		// Whole floats count as integers; JSON decoding yields float64.
		if f, ok := toFloat(value); ok {
			return f == float64(int64(f))
		}
		return false
	case "number":
		return actual == "number" || actual == "integer"
	default:
		return actual == expected
	}
}

func jsonType(v any) string {
	if v == nil {
		return "null"
	}
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, json.Number:
		return "number"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	default:
		return reflect.TypeOf(v).String()
	}
}

func inEnum(allowed []any, value any) bool {
	for _, a := range allowed {
		if reflect.DeepEqual(a, value) {
			return true
		}
		// 1 and 1.0 are the same JSON value.
		af, aok := toFloat(a)
		vf, vok := toFloat(value)
		if aok && vok && af == vf {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
