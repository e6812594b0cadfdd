package jsonutil

import (
	"encoding/json"
	"math"
)

// NormalizeValue converts a value decoded by encoding/json into something a
// database/sql driver accepts. Integral float64 values become int64; nested
// arrays and objects are re-encoded as JSON text. Strings, booleans and nil
// pass through.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case float64:
		if val == math.Trunc(val) && val >= math.MinInt64 && val <= math.MaxInt64 {
			return int64(val)
		}
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any, []any:
		raw, err := json.Marshal(val)
		if err != nil {
			return v
		}
		return string(raw)
	default:
		return v
	}
}

// NormalizeMap applies NormalizeValue to every value of m in place.
func NormalizeMap(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = NormalizeValue(v)
	}
	return m
}

// NormalizeSlice applies NormalizeValue to every element of s in place.
func NormalizeSlice(s []any) []any {
	for i, v := range s {
		s[i] = NormalizeValue(v)
	}
	return s
}
