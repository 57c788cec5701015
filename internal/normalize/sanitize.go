package normalize

import (
	"encoding/json"
	"math"
)

// Plain rewrites v so that it only holds JSON-native values: maps, slices,
// strings, bools, float64 and int64. json.Number and sized numeric types are
// widened; NaN and infinities become nil. It is applied to every payload that
// leaves the evaluation core.
func Plain(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Plain(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Plain(item)
		}
		return out
	case map[string]float64:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Plain(item)
		}
		return out
	case []float64:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Plain(item)
		}
		return out
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		return finiteOrNil(Float(val))
	case float64:
		return finiteOrNil(val)
	case float32:
		return finiteOrNil(float64(val))
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case int64:
		return val
	case uint32:
		return int64(val)
	case uint64:
		if val > math.MaxInt64 {
			return float64(val)
		}
		return int64(val)
	default:
		return v
	}
}

// PlainMap is Plain for a map, keeping nil as nil.
func PlainMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return Plain(m).(map[string]any)
}

func finiteOrNil(f float64) any {
	if !IsFinite(f) {
		return nil
	}
	return f
}
