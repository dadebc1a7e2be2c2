package jsonpath

import (
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"
)

// Truthy follows JavaScript truthiness: nil, false, zero, NaN and the empty
// string are false. Empty slices and maps are true.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case float32:
		return x != 0 && !math.IsNaN(float64(x))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return cast.ToFloat64(x) != 0
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	case time.Time:
		return !x.IsZero()
	}
	return true
}

// Stringify renders v the way string templates and regex tests see it:
// scalars in their natural form, containers as JSON.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}

// Slice returns v as a sequence. Non-sequence values yield ok == false.
func Slice(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []map[string]any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, true
	case []string:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, true
	}
	return nil, false
}
