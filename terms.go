package multiquery

import (
	"encoding/hex"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

// Terms is a filter/sort/view specification for a list, e.g.
// {"view": "recent", "limit": 10}. Terms are passed verbatim to the
// resolver inside the query input.
type Terms map[string]any

// TermLimit is the terms key holding the requested window size.
const TermLimit = "limit"

var keyEncMode = mustCanonicalEncMode()

func mustCanonicalEncMode() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}

// Limit returns the positive limit embedded in the terms, if any.
// Numeric strings are accepted because terms often come from URLs.
func (t Terms) Limit() (int, bool) {
	raw, ok := t[TermLimit]
	if !ok || raw == nil {
		return 0, false
	}

	var n int
	switch v := raw.(type) {
	case int:
		n = v
	case int32:
		n = int(v)
	case int64:
		n = int(v)
	case uint:
		n = int(v)
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		n = int(v)
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}

	if n <= 0 {
		return 0, false
	}
	return n, true
}

// Clone returns a deep copy of the terms. Nested maps and slices are
// copied too; other values are shared.
func (t Terms) Clone() Terms {
	if t == nil {
		return Terms{}
	}
	return Terms(cloneValue(map[string]any(t)).(map[string]any))
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case Terms:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface()
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		return out.Interface()
	default:
		return v
	}
}

// WithLimit returns a copy of the terms with the limit set.
func (t Terms) WithLimit(limit int) Terms {
	out := t.Clone()
	out[TermLimit] = limit
	return out
}

// Key returns a normalized serialization of the terms. Two terms have the
// same key when they hold the same values, regardless of key order or of
// whether a whole number is typed as int or float64.
func (t Terms) Key() (string, error) {
	return canonicalKey(map[string]any(t))
}

func canonicalKey(v any) (string, error) {
	data, err := keyEncMode.Marshal(normalize(v))
	if err != nil {
		return "", fmt.Errorf("encode key: %w", err)
	}
	return hex.EncodeToString(data), nil
}

func normalize(v any) any {
	switch val := v.(type) {
	case Terms:
		return normalize(map[string]any(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val)
		}
		return val
	case float32:
		return normalize(float64(val))
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return int64(val)
	default:
		return val
	}
}
