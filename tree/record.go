package tree

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// Record is an opaque structured value. Only the configured identifier,
// parent identifier and children fields are interpreted; everything else is
// carried through untouched.
type Record map[string]any

// String returns field as a string. Non-string values are formatted with
// fmt; a missing field yields "".
func (r Record) String(field string) string {
	switch v := r[field].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Children returns the nested children stored under field, or nil when the
// field is missing or holds the empty marker.
func (r Record) Children(field string) []Record {
	switch v := r[field].(type) {
	case []Record:
		return v
	case []any:
		out := make([]Record, 0, len(v))
		for _, c := range v {
			if rec, ok := asRecord(c); ok {
				out = append(out, rec)
			}
		}
		return out
	default:
		return nil
	}
}

// HasChildren reports whether field holds at least one child.
func (r Record) HasChildren(field string) bool {
	return len(r.Children(field)) > 0
}

// clone returns a shallow copy with room for one extra field.
func (r Record) clone() Record {
	out := make(Record, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// without returns a shallow copy of r minus field.
func (r Record) without(field string) Record {
	out := make(Record, len(r))
	for k, v := range r {
		if k != field {
			out[k] = v
		}
	}
	return out
}

// asRecord accepts both Record and the map[string]any produced by
// encoding/json.
func asRecord(v any) (Record, bool) {
	switch m := v.(type) {
	case Record:
		return m, true
	case map[string]any:
		return Record(m), true
	default:
		return nil, false
	}
}

// Key normalizes an identifier into a comparable map key. Signed and
// unsigned integers, integral floats and json.Number collapse to int64;
// other floats stay float64. It reports false for nil, NaN and values that
// cannot be used as map keys.
func Key(v any) (any, bool) {
	switch n := v.(type) {
	case nil:
		return nil, false
	case string:
		return n, true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return fromUint(uint64(n)), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return fromUint(n), true
	case float32:
		return fromFloat(float64(n))
	case float64:
		return fromFloat(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return string(n), true
		}
		return fromFloat(f)
	}

	rv := reflect.ValueOf(v)
	if !rv.Comparable() {
		return nil, false
	}
	return v, true
}

func fromUint(n uint64) any {
	if n > math.MaxInt64 {
		return n
	}
	return int64(n)
}

func fromFloat(f float64) (any, bool) {
	if math.IsNaN(f) {
		return nil, false
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f), true
	}
	return f, true
}
