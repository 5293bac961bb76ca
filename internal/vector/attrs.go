package vector

import (
	"strconv"
	"time"
)

type columnKind int

const (
	kindString columnKind = iota
	kindInt
	kindFloat
)

// columnKinds infers a storage kind per field from the first non-nil value.
// Mixed int/float columns widen to float; anything else falls back to string.
func columnKinds(fields []string, features []Feature) []columnKind {
	kinds := make([]columnKind, len(fields))
	for i, name := range fields {
		seen := false
		for _, f := range features {
			k, ok := valueKind(f.Properties[name])
			if !ok {
				continue
			}
			switch {
			case !seen:
				kinds[i] = k
				seen = true
			case kinds[i] == k:
			case (kinds[i] == kindInt && k == kindFloat) || (kinds[i] == kindFloat && k == kindInt):
				kinds[i] = kindFloat
			default:
				kinds[i] = kindString
			}
		}
	}
	return kinds
}

func valueKind(v any) (columnKind, bool) {
	switch v.(type) {
	case nil:
		return kindString, false
	case int, int32, int64:
		return kindInt, true
	case float32, float64:
		return kindFloat, true
	default:
		return kindString, true
	}
}

// normalizeValue maps driver and decoder values onto int64, float64, string or nil.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	case float32:
		return float64(t)
	case float64:
		return t
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	case []byte:
		return string(t)
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return v
	}
}

// IntProperty reads an integer attribute tolerant of how the source format typed it.
func IntProperty(props map[string]any, name string) (int64, bool) {
	switch v := props[name].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
	}
	return 0, false
}

// StringProperty reads a textual attribute.
func StringProperty(props map[string]any, name string) (string, bool) {
	switch v := props[name].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}
