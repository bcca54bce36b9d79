package drawable

import (
	"fmt"
	"math"
)

// FieldType is the semantic type of a serializable field.
type FieldType uint8

const (
	Int16 FieldType = iota + 1
	Int32
	Float32
	Float64
	String
	Bool
)

func (t FieldType) String() string {
	switch t {
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case String:
		return "string"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("FieldType(%d)", uint8(t))
	}
}

// ParseFieldType is the inverse of FieldType.String.
func ParseFieldType(s string) (FieldType, bool) {
	for t := Int16; t <= Bool; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

// Field describes one serializable attribute of a kind.
type Field struct {
	Name    string
	Type    FieldType
	Default any
}

// coerce converts v to the Go representation of t.
//
// Integer fields take any Go integer and truncate (int16(70000) == 4464).
// Float fields take floats and integers whose result is finite. Strings and
// bools must match exactly.
func coerce(t FieldType, v any) (any, bool) {
	switch t {
	case Int16:
		if n, ok := asInt64(v); ok {
			return int16(n), true
		}
	case Int32:
		if n, ok := asInt64(v); ok {
			return int32(n), true
		}
	case Float32:
		if f, ok := asFloat64(v); ok {
			f32 := float32(f)
			if !finite(float64(f32)) {
				return nil, false
			}
			return f32, true
		}
	case Float64:
		if f, ok := asFloat64(v); ok && finite(f) {
			return f, true
		}
	case String:
		if s, ok := v.(string); ok {
			return s, true
		}
	case Bool:
		if b, ok := v.(bool); ok {
			return b, true
		}
	}
	return nil, false
}

// finite rejects NaN and the infinities, including float32 overflow. Such
// values have no wire form.
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
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
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch f := v.(type) {
	case float32:
		return float64(f), true
	case float64:
		return f, true
	}
	return asInt64AsFloat(v)
}

func asInt64AsFloat(v any) (float64, bool) {
	n, ok := asInt64(v)
	return float64(n), ok
}

// zeroOf returns the zero value for t.
func zeroOf(t FieldType) any {
	switch t {
	case Int16:
		return int16(0)
	case Int32:
		return int32(0)
	case Float32:
		return float32(0)
	case Float64:
		return float64(0)
	case String:
		return ""
	case Bool:
		return false
	}
	return nil
}

// typeName describes v for error messages.
func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
