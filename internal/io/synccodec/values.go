// Package synccodec converts between surface batches, drawable values and the
// JSON wire messages of the protocol package.
package synccodec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"hudbridge.ai/internal/drawable"
)

// EncodeValue marshals one field value.
func EncodeValue(v any) (json.RawMessage, error) {
	switch x := v.(type) {
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil, fmt.Errorf("synccodec: %v is not representable", x)
		}
		return json.RawMessage(strconv.FormatFloat(float64(x), 'g', -1, 32)), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("synccodec: %v is not representable", x)
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// EncodeValues marshals a value list in order.
func EncodeValues(values []any) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		raw, err := EncodeValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = raw
	}
	return out, nil
}

// DecodeValue reads raw according to f's type. Integer fields must carry
// integral JSON numbers; the truncating cast then applies as for any integer.
func DecodeValue(kind drawable.Kind, f drawable.Field, raw json.RawMessage) (any, error) {
	mismatch := func(got string) error {
		return &drawable.TypeMismatchError{Kind: kind, Field: f.Name, Want: f.Type, Got: got}
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, mismatch("nothing")
	}
	switch f.Type {
	case drawable.Int16, drawable.Int32:
		if raw[0] == '"' || raw[0] == 't' || raw[0] == 'f' || raw[0] == 'n' || raw[0] == '[' || raw[0] == '{' {
			return nil, mismatch(jsonKind(raw))
		}
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return nil, mismatch("non-integral number")
		}
		if f.Type == drawable.Int16 {
			return int16(n), nil
		}
		return int32(n), nil
	case drawable.Float32:
		var x float64
		if err := json.Unmarshal(raw, &x); err != nil {
			return nil, mismatch(jsonKind(raw))
		}
		if math.IsInf(float64(float32(x)), 0) {
			return nil, mismatch("out-of-range number")
		}
		return float32(x), nil
	case drawable.Float64:
		var x float64
		if err := json.Unmarshal(raw, &x); err != nil {
			return nil, mismatch(jsonKind(raw))
		}
		return x, nil
	case drawable.String:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, mismatch(jsonKind(raw))
		}
		return s, nil
	case drawable.Bool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, mismatch(jsonKind(raw))
		}
		return b, nil
	}
	return nil, mismatch(jsonKind(raw))
}

// DecodeValues reads a full value list in schema order. Arity is left to the
// drawable codec so the error carries the tag.
func DecodeValues(s *drawable.Schema, raw []json.RawMessage) ([]any, error) {
	if len(raw) != s.Len() {
		return make([]any, len(raw)), nil
	}
	out := make([]any, len(raw))
	for i, f := range s.Fields() {
		v, err := DecodeValue(s.Kind(), f, raw[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func jsonKind(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "nothing"
	}
	switch raw[0] {
	case '"':
		return "string"
	case 't', 'f':
		return "bool"
	case 'n':
		return "null"
	case '[':
		return "array"
	case '{':
		return "object"
	}
	return "number"
}
