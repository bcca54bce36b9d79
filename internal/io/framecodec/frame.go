// Package framecodec is the compact binary form of drawables.
//
// Full frame:    uvarint(tag) value...
// Partial frame: uvarint(id) uvarint(field index) value
//
// Values are big-endian: int16 2 bytes, int32 4, float32 4 (IEEE bits),
// float64 8, string uvarint(len)+UTF-8, bool 1 byte (0/1). Value layout is
// fixed by the schema order, so frames carry no field names.
package framecodec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"hudbridge.ai/internal/drawable"
)

// MaxString bounds decoded string length.
const MaxString = 1 << 16

var ErrShortFrame = errors.New("framecodec: short frame")

// AppendFull appends the full frame of d.
func AppendFull(dst []byte, c *drawable.Codec, d *drawable.Drawable) ([]byte, error) {
	tag, values, err := c.Encode(d)
	if err != nil {
		return dst, err
	}
	dst = binary.AppendUvarint(dst, uint64(tag))
	for i, f := range d.Schema().Fields() {
		dst = appendValue(dst, f.Type, values[i])
	}
	return dst, nil
}

// DecodeFull reads one full frame and returns the decoded instance and the
// number of bytes consumed.
func DecodeFull(b []byte, c *drawable.Codec) (*drawable.Drawable, int, error) {
	tag, n := binary.Uvarint(b)
	if n <= 0 {
		return nil, 0, ErrShortFrame
	}
	if tag > math.MaxInt32 {
		return nil, 0, fmt.Errorf("framecodec: tag %d out of range", tag)
	}
	s, err := c.Registry().SchemaOf(drawable.Tag(tag))
	if err != nil {
		return nil, 0, err
	}
	off := n
	values := make([]any, s.Len())
	for i, f := range s.Fields() {
		v, m, err := readValue(b[off:], f.Type)
		if err != nil {
			return nil, 0, fmt.Errorf("framecodec: %s.%s: %w", s.Kind(), f.Name, err)
		}
		values[i] = v
		off += m
	}
	d, err := c.Decode(drawable.Tag(tag), values)
	if err != nil {
		return nil, 0, err
	}
	return d, off, nil
}

// AppendPartial appends one partial frame for the field at index.
func AppendPartial(dst []byte, id uint32, s *drawable.Schema, index int, value any) []byte {
	dst = binary.AppendUvarint(dst, uint64(id))
	dst = binary.AppendUvarint(dst, uint64(index))
	return appendValue(dst, s.Field(index).Type, value)
}

// Partial is one decoded partial frame.
type Partial struct {
	ID    uint32
	Field string
	Value any
}

// DecodePartial reads one partial frame. schemaOf resolves the schema of the
// instance the frame targets.
func DecodePartial(b []byte, schemaOf func(id uint32) (*drawable.Schema, bool)) (Partial, int, error) {
	var p Partial
	id, n := binary.Uvarint(b)
	if n <= 0 || id > math.MaxUint32 {
		return p, 0, ErrShortFrame
	}
	off := n
	idx, n := binary.Uvarint(b[off:])
	if n <= 0 {
		return p, 0, ErrShortFrame
	}
	off += n
	s, ok := schemaOf(uint32(id))
	if !ok {
		return p, 0, fmt.Errorf("framecodec: no instance %d", id)
	}
	if idx >= uint64(s.Len()) {
		return p, 0, &drawable.UnknownFieldError{Kind: s.Kind(), Field: fmt.Sprintf("#%d", idx)}
	}
	f := s.Field(int(idx))
	v, m, err := readValue(b[off:], f.Type)
	if err != nil {
		return p, 0, fmt.Errorf("framecodec: %s.%s: %w", s.Kind(), f.Name, err)
	}
	p.ID, p.Field, p.Value = uint32(id), f.Name, v
	return p, off + m, nil
}

func appendValue(dst []byte, t drawable.FieldType, v any) []byte {
	switch t {
	case drawable.Int16:
		return binary.BigEndian.AppendUint16(dst, uint16(v.(int16)))
	case drawable.Int32:
		return binary.BigEndian.AppendUint32(dst, uint32(v.(int32)))
	case drawable.Float32:
		return binary.BigEndian.AppendUint32(dst, math.Float32bits(v.(float32)))
	case drawable.Float64:
		return binary.BigEndian.AppendUint64(dst, math.Float64bits(v.(float64)))
	case drawable.String:
		s := v.(string)
		dst = binary.AppendUvarint(dst, uint64(len(s)))
		return append(dst, s...)
	case drawable.Bool:
		if v.(bool) {
			return append(dst, 1)
		}
		return append(dst, 0)
	}
	panic(fmt.Sprintf("framecodec: unsupported field type %s", t))
}

func readValue(b []byte, t drawable.FieldType) (any, int, error) {
	need := func(n int) error {
		if len(b) < n {
			return ErrShortFrame
		}
		return nil
	}
	switch t {
	case drawable.Int16:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		return int16(binary.BigEndian.Uint16(b)), 2, nil
	case drawable.Int32:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return int32(binary.BigEndian.Uint32(b)), 4, nil
	case drawable.Float32:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return math.Float32frombits(binary.BigEndian.Uint32(b)), 4, nil
	case drawable.Float64:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(b)), 8, nil
	case drawable.String:
		l, n := binary.Uvarint(b)
		if n <= 0 {
			return nil, 0, ErrShortFrame
		}
		if l > MaxString {
			return nil, 0, fmt.Errorf("string length %d exceeds %d", l, MaxString)
		}
		if err := need(n + int(l)); err != nil {
			return nil, 0, err
		}
		return string(b[n : n+int(l)]), n + int(l), nil
	case drawable.Bool:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		switch b[0] {
		case 0:
			return false, 1, nil
		case 1:
			return true, 1, nil
		}
		return nil, 0, fmt.Errorf("bad bool byte %#x", b[0])
	}
	return nil, 0, fmt.Errorf("unsupported field type %s", t)
}
