package drawable

import "fmt"

// maxFields bounds a schema so the dirty set fits in one mask word.
const maxFields = 64

// PositionFields is the shared prefix of every schema.
var PositionFields = []Field{
	{Name: "x", Type: Int16, Default: int16(0)},
	{Name: "y", Type: Int16, Default: int16(0)},
	{Name: "z", Type: Int16, Default: int16(0)},
}

// Normalizer restores cross-field rules on a full value slice in schema order.
type Normalizer func(s *Schema, values []any)

// Schema is the ordered field list of one kind. The order is part of the wire
// contract and never changes once a kind has shipped.
type Schema struct {
	kind      Kind
	fields    []Field
	index     map[string]int
	normalize Normalizer
}

// NewSchema builds a schema for kind. The positional prefix is prepended to fields.
func NewSchema(kind Kind, fields ...Field) (*Schema, error) {
	all := make([]Field, 0, len(PositionFields)+len(fields))
	all = append(all, PositionFields...)
	all = append(all, fields...)
	if len(all) > maxFields {
		return nil, fmt.Errorf("drawable: %s declares %d fields, max %d", kind, len(all), maxFields)
	}

	s := &Schema{kind: kind, fields: all, index: make(map[string]int, len(all))}
	for i, f := range all {
		if f.Name == "" {
			return nil, fmt.Errorf("drawable: %s field %d has no name", kind, i)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("drawable: %s declares field %q twice", kind, f.Name)
		}
		if zeroOf(f.Type) == nil {
			return nil, fmt.Errorf("drawable: %s.%s has invalid type %s", kind, f.Name, f.Type)
		}
		if f.Default == nil {
			all[i].Default = zeroOf(f.Type)
		}
		if !sameType(f.Type, all[i].Default) {
			return nil, fmt.Errorf("drawable: %s.%s default %s is not %s", kind, f.Name, typeName(f.Default), f.Type)
		}
		s.index[f.Name] = i
	}
	return s, nil
}

// WithNormalizer returns s after attaching n.
func (s *Schema) WithNormalizer(n Normalizer) *Schema {
	s.normalize = n
	return s
}

func (s *Schema) Kind() Kind { return s.kind }

// Len is the total field count, positional prefix included.
func (s *Schema) Len() int { return len(s.fields) }

// Fields returns the fields in wire order. The slice must not be modified.
func (s *Schema) Fields() []Field { return s.fields }

// Field returns the descriptor at position i.
func (s *Schema) Field(i int) Field { return s.fields[i] }

// Index returns the position of name, or -1.
func (s *Schema) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

func (s *Schema) mustIndex(name string) int {
	i := s.Index(name)
	if i < 0 {
		panic(fmt.Sprintf("drawable: %s has no field %q", s.kind, name))
	}
	return i
}

func (s *Schema) defaults() []any {
	out := make([]any, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Default
	}
	return out
}

func mustSchema(kind Kind, fields ...Field) *Schema {
	s, err := NewSchema(kind, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func sameType(t FieldType, v any) bool {
	switch v.(type) {
	case int16:
		return t == Int16
	case int32:
		return t == Int32
	case float32:
		return t == Float32
	case float64:
		return t == Float64
	case string:
		return t == String
	case bool:
		return t == Bool
	}
	return false
}
