package drawable

import (
	"fmt"
	"sort"
)

// Factory returns a blank instance of one kind.
type Factory func() *Drawable

type entry struct {
	tag     Tag
	kind    Kind
	schema  *Schema
	factory Factory
}

// Registry binds tags, kinds, schemas and factories. It is filled once at start,
// sealed, and read without locking afterwards.
type Registry struct {
	byTag  map[Tag]*entry
	byKind map[Kind]*entry
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{
		byTag:  make(map[Tag]*entry),
		byKind: make(map[Kind]*entry),
	}
}

// Register binds tag to kind. A nil factory defaults to Blank(schema).
func (r *Registry) Register(tag Tag, kind Kind, schema *Schema, factory Factory) error {
	if r.sealed {
		return ErrSealed
	}
	if tag < 0 {
		return fmt.Errorf("drawable: negative tag %d for %s", tag, kind)
	}
	if schema == nil {
		return fmt.Errorf("drawable: nil schema for %s", kind)
	}
	if schema.kind != kind {
		return fmt.Errorf("drawable: schema for %s registered as %s", schema.kind, kind)
	}
	if e, ok := r.byTag[tag]; ok {
		return &DuplicateTagError{Tag: tag, Kind: kind, Existing: e.kind}
	}
	if e, ok := r.byKind[kind]; ok {
		return &DuplicateKindError{Kind: kind, Tag: tag, Existing: e.tag}
	}
	if factory == nil {
		factory = func() *Drawable { return Blank(schema) }
	}
	e := &entry{tag: tag, kind: kind, schema: schema, factory: factory}
	r.byTag[tag] = e
	r.byKind[kind] = e
	return nil
}

// Seal stops further registration.
func (r *Registry) Seal() { r.sealed = true }

func (r *Registry) Sealed() bool { return r.sealed }

// InstantiateBlank returns a fresh instance of the kind bound to tag, with
// defaults restored, position zeroed and nothing dirty.
func (r *Registry) InstantiateBlank(tag Tag) (*Drawable, error) {
	e, ok := r.byTag[tag]
	if !ok {
		return nil, &UnknownTagError{Tag: tag}
	}
	d := e.factory()
	if d == nil || d.schema != e.schema {
		return nil, fmt.Errorf("drawable: factory for tag %d returned a foreign instance", tag)
	}
	d.dirty = 0
	return d, nil
}

func (r *Registry) TagOf(kind Kind) (Tag, error) {
	e, ok := r.byKind[kind]
	if !ok {
		return 0, &UnknownKindError{Kind: kind}
	}
	return e.tag, nil
}

func (r *Registry) KindOf(tag Tag) (Kind, error) {
	e, ok := r.byTag[tag]
	if !ok {
		return 0, &UnknownTagError{Tag: tag}
	}
	return e.kind, nil
}

// SchemaOf returns the schema bound to tag.
func (r *Registry) SchemaOf(tag Tag) (*Schema, error) {
	e, ok := r.byTag[tag]
	if !ok {
		return nil, &UnknownTagError{Tag: tag}
	}
	return e.schema, nil
}

// Tags returns the registered tags in ascending order.
func (r *Registry) Tags() []Tag {
	out := make([]Tag, 0, len(r.byTag))
	for t := range r.byTag {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Bootstrap registers every built-in kind under table and seals the registry.
// A nil table means DefaultTags.
func Bootstrap(table map[Kind]Tag) (*Registry, error) {
	if table == nil {
		table = DefaultTags()
	}
	r := NewRegistry()
	schemas := BuiltinSchemas()
	for _, k := range Kinds {
		tag, ok := table[k]
		if !ok {
			return nil, fmt.Errorf("drawable: no tag for %s", k)
		}
		if err := r.Register(tag, k, schemas[k], nil); err != nil {
			return nil, err
		}
	}
	r.Seal()
	return r, nil
}
