package drawable

// Codec turns instances into (tag, values) pairs and back using a registry.
type Codec struct {
	reg *Registry
}

func NewCodec(reg *Registry) *Codec { return &Codec{reg: reg} }

func (c *Codec) Registry() *Registry { return c.reg }

// Encode returns the instance's tag and its values in schema order, positional
// prefix first.
func (c *Codec) Encode(d *Drawable) (Tag, []any, error) {
	tag, err := c.reg.TagOf(d.Kind())
	if err != nil {
		return 0, nil, err
	}
	out := make([]any, len(d.values))
	for i, f := range d.schema.fields {
		v, ok := coerce(f.Type, d.values[i])
		if !ok {
			return 0, nil, &TypeMismatchError{Kind: d.Kind(), Field: f.Name, Want: f.Type, Got: typeName(d.values[i])}
		}
		out[i] = v
	}
	return tag, out, nil
}

// Decode builds a synced instance of the kind bound to tag from values in schema
// order. Nothing is returned unless every value is accepted.
func (c *Codec) Decode(tag Tag, values []any) (*Drawable, error) {
	d, err := c.reg.InstantiateBlank(tag)
	if err != nil {
		return nil, err
	}
	s := d.schema
	if len(values) != s.Len() {
		return nil, &ArityMismatchError{Tag: tag, Kind: s.kind, Want: s.Len(), Got: len(values)}
	}
	decoded := make([]any, len(values))
	for i, f := range s.fields {
		v, ok := coerce(f.Type, values[i])
		if !ok {
			return nil, &TypeMismatchError{Kind: s.kind, Field: f.Name, Want: f.Type, Got: typeName(values[i])}
		}
		decoded[i] = v
	}
	if s.normalize != nil {
		s.normalize(s, decoded)
	}
	d.values = decoded
	d.dirty = 0
	return d, nil
}
