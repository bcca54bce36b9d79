package drawable

// Drawable is one live instance of a kind: its field values in schema order plus
// the set of fields changed since the last sync.
//
// A Drawable has a single writer. Callers sharing one across goroutines must
// provide their own exclusion.
type Drawable struct {
	schema *Schema
	values []any
	dirty  dirtyMask
}

// Blank returns an instance of s with every field at its default and a clean
// dirty set.
func Blank(s *Schema) *Drawable {
	return &Drawable{schema: s, values: s.defaults()}
}

func (d *Drawable) Kind() Kind      { return d.schema.kind }
func (d *Drawable) Schema() *Schema { return d.schema }
func (d *Drawable) X() int16        { return d.GetInt16("x") }
func (d *Drawable) Y() int16        { return d.GetInt16("y") }
func (d *Drawable) Z() int16        { return d.GetInt16("z") }

func (d *Drawable) GetInt16(n string) int16 {
	v, _ := d.Get(n)
	i, _ := v.(int16)
	return i
}

func (d *Drawable) GetInt32(n string) int32 {
	v, _ := d.Get(n)
	i, _ := v.(int32)
	return i
}

func (d *Drawable) GetFloat32(n string) float32 {
	v, _ := d.Get(n)
	f, _ := v.(float32)
	return f
}

func (d *Drawable) GetFloat64(n string) float64 {
	v, _ := d.Get(n)
	f, _ := v.(float64)
	return f
}

func (d *Drawable) GetString(n string) string {
	v, _ := d.Get(n)
	s, _ := v.(string)
	return s
}

func (d *Drawable) GetBool(n string) bool {
	v, _ := d.Get(n)
	b, _ := v.(bool)
	return b
}

// Get returns the current value of name.
func (d *Drawable) Get(name string) (any, bool) {
	i := d.schema.Index(name)
	if i < 0 {
		return nil, false
	}
	return d.values[i], true
}

// Values returns a copy of the values in schema order.
func (d *Drawable) Values() []any {
	out := make([]any, len(d.values))
	copy(out, d.values)
	return out
}

// SetField is the only mutation path. It validates name and value type, stores
// the coerced value as given and marks the field dirty.
func (d *Drawable) SetField(name string, value any) error {
	i := d.schema.Index(name)
	if i < 0 {
		return &UnknownFieldError{Kind: d.schema.kind, Field: name}
	}
	f := d.schema.fields[i]
	v, ok := coerce(f.Type, value)
	if !ok {
		return &TypeMismatchError{Kind: d.schema.kind, Field: name, Want: f.Type, Got: typeName(value)}
	}
	d.values[i] = v
	d.dirty.set(i)
	return nil
}

// Normalize applies the kind's cross-field rules to the current values, the
// way construction and decode do. Fields it rewrites are marked dirty.
func (d *Drawable) Normalize() {
	if d.schema.normalize == nil {
		return
	}
	before := d.Values()
	d.schema.normalize(d.schema, d.values)
	for j := range d.values {
		if d.values[j] != before[j] {
			d.dirty.set(j)
		}
	}
}

// Equal reports whether o has the same kind and field values.
func (d *Drawable) Equal(o *Drawable) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.schema.kind != o.schema.kind || len(d.values) != len(o.values) {
		return false
	}
	for i := range d.values {
		if d.values[i] != o.values[i] {
			return false
		}
	}
	return true
}

// Clone copies values and dirty state.
func (d *Drawable) Clone() *Drawable {
	return &Drawable{schema: d.schema, values: d.Values(), dirty: d.dirty}
}
