package drawable

import "math/bits"

// dirtyMask has one bit per schema position.
type dirtyMask uint64

func (m *dirtyMask) set(i int)     { *m |= 1 << uint(i) }
func (m dirtyMask) has(i int) bool { return m&(1<<uint(i)) != 0 }
func (m dirtyMask) isZero() bool   { return m == 0 }
func (m dirtyMask) count() int     { return bits.OnesCount64(uint64(m)) }

// FieldUpdate is one changed field and its current value.
type FieldUpdate struct {
	Field string
	Index int
	Value any
}

// IsDirty reports whether any field changed since the last sync.
func (d *Drawable) IsDirty() bool { return !d.dirty.isZero() }

// SnapshotDirty returns the changed field names in schema order and clears the set.
func (d *Drawable) SnapshotDirty() []string {
	m := d.dirty
	d.dirty = 0
	if m.isZero() {
		return nil
	}
	out := make([]string, 0, m.count())
	for i, f := range d.schema.fields {
		if m.has(i) {
			out = append(out, f.Name)
		}
	}
	return out
}

// MarkSynced clears the dirty set without reading it.
func (d *Drawable) MarkSynced() { d.dirty = 0 }

// Changes snapshots the dirty set together with the current values.
func (d *Drawable) Changes() []FieldUpdate {
	m := d.dirty
	d.dirty = 0
	if m.isZero() {
		return nil
	}
	out := make([]FieldUpdate, 0, m.count())
	for i, f := range d.schema.fields {
		if m.has(i) {
			out = append(out, FieldUpdate{Field: f.Name, Index: i, Value: d.values[i]})
		}
	}
	return out
}
