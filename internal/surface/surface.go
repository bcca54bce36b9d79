package surface

import (
	"errors"
	"fmt"
	"sort"

	"hudbridge.ai/internal/drawable"
)

// ID identifies a drawable within one surface. IDs are never reused.
type ID uint32

var ErrNotFound = errors.New("surface: no such drawable")

// Full is a complete encode of one drawable.
type Full struct {
	ID     ID
	Tag    drawable.Tag
	Values []any
}

// Partial is one changed field of a drawable the peers already hold.
type Partial struct {
	ID    ID
	Field string
	Index int
	Value any
}

// Batch is what one sync cycle sends for a surface. Clear applies first, then
// Full, Partial and Removed.
type Batch struct {
	Surface string
	Clear   bool
	Full    []Full
	Partial []Partial
	Removed []ID
}

func (b Batch) Empty() bool {
	return !b.Clear && len(b.Full) == 0 && len(b.Partial) == 0 && len(b.Removed) == 0
}

// Entry pairs an ID with its drawable.
type Entry struct {
	ID       ID
	Drawable *drawable.Drawable
}

// Surface is a collection of drawables that is synchronised as a unit. It
// decides, per sync cycle, which instances peers have never seen (full encode)
// and which only changed (partial update).
//
// A Surface is owned by one goroutine.
type Surface struct {
	name  string
	codec *drawable.Codec

	nextID  ID
	items   map[ID]*drawable.Drawable
	fresh   map[ID]struct{}
	removed []ID
	cleared bool
}

func New(name string, codec *drawable.Codec) *Surface {
	return &Surface{
		name:   name,
		codec:  codec,
		nextID: 1,
		items:  make(map[ID]*drawable.Drawable),
		fresh:  make(map[ID]struct{}),
	}
}

func (s *Surface) Name() string { return s.name }
func (s *Surface) Len() int     { return len(s.items) }

// NextID is the ID the next Add will assign.
func (s *Surface) NextID() ID { return s.nextID }

// Add takes ownership of d and returns its new ID. The kind must be registered.
func (s *Surface) Add(d *drawable.Drawable) (ID, error) {
	if d == nil {
		return 0, fmt.Errorf("surface %s: nil drawable", s.name)
	}
	if _, err := s.codec.Registry().TagOf(d.Kind()); err != nil {
		return 0, err
	}
	id := s.nextID
	s.nextID++
	s.items[id] = d
	s.fresh[id] = struct{}{}
	return id, nil
}

// Restore puts d back under a known id, as when loading persisted state. The
// drawable is treated as unseen by peers.
func (s *Surface) Restore(id ID, d *drawable.Drawable) error {
	if id == 0 {
		return fmt.Errorf("surface %s: id 0 is reserved", s.name)
	}
	if _, ok := s.items[id]; ok {
		return fmt.Errorf("surface %s: id %d restored twice", s.name, id)
	}
	s.items[id] = d
	s.fresh[id] = struct{}{}
	if id >= s.nextID {
		s.nextID = id + 1
	}
	return nil
}

// SetNextID raises the ID counter to n. It never lowers it, so IDs stay unique
// across a restore.
func (s *Surface) SetNextID(n ID) {
	if n > s.nextID {
		s.nextID = n
	}
}

func (s *Surface) Get(id ID) (*drawable.Drawable, bool) {
	d, ok := s.items[id]
	return d, ok
}

// SetField mutates one field of drawable id.
func (s *Surface) SetField(id ID, name string, value any) error {
	d, ok := s.items[id]
	if !ok {
		return fmt.Errorf("surface %s: %d: %w", s.name, id, ErrNotFound)
	}
	return d.SetField(name, value)
}

func (s *Surface) Remove(id ID) bool {
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	if _, ok := s.fresh[id]; ok {
		delete(s.fresh, id)
		return true
	}
	s.removed = append(s.removed, id)
	return true
}

// Clear drops every drawable. IDs keep counting up.
func (s *Surface) Clear() {
	s.items = make(map[ID]*drawable.Drawable)
	s.fresh = make(map[ID]struct{})
	s.removed = nil
	s.cleared = true
}

func (s *Surface) ids() []ID {
	ids := make([]ID, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Sorted returns the drawables in paint order: z ascending, then id.
func (s *Surface) Sorted() []Entry {
	out := make([]Entry, 0, len(s.items))
	for _, id := range s.ids() {
		out = append(out, Entry{ID: id, Drawable: s.items[id]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Drawable.Z() < out[j].Drawable.Z() })
	return out
}

// Snapshot is the full state for a peer with no prior knowledge of the surface.
// It leaves dirty sets alone: other peers still need the pending diffs.
func (s *Surface) Snapshot() (Batch, error) {
	b := Batch{Surface: s.name, Clear: true}
	var errs []error
	for _, id := range s.ids() {
		tag, values, err := s.codec.Encode(s.items[id])
		if err != nil {
			errs = append(errs, fmt.Errorf("surface %s: %d: %w", s.name, id, err))
			continue
		}
		b.Full = append(b.Full, Full{ID: id, Tag: tag, Values: values})
	}
	return b, errors.Join(errs...)
}

// Sync runs one sync cycle: unseen drawables are fully encoded, the rest send
// their dirty fields, and the cycle's removals are reported. Dirty sets are
// consumed.
func (s *Surface) Sync() (Batch, error) {
	b := Batch{Surface: s.name, Clear: s.cleared, Removed: s.removed}
	s.cleared = false
	s.removed = nil

	var errs []error
	for _, id := range s.ids() {
		d := s.items[id]
		if _, ok := s.fresh[id]; ok {
			tag, values, err := s.codec.Encode(d)
			if err != nil {
				errs = append(errs, fmt.Errorf("surface %s: %d: %w", s.name, id, err))
				continue
			}
			d.MarkSynced()
			b.Full = append(b.Full, Full{ID: id, Tag: tag, Values: values})
			continue
		}
		for _, ch := range d.Changes() {
			b.Partial = append(b.Partial, Partial{ID: id, Field: ch.Field, Index: ch.Index, Value: ch.Value})
		}
	}
	s.fresh = make(map[ID]struct{})
	return b, errors.Join(errs...)
}
