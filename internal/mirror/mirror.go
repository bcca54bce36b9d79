// Package mirror rebuilds a surface on the receiving side of the sync
// protocol.
package mirror

import (
	"errors"
	"fmt"
	"sort"

	"hudbridge.ai/internal/drawable"
	"hudbridge.ai/internal/io/synccodec"
	"hudbridge.ai/internal/protocol"
)

var ErrUnknownInstance = errors.New("mirror: no such drawable")

// Mirror holds the consumer's copy of one surface. Instances it holds are
// always clean: every applied update is marked synced.
type Mirror struct {
	codec   *drawable.Codec
	surface string
	tick    uint64
	items   map[uint32]*drawable.Drawable
}

func New(codec *drawable.Codec, surface string) *Mirror {
	return &Mirror{codec: codec, surface: surface, items: make(map[uint32]*drawable.Drawable)}
}

func (m *Mirror) Surface() string { return m.surface }
func (m *Mirror) Tick() uint64    { return m.tick }
func (m *Mirror) Len() int        { return len(m.items) }

func (m *Mirror) Get(id uint32) (*drawable.Drawable, bool) {
	d, ok := m.items[id]
	return d, ok
}

// Apply folds one SYNC message into the mirror. A bad entry is skipped and
// reported; the rest of the message still applies.
func (m *Mirror) Apply(msg protocol.SyncMsg) error {
	if msg.Surface != m.surface {
		return fmt.Errorf("mirror: sync for surface %q, mirroring %q", msg.Surface, m.surface)
	}
	if msg.Tick > m.tick {
		m.tick = msg.Tick
	}
	if msg.Clear {
		m.items = make(map[uint32]*drawable.Drawable)
	}

	var errs []error
	for _, f := range msg.Full {
		d, err := synccodec.DecodeFull(m.codec, f)
		if err != nil {
			errs = append(errs, fmt.Errorf("mirror: full %d (tag %d): %w", f.ID, f.Tag, err))
			continue
		}
		m.items[f.ID] = d
	}
	for _, p := range msg.Partial {
		if err := m.patch(p); err != nil {
			errs = append(errs, fmt.Errorf("mirror: partial %d.%s: %w", p.ID, p.Field, err))
		}
	}
	for _, id := range msg.Removed {
		delete(m.items, id)
	}
	return errors.Join(errs...)
}

func (m *Mirror) patch(p protocol.PartialUpdate) error {
	d, ok := m.items[p.ID]
	if !ok {
		return ErrUnknownInstance
	}
	s := d.Schema()
	i := s.Index(p.Field)
	if i < 0 {
		return &drawable.UnknownFieldError{Kind: s.Kind(), Field: p.Field}
	}
	v, err := synccodec.DecodeValue(s.Kind(), s.Field(i), p.Value)
	if err != nil {
		return err
	}
	if err := d.SetField(p.Field, v); err != nil {
		return err
	}
	d.MarkSynced()
	return nil
}

// Sorted returns the held drawables in paint order: z ascending, then id.
func (m *Mirror) Sorted() []*drawable.Drawable {
	ids := make([]uint32, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		zi, zj := m.items[ids[i]].Z(), m.items[ids[j]].Z()
		if zi != zj {
			return zi < zj
		}
		return ids[i] < ids[j]
	})
	out := make([]*drawable.Drawable, len(ids))
	for i, id := range ids {
		out[i] = m.items[id]
	}
	return out
}
