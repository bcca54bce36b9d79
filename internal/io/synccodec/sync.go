package synccodec

import (
	"errors"
	"fmt"

	"hudbridge.ai/internal/drawable"
	"hudbridge.ai/internal/protocol"
	"hudbridge.ai/internal/surface"
)

// BuildSync renders a surface batch as a SYNC message. Entries that cannot be
// encoded are left out and reported; the message is still usable.
func BuildSync(tick uint64, b surface.Batch) (protocol.SyncMsg, error) {
	msg := protocol.SyncMsg{
		Type:            protocol.TypeSync,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Surface:         b.Surface,
		Clear:           b.Clear,
	}
	var errs []error
	for _, f := range b.Full {
		values, err := EncodeValues(f.Values)
		if err != nil {
			errs = append(errs, fmt.Errorf("full %d: %w", f.ID, err))
			continue
		}
		msg.Full = append(msg.Full, protocol.FullUpdate{ID: uint32(f.ID), Tag: int(f.Tag), Values: values})
	}
	for _, p := range b.Partial {
		v, err := EncodeValue(p.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("partial %d.%s: %w", p.ID, p.Field, err))
			continue
		}
		msg.Partial = append(msg.Partial, protocol.PartialUpdate{ID: uint32(p.ID), Field: p.Field, Value: v})
	}
	for _, id := range b.Removed {
		msg.Removed = append(msg.Removed, uint32(id))
	}
	return msg, errors.Join(errs...)
}

// DecodeFull reconstructs the drawable carried by one full update.
func DecodeFull(c *drawable.Codec, u protocol.FullUpdate) (*drawable.Drawable, error) {
	tag := drawable.Tag(u.Tag)
	s, err := c.Registry().SchemaOf(tag)
	if err != nil {
		return nil, err
	}
	values, err := DecodeValues(s, u.Values)
	if err != nil {
		return nil, err
	}
	return c.Decode(tag, values)
}

// BuildCatalog lists every registered kind with its tag and field layout.
func BuildCatalog(r *drawable.Registry) []protocol.KindCatalog {
	tags := r.Tags()
	out := make([]protocol.KindCatalog, 0, len(tags))
	for _, tag := range tags {
		s, err := r.SchemaOf(tag)
		if err != nil {
			continue
		}
		kc := protocol.KindCatalog{Kind: s.Kind().String(), Tag: int(tag)}
		for _, f := range s.Fields() {
			kc.Fields = append(kc.Fields, protocol.FieldCatalog{Name: f.Name, Type: f.Type.String(), Default: f.Default})
		}
		out = append(out, kc)
	}
	return out
}
