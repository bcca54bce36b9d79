package snapshot

import (
	"errors"
	"fmt"

	"hudbridge.ai/internal/drawable"
	"hudbridge.ai/internal/io/framecodec"
	"hudbridge.ai/internal/surface"
)

// Capture copies every surface of t into a snapshot. Dirty sets are left
// alone.
func Capture(t *surface.Terminal, tick uint64, syncRateHz int) (SnapshotV1, error) {
	codec := t.Codec()
	reg := codec.Registry()
	snap := SnapshotV1{
		Header:     Header{Version: Version, TerminalID: t.ID(), Tick: tick},
		SyncRateHz: syncRateHz,
		Tags:       map[string]int{},
	}
	for _, tag := range reg.Tags() {
		k, err := reg.KindOf(tag)
		if err != nil {
			return snap, err
		}
		snap.Tags[k.String()] = int(tag)
	}
	var errs []error
	for _, s := range t.Surfaces() {
		sv := SurfaceV1{Name: s.Name(), NextID: uint32(s.NextID())}
		for _, e := range s.Sorted() {
			frame, err := framecodec.AppendFull(nil, codec, e.Drawable)
			if err != nil {
				errs = append(errs, fmt.Errorf("surface %s: %d: %w", s.Name(), e.ID, err))
				continue
			}
			sv.Drawables = append(sv.Drawables, DrawableV1{ID: uint32(e.ID), Frame: frame})
		}
		snap.Surfaces = append(snap.Surfaces, sv)
	}
	return snap, errors.Join(errs...)
}

// Restore rebuilds a terminal from snap. The registry must bind every stored
// kind to the same tag, since the frames carry tags.
func Restore(snap SnapshotV1, codec *drawable.Codec) (*surface.Terminal, error) {
	guid, err := surface.ParseTerminalID(snap.Header.TerminalID)
	if err != nil {
		return nil, err
	}
	reg := codec.Registry()
	for name, tag := range snap.Tags {
		k, ok := drawable.ParseKind(name)
		if !ok {
			return nil, fmt.Errorf("snapshot: unknown kind %q", name)
		}
		have, err := reg.TagOf(k)
		if err != nil {
			return nil, err
		}
		if int(have) != tag {
			return nil, fmt.Errorf("snapshot: %s stored under tag %d, registry has %d", k, tag, have)
		}
	}

	t := surface.NewTerminal(guid, codec)
	for _, sv := range snap.Surfaces {
		s, err := t.Surface(sv.Name)
		if err != nil {
			return nil, err
		}
		for _, dv := range sv.Drawables {
			d, n, err := framecodec.DecodeFull(dv.Frame, codec)
			if err != nil {
				return nil, fmt.Errorf("surface %s: %d: %w", sv.Name, dv.ID, err)
			}
			if n != len(dv.Frame) {
				return nil, fmt.Errorf("surface %s: %d: %d trailing bytes", sv.Name, dv.ID, len(dv.Frame)-n)
			}
			if err := s.Restore(surface.ID(dv.ID), d); err != nil {
				return nil, err
			}
		}
		s.SetNextID(surface.ID(sv.NextID))
	}
	return t, nil
}
