package mirror

import (
	"encoding/json"
	"errors"
	"testing"

	"hudbridge.ai/internal/drawable"
	"hudbridge.ai/internal/io/synccodec"
	"hudbridge.ai/internal/protocol"
	"hudbridge.ai/internal/surface"
)

func testCodec(t *testing.T) *drawable.Codec {
	t.Helper()
	r, err := drawable.Bootstrap(nil)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return drawable.NewCodec(r)
}

// wire pushes a batch through JSON, as the transport does.
func wire(t *testing.T, tick uint64, b surface.Batch) protocol.SyncMsg {
	t.Helper()
	msg, err := synccodec.BuildSync(tick, b)
	if err != nil {
		t.Fatalf("BuildSync: %v", err)
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out protocol.SyncMsg
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func requireSame(t *testing.T, s *surface.Surface, m *Mirror) {
	t.Helper()
	if s.Len() != m.Len() {
		t.Fatalf("len: surface %d mirror %d", s.Len(), m.Len())
	}
	for _, e := range s.Sorted() {
		got, ok := m.Get(uint32(e.ID))
		if !ok {
			t.Fatalf("mirror missing %d", e.ID)
		}
		if !got.Equal(e.Drawable) {
			t.Fatalf("%d: mirror %v surface %v", e.ID, got.Values(), e.Drawable.Values())
		}
		if got.IsDirty() {
			t.Fatalf("%d: mirror copy is dirty", e.ID)
		}
	}
}

func TestMirror_FollowsProducer(t *testing.T) {
	c := testCodec(t)
	s := surface.New("GLOBAL", c)
	m := New(c, "GLOBAL")

	box, _ := s.Add(drawable.NewBox(0, 0, 10, 10, 0xFF0000, 0.5))
	txt, _ := s.Add(drawable.NewText(2, 2, "hello", 0xFFFFFF))
	grad, _ := s.Add(drawable.NewGradient(0, 0, 4, 4, 1, 1, 2, 1, drawable.GradientVertical))

	sync := func(tick uint64) {
		b, err := s.Sync()
		if err != nil {
			t.Fatalf("Sync: %v", err)
		}
		if err := m.Apply(wire(t, tick, b)); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		requireSame(t, s, m)
	}
	sync(1)

	_ = s.SetField(box, "color", int32(0x00FF00))
	_ = s.SetField(txt, "scale", float32(0.1))
	_ = s.SetField(grad, "gradient", int32(drawable.GradientSingle))
	sync(2)

	s.Remove(txt)
	_, _ = s.Add(drawable.NewItem(5, 5, 264, 0))
	sync(3)

	s.Clear()
	_, _ = s.Add(drawable.NewLiquid(1, 1, 8, 8, "water"))
	sync(4)

	if m.Tick() != 4 {
		t.Fatalf("tick: %d", m.Tick())
	}
}

func TestMirror_GradientPartialsKeepColour(t *testing.T) {
	c := testCodec(t)
	s := surface.New("GLOBAL", c)
	m := New(c, "GLOBAL")
	id, _ := s.Add(drawable.NewGradient(0, 0, 4, 4, 1, 1, 1, 1, drawable.GradientSingle))
	b, _ := s.Sync()
	_ = m.Apply(wire(t, 1, b))

	_ = s.SetField(id, "gradient", drawable.GradientVertical)
	_ = s.SetField(id, "color2", int32(7))
	b, _ = s.Sync()
	if err := m.Apply(wire(t, 2, b)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	requireSame(t, s, m)
	if d, _ := m.Get(uint32(id)); d.GetInt32("color2") != 7 {
		t.Fatalf("color2=%d", d.GetInt32("color2"))
	}
}

func TestMirror_SnapshotJoinsLate(t *testing.T) {
	c := testCodec(t)
	s := surface.New("steve", c)
	id, _ := s.Add(drawable.NewBox(0, 0, 1, 1, 1, 1))
	_, _ = s.Sync()
	_ = s.SetField(id, "width", int16(9))

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	m := New(c, "steve")
	// Stale state from before the join is discarded by Clear.
	m.items[77] = drawable.NewBox(0, 0, 0, 0, 0, 0)
	if err := m.Apply(wire(t, 9, snap)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	requireSame(t, s, m)
}

func TestMirror_BadEntriesAreReported(t *testing.T) {
	c := testCodec(t)
	m := New(c, "GLOBAL")
	good := protocol.FullUpdate{ID: 1, Tag: 2, Values: []json.RawMessage{
		json.RawMessage(`0`), json.RawMessage(`0`), json.RawMessage(`0`),
		json.RawMessage(`"hi"`), json.RawMessage(`255`), json.RawMessage(`1`), json.RawMessage(`1`),
	}}
	msg := protocol.SyncMsg{
		Surface: "GLOBAL",
		Full: []protocol.FullUpdate{
			good,
			{ID: 2, Tag: 999, Values: good.Values},
		},
		Partial: []protocol.PartialUpdate{
			{ID: 1, Field: "color", Value: json.RawMessage(`"red"`)},
			{ID: 1, Field: "nope", Value: json.RawMessage(`1`)},
			{ID: 5, Field: "x", Value: json.RawMessage(`1`)},
			{ID: 1, Field: "x", Value: json.RawMessage(`7`)},
		},
	}
	err := m.Apply(msg)
	if err == nil {
		t.Fatalf("expected errors")
	}
	var ut *drawable.UnknownTagError
	var tm *drawable.TypeMismatchError
	var uf *drawable.UnknownFieldError
	if !errors.As(err, &ut) || !errors.As(err, &tm) || !errors.As(err, &uf) || !errors.Is(err, ErrUnknownInstance) {
		t.Fatalf("error set: %v", err)
	}
	d, ok := m.Get(1)
	if !ok {
		t.Fatalf("good instance dropped")
	}
	if d.GetInt32("color") != 255 || d.X() != 7 {
		t.Fatalf("failed partial touched the instance or good partial lost: %v", d.Values())
	}
	if _, ok := m.Get(2); ok {
		t.Fatalf("unknown tag instance stored")
	}
}

func TestMirror_WrongSurface(t *testing.T) {
	m := New(testCodec(t), "GLOBAL")
	if err := m.Apply(protocol.SyncMsg{Surface: "alex"}); err == nil {
		t.Fatalf("expected surface mismatch")
	}
}

func TestMirror_SortedPaintOrder(t *testing.T) {
	c := testCodec(t)
	s := surface.New("GLOBAL", c)
	low := drawable.NewBox(0, 0, 1, 1, 1, 1)
	high := drawable.NewBox(0, 0, 1, 1, 2, 1)
	_ = high.SetField("z", int16(-1))
	_, _ = s.Add(low)
	_, _ = s.Add(high)
	b, _ := s.Sync()
	m := New(c, "GLOBAL")
	_ = m.Apply(wire(t, 1, b))
	got := m.Sorted()
	if len(got) != 2 || got[0].GetInt32("color") != 2 {
		t.Fatalf("paint order wrong")
	}
}
