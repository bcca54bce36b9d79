package surface

import (
	"errors"
	"testing"

	"hudbridge.ai/internal/drawable"
)

func testCodec(t *testing.T) *drawable.Codec {
	t.Helper()
	r, err := drawable.Bootstrap(nil)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return drawable.NewCodec(r)
}

func TestSync_FullThenPartial(t *testing.T) {
	s := New(GlobalMarker, testCodec(t))
	id, err := s.Add(drawable.NewBox(1, 1, 10, 10, 0xFF0000, 1))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	// Changes before the first sync are folded into the full encode.
	if err := s.SetField(id, "width", 20); err != nil {
		t.Fatalf("SetField: %v", err)
	}

	b, err := s.Sync()
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(b.Full) != 1 || len(b.Partial) != 0 {
		t.Fatalf("first sync: full=%d partial=%d", len(b.Full), len(b.Partial))
	}
	if b.Full[0].ID != id || b.Full[0].Tag != 1 || b.Full[0].Values[3] != int16(20) {
		t.Fatalf("full update: %+v", b.Full[0])
	}

	b, _ = s.Sync()
	if !b.Empty() {
		t.Fatalf("idle cycle sent %+v", b)
	}

	_ = s.SetField(id, "color", int32(0x00FF00))
	b, _ = s.Sync()
	if len(b.Full) != 0 || len(b.Partial) != 1 {
		t.Fatalf("partial cycle: %+v", b)
	}
	p := b.Partial[0]
	if p.ID != id || p.Field != "color" || p.Value != int32(0x00FF00) || p.Index != 5 {
		t.Fatalf("partial update: %+v", p)
	}
}

func TestSync_Removals(t *testing.T) {
	s := New(GlobalMarker, testCodec(t))
	a, _ := s.Add(drawable.NewText(0, 0, "a", 0))
	_, _ = s.Sync()

	b, _ := s.Add(drawable.NewText(0, 0, "b", 0))
	if !s.Remove(a) || !s.Remove(b) {
		t.Fatalf("Remove failed")
	}
	if s.Remove(a) {
		t.Fatalf("double remove reported success")
	}
	batch, _ := s.Sync()
	if len(batch.Removed) != 1 || batch.Removed[0] != a {
		t.Fatalf("removed: %v (an unseen drawable must not be reported)", batch.Removed)
	}
	if len(batch.Full) != 0 {
		t.Fatalf("removed drawable encoded: %+v", batch.Full)
	}
}

func TestSync_Clear(t *testing.T) {
	s := New(GlobalMarker, testCodec(t))
	first, _ := s.Add(drawable.NewItem(0, 0, 1, 0))
	_, _ = s.Sync()
	s.Remove(first)
	s.Clear()
	id, _ := s.Add(drawable.NewItem(0, 0, 2, 0))
	if id <= first {
		t.Fatalf("ids reused after clear: %d <= %d", id, first)
	}
	b, _ := s.Sync()
	if !b.Clear || len(b.Removed) != 0 || len(b.Full) != 1 {
		t.Fatalf("clear batch: %+v", b)
	}
}

func TestSnapshot_LeavesDirtyAlone(t *testing.T) {
	s := New(GlobalMarker, testCodec(t))
	id, _ := s.Add(drawable.NewLiquid(0, 0, 4, 4, "water"))
	_, _ = s.Sync()
	_ = s.SetField(id, "fluid", "lava")

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !snap.Clear || len(snap.Full) != 1 || snap.Full[0].Values[5] != "lava" {
		t.Fatalf("snapshot: %+v", snap)
	}
	b, _ := s.Sync()
	if len(b.Partial) != 1 || b.Partial[0].Field != "fluid" {
		t.Fatalf("pending diff lost: %+v", b)
	}
}

func TestSetField_Errors(t *testing.T) {
	s := New(GlobalMarker, testCodec(t))
	if err := s.SetField(99, "x", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	id, _ := s.Add(drawable.NewBox(0, 0, 1, 1, 0, 1))
	var uf *drawable.UnknownFieldError
	if err := s.SetField(id, "nope", 1); !errors.As(err, &uf) {
		t.Fatalf("expected UnknownFieldError, got %v", err)
	}
}

func TestSorted_PaintOrder(t *testing.T) {
	s := New(GlobalMarker, testCodec(t))
	top := drawable.NewBox(0, 0, 1, 1, 0, 1)
	_ = top.SetField("z", 5)
	a, _ := s.Add(top)
	b, _ := s.Add(drawable.NewBox(0, 0, 1, 1, 0, 1))
	c, _ := s.Add(drawable.NewBox(0, 0, 1, 1, 0, 1))
	got := s.Sorted()
	if len(got) != 3 || got[0].ID != b || got[1].ID != c || got[2].ID != a {
		t.Fatalf("paint order: %v %v %v", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestRestore(t *testing.T) {
	s := New("steve", testCodec(t))
	if err := s.Restore(7, drawable.NewText(0, 0, "x", 0)); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if err := s.Restore(7, drawable.NewText(0, 0, "y", 0)); err == nil {
		t.Fatalf("expected duplicate restore to fail")
	}
	if s.NextID() != 8 {
		t.Fatalf("next id: got %d want 8", s.NextID())
	}
	b, _ := s.Sync()
	if len(b.Full) != 1 || b.Full[0].ID != 7 {
		t.Fatalf("restored drawable not sent in full: %+v", b)
	}
}
