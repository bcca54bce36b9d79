package snapshot

import (
	"path/filepath"
	"strings"
	"testing"

	"hudbridge.ai/internal/drawable"
	"hudbridge.ai/internal/surface"
)

func testCodec(t *testing.T, table map[drawable.Kind]drawable.Tag) *drawable.Codec {
	t.Helper()
	r, err := drawable.Bootstrap(table)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return drawable.NewCodec(r)
}

func sampleTerminal(t *testing.T, c *drawable.Codec) *surface.Terminal {
	t.Helper()
	term := surface.NewTerminal(123456789, c)
	g := term.Global()
	_, _ = g.Add(drawable.NewBox(1, 2, 30, 40, 0xABCDEF, 0.75))
	gone, _ := g.Add(drawable.NewText(0, 0, "bye", 0))
	_, _ = g.Add(drawable.NewGradient(0, 0, 5, 5, 1, 0.5, 2, 0.25, drawable.GradientHorizontal))
	_, _ = g.Sync()
	g.Remove(gone)

	p, err := term.Surface("steve")
	if err != nil {
		t.Fatalf("Surface: %v", err)
	}
	txt := drawable.NewText(3, 3, "héllo", 0xFFFFFF)
	_ = txt.SetField("scale", float32(0.1))
	_, _ = p.Add(txt)
	_, _ = p.Add(drawable.NewItem(8, 8, 264, 2))
	_, _ = p.Add(drawable.NewLiquid(0, 0, 16, 16, "water"))
	return term
}

func TestSnapshot_RoundTrip(t *testing.T) {
	c := testCodec(t, nil)
	term := sampleTerminal(t, c)

	snap, err := Capture(term, 42, 20)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "snapshots", "42.snap.zst")
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.Tick != 42 || h.TerminalID != term.ID() || h.Version != Version {
		t.Fatalf("header: %+v", h)
	}

	back, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	got, err := Restore(back, c)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got.ID() != term.ID() {
		t.Fatalf("terminal id: %s vs %s", got.ID(), term.ID())
	}

	want := term.Surfaces()
	have := got.Surfaces()
	if len(want) != len(have) {
		t.Fatalf("surfaces: %d vs %d", len(have), len(want))
	}
	for i := range want {
		ws, hs := want[i], have[i]
		if ws.Name() != hs.Name() || ws.Len() != hs.Len() || ws.NextID() != hs.NextID() {
			t.Fatalf("surface %s: len %d/%d next %d/%d", ws.Name(), hs.Len(), ws.Len(), hs.NextID(), ws.NextID())
		}
		for _, e := range ws.Sorted() {
			d, ok := hs.Get(e.ID)
			if !ok || !d.Equal(e.Drawable) {
				t.Fatalf("surface %s: drawable %d differs", ws.Name(), e.ID)
			}
		}
	}

	// Removed ids stay retired after a restore.
	g := got.Global()
	id, _ := g.Add(drawable.NewBox(0, 0, 1, 1, 1, 1))
	if id != 4 {
		t.Fatalf("next id after restore: %d", id)
	}
	// Restored drawables are unseen by peers.
	b, _ := g.Sync()
	if len(b.Full) != 3 {
		t.Fatalf("restored surface should full-encode, got %d", len(b.Full))
	}
}

func TestRestore_TagTableMismatch(t *testing.T) {
	snap, err := Capture(sampleTerminal(t, testCodec(t, nil)), 1, 20)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	other := drawable.DefaultTags()
	other[drawable.KindItem] = 40
	_, err = Restore(snap, testCodec(t, other))
	if err == nil || !strings.Contains(err.Error(), "ITEM") {
		t.Fatalf("expected tag mismatch, got %v", err)
	}
}

func TestReadSnapshot_Missing(t *testing.T) {
	if _, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.snap.zst")); err == nil {
		t.Fatalf("expected error")
	}
}
