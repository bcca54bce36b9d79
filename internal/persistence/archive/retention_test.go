package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"hudbridge.ai/internal/persistence/snapshot"
)

func writeSnap(t *testing.T, dataDir string, tick uint64) {
	t.Helper()
	path := filepath.Join(dataDir, "snapshots", fmt.Sprintf("%d.snap.zst", tick))
	err := snapshot.WriteSnapshot(path, snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, TerminalID: "T-9", Tick: tick},
		Tags:   map[string]int{"BOX": 1},
	})
	if err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
}

func TestRetain_ArchivesOldest(t *testing.T) {
	dir := t.TempDir()
	for _, tick := range []uint64{1200, 30, 600, 2400} {
		writeSnap(t, dir, tick)
	}
	// Not a periodic snapshot; never touched.
	if err := os.WriteFile(filepath.Join(dir, "snapshots", "30.rollback.snap.zst"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	archived, err := Retain(dir, 2)
	if err != nil {
		t.Fatalf("Retain: %v", err)
	}
	want := []string{
		filepath.Join(dir, "archives", "T-9", "30.snap.zst"),
		filepath.Join(dir, "archives", "T-9", "600.snap.zst"),
	}
	if len(archived) != 2 || archived[0] != want[0] || archived[1] != want[1] {
		t.Fatalf("archived=%v want %v", archived, want)
	}
	for _, name := range []string{"1200.snap.zst", "2400.snap.zst", "30.rollback.snap.zst"} {
		if _, err := os.Stat(filepath.Join(dir, "snapshots", name)); err != nil {
			t.Fatalf("%s should stay: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "snapshots", "600.snap.zst")); !os.IsNotExist(err) {
		t.Fatalf("600 should have moved: %v", err)
	}

	h, err := snapshot.ReadHeader(want[1])
	if err != nil || h.Tick != 600 {
		t.Fatalf("archived snapshot unreadable: %+v %v", h, err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "archives", "T-9", "600.meta.json"))
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	var meta ArchiveMeta
	if err := json.Unmarshal(b, &meta); err != nil {
		t.Fatalf("meta json: %v", err)
	}
	if meta.Tick != 600 || meta.TerminalID != "T-9" || meta.Snapshot != "600.snap.zst" || meta.ArchivedAt == "" {
		t.Fatalf("meta=%+v", meta)
	}

	// Already within the limit.
	archived, err = Retain(dir, 2)
	if err != nil || len(archived) != 0 {
		t.Fatalf("second Retain: %v %v", archived, err)
	}
}

func TestRetain_KeepAllOrMissingDir(t *testing.T) {
	dir := t.TempDir()
	if archived, err := Retain(dir, 3); err != nil || archived != nil {
		t.Fatalf("missing dir: %v %v", archived, err)
	}
	writeSnap(t, dir, 1)
	writeSnap(t, dir, 2)
	if archived, err := Retain(dir, 0); err != nil || archived != nil {
		t.Fatalf("keep=0: %v %v", archived, err)
	}
}
