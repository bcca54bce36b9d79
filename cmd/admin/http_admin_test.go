package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hudbridge.ai/internal/bridge"
	"hudbridge.ai/internal/persistence/snapshot"
)

func TestStateCmd_Summary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/v1/state" {
			http.NotFound(rw, r)
			return
		}
		_ = json.NewEncoder(rw).Encode(bridgeState{
			TerminalID: "AB12",
			Tick:       77,
			Metrics: bridge.Metrics{
				Viewers: 2, Producers: 1, Surfaces: 2, Drawables: 5,
				PerSurface: []bridge.SurfaceStat{
					{Name: "GLOBAL", Drawables: 3, NextID: 4},
					{Name: "steve", Drawables: 2, NextID: 9},
				},
			},
		})
	}))
	defer srv.Close()

	st, _, err := fetchState(srv.Client(), srv.URL+"/")
	if err != nil {
		t.Fatalf("fetchState: %v", err)
	}
	var buf bytes.Buffer
	writeState(&buf, st)
	out := buf.String()
	for _, want := range []string{
		"terminal AB12 tick 77",
		"viewers=2 producers=1",
		"surfaces 2 drawables 5",
		"steve            drawables=2 next_id=9",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestStateCmd_Forbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()
	if _, _, err := fetchState(srv.Client(), srv.URL); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("err=%v", err)
	}
}

func TestSnapshotCmd_WaitsForFile(t *testing.T) {
	dataDir := t.TempDir()
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = json.NewEncoder(rw).Encode(snapshotReply{OK: true, Tick: 12})
		go func() {
			time.Sleep(100 * time.Millisecond)
			path := filepath.Join(dataDir, "snapshots", "12.snap.zst")
			_ = snapshot.WriteSnapshot(path, snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, TerminalID: "AB12", Tick: 12}})
		}()
	}))
	defer srv.Close()

	archived := filepath.Join(dataDir, "archives", "AB12")
	if err := os.MkdirAll(archived, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(archived, "3.snap.zst"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tick, err := requestSnapshot(srv.Client(), srv.URL)
	if err != nil || tick != 12 {
		t.Fatalf("requestSnapshot: %d, %v", tick, err)
	}
	h, err := awaitSnapshot(dataDir, tick, 3*time.Second)
	if err != nil {
		t.Fatalf("awaitSnapshot: %v", err)
	}
	if h.TerminalID != "AB12" || h.Tick != 12 {
		t.Fatalf("header: %+v", h)
	}
	if kept, arch := retentionSummary(dataDir, h.TerminalID); kept != 1 || arch != 1 {
		t.Fatalf("kept=%d archived=%d", kept, arch)
	}

	if _, err := awaitSnapshot(dataDir, 99, 100*time.Millisecond); err == nil {
		t.Fatalf("missing snapshot reported as written")
	}
}

func TestSnapshotCmd_Refused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(rw).Encode(snapshotReply{OK: false, Tick: 4, Error: "snapshot sink backpressure"})
	}))
	defer srv.Close()
	_, err := requestSnapshot(srv.Client(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "backpressure") {
		t.Fatalf("err=%v", err)
	}
}
