package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hudbridge.ai/internal/bridge"
	"hudbridge.ai/internal/drawable"
	"hudbridge.ai/internal/surface"
)

func newTestRuntime(t *testing.T) *bridge.Runtime {
	t.Helper()
	reg, err := drawable.Bootstrap(nil)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	rt, err := bridge.New(bridge.Config{SyncRateHz: 20}, surface.NewTerminal(0xABC, drawable.NewCodec(reg)), nil)
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}
	return rt
}

func TestLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	if got := latestSnapshot(dir); got != "" {
		t.Fatalf("empty dir: %q", got)
	}
	snaps := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(filepath.Join(snaps, "99999.snap.zst"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"10.snap.zst", "1200.snap.zst", "300.snap.zst", "junk.snap.zst", "5000.snap.zst.tmp"} {
		if err := os.WriteFile(filepath.Join(snaps, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := latestSnapshot(dir), filepath.Join(snaps, "1200.snap.zst"); got != want {
		t.Fatalf("latest=%q want %q", got, want)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:5000":     true,
		"::1":            true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("%q: got %v want %v", in, got, want)
		}
	}
}

func TestBuildMux_HealthMetricsAdmin(t *testing.T) {
	rt := newTestRuntime(t)
	mux := buildMux(rt, nil, 16, true, log.New(io.Discard, "", 0))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != 200 || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`hud_bridge_tick{terminal="` + rt.TerminalID() + `"} 0`,
		`hud_bridge_sessions{terminal="` + rt.TerminalID() + `",role="viewer"} 0`,
		"# TYPE hud_bridge_dropped_sessions_total counter",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "hud_index_") {
		t.Fatalf("index metrics without an index:\n%s", body)
	}

	// httptest requests come from a non-loopback address.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote admin: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	var state struct {
		TerminalID string `json:"terminal_id"`
		Tick       uint64 `json:"tick"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.TerminalID != rt.TerminalID() {
		t.Fatalf("state: %+v", state)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/snapshot", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET snapshot: %d", rec.Code)
	}
}

func TestBuildMux_AdminDisabled(t *testing.T) {
	mux := buildMux(newTestRuntime(t), nil, 16, false, log.New(io.Discard, "", 0))
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("disabled admin: %d", rec.Code)
	}
}
