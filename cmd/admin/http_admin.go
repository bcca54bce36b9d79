package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hudbridge.ai/internal/bridge"
	"hudbridge.ai/internal/persistence/snapshot"
)

// bridgeState is the body of GET /admin/v1/state.
type bridgeState struct {
	TerminalID string         `json:"terminal_id"`
	Tick       uint64         `json:"tick"`
	Metrics    bridge.Metrics `json:"metrics"`
}

type snapshotReply struct {
	OK    bool   `json:"ok"`
	Tick  uint64 `json:"tick"`
	Error string `json:"error,omitempty"`
}

func adminURL(base, path string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + path
}

// stateCmd prints the running bridge's sessions and surfaces.
func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "bridge base url")
	raw := fs.Bool("json", false, "print the raw JSON body")
	_ = fs.Parse(args)

	cl := &http.Client{Timeout: 5 * time.Second}
	st, body, err := fetchState(cl, *baseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "state:", err)
		os.Exit(1)
	}
	if *raw {
		fmt.Println(strings.TrimSpace(string(body)))
		return
	}
	writeState(os.Stdout, st)
}

func fetchState(cl *http.Client, base string) (bridgeState, []byte, error) {
	var st bridgeState
	resp, err := cl.Get(adminURL(base, "/admin/v1/state"))
	if err != nil {
		return st, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return st, nil, err
	}
	if resp.StatusCode/100 != 2 {
		return st, body, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, &st); err != nil {
		return st, body, fmt.Errorf("decode: %w", err)
	}
	return st, body, nil
}

func writeState(w io.Writer, st bridgeState) {
	m := st.Metrics
	fmt.Fprintf(w, "terminal %s tick %d\n", st.TerminalID, st.Tick)
	fmt.Fprintf(w, "sessions viewers=%d producers=%d dropped=%d\n", m.Viewers, m.Producers, m.Dropped)
	fmt.Fprintf(w, "last tick ops=%d sync_batches=%d sync_bytes=%d\n", m.Ops, m.SyncBatches, m.SyncBytes)
	fmt.Fprintf(w, "surfaces %d drawables %d\n", m.Surfaces, m.Drawables)
	for _, s := range m.PerSurface {
		fmt.Fprintf(w, "  %-16s drawables=%d next_id=%d\n", s.Name, s.Drawables, s.NextID)
	}
}

// snapshotCmd asks the bridge for a snapshot. With -data it also waits for the
// file to land and reports what retention left behind.
func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "bridge base url")
	dataDir := fs.String("data", "", "bridge data directory (optional; enables the on-disk check)")
	wait := fs.Duration("wait", 5*time.Second, "how long to wait for the snapshot file")
	_ = fs.Parse(args)

	cl := &http.Client{Timeout: 10 * time.Second}
	tick, err := requestSnapshot(cl, *baseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot requested tick=%d\n", tick)
	if strings.TrimSpace(*dataDir) == "" {
		return
	}

	h, err := awaitSnapshot(*dataDir, tick, *wait)
	if err != nil {
		fmt.Fprintln(os.Stderr, "snapshot:", err)
		os.Exit(1)
	}
	kept, archived := retentionSummary(*dataDir, h.TerminalID)
	fmt.Printf("written terminal=%s tick=%d kept=%d archived=%d\n", h.TerminalID, h.Tick, kept, archived)
}

func requestSnapshot(cl *http.Client, base string) (uint64, error) {
	resp, err := cl.Post(adminURL(base, "/admin/v1/snapshot"), "application/json", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	var rep snapshotReply
	if err := json.Unmarshal(body, &rep); err != nil {
		return 0, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if !rep.OK {
		return rep.Tick, fmt.Errorf("bridge refused at tick %d: %s", rep.Tick, rep.Error)
	}
	return rep.Tick, nil
}

// awaitSnapshot polls for <data>/snapshots/<tick>.snap.zst. The bridge writes
// it from a separate goroutine after answering the request.
func awaitSnapshot(dataDir string, tick uint64, wait time.Duration) (snapshot.Header, error) {
	path := filepath.Join(dataDir, "snapshots", fmt.Sprintf("%d.snap.zst", tick))
	deadline := time.Now().Add(wait)
	for {
		h, err := snapshot.ReadHeader(path)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, os.ErrNotExist) || time.Now().After(deadline) {
			return h, err
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// retentionSummary counts live snapshots and the ones moved under
// archives/<terminal>.
func retentionSummary(dataDir, terminalID string) (kept, archived int) {
	kept = len(snapshotFiles(dataDir))
	matches, _ := filepath.Glob(filepath.Join(dataDir, "archives", terminalID, "*.snap.zst"))
	return kept, len(matches)
}
