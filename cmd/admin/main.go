package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"hudbridge.ai/internal/bridge"
	"hudbridge.ai/internal/persistence/snapshot"
	"hudbridge.ai/internal/protocol"
	"hudbridge.ai/internal/surface"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the snapshots on disk, oldest first.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	for _, path := range snapshotFiles(*dataDir) {
		h, err := snapshot.ReadHeader(path)
		if err != nil {
			fmt.Printf("%s\tunreadable: %v\n", filepath.Base(path), err)
			continue
		}
		fmt.Printf("%s\tterminal=%s tick=%d v%d\n", filepath.Base(path), h.TerminalID, h.Tick, h.Version)
	}
}

// rollbackCmd removes every drawable a session added in a tick window from a
// snapshot and writes the result as a new snapshot.
func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	snapPath := fs.String("snapshot", "", "snapshot path to rollback from (optional; defaults to latest)")
	session := fs.String("session", "", "producer session id whose additions are removed (required)")
	sinceTick := fs.Uint64("since_tick", 0, "rollback additions since tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "rollback additions up to tick (inclusive, optional; defaults to snapshot tick)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*session) == "" {
		fmt.Fprintln(os.Stderr, "missing -session")
		os.Exit(2)
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" {
		snapshotToLoad = latestSnapshot(*dataDir)
	}
	if snapshotToLoad == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(snapshotToLoad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	endTick := *toTick
	if endTick == 0 || endTick > snap.Header.Tick {
		endTick = snap.Header.Tick
	}

	adds, err := readAdds(filepath.Join(*dataDir, "acts"), *session, *sinceTick, endTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read acts:", err)
		os.Exit(1)
	}
	if len(adds) == 0 {
		fmt.Println("no matching additions; nothing to rollback")
		return
	}

	removed, missing := applyRollback(&snap, adds)

	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(*dataDir, "snapshots", fmt.Sprintf("%d.rollback.snap.zst", snap.Header.Tick))
	}
	if err := snapshot.WriteSnapshot(*outPath, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("rollback ok: snapshot=%s tick=%d session=%s since=%d to=%d adds=%d removed=%d missing=%d out=%s\n",
		filepath.Base(snapshotToLoad), snap.Header.Tick, *session, *sinceTick, endTick, len(adds), removed, missing, *outPath)
}

// addRef names a drawable created by a successful ADD.
type addRef struct {
	Surface string
	ID      uint32
}

func readAdds(dir, session string, sinceTick, toTick uint64) ([]addRef, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "acts-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []addRef
	for _, name := range names {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		sc := bufio.NewScanner(dec)
		sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
		for sc.Scan() {
			var e bridge.ActLogEntry
			if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
				dec.Close()
				_ = f.Close()
				return nil, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if e.SessionID != session || !e.Result.OK || !strings.EqualFold(e.Op.Op, protocol.OpAdd) {
				continue
			}
			if e.Tick < sinceTick || e.Tick > toTick {
				continue
			}
			out = append(out, addRef{Surface: surfaceName(e.Op.Surface), ID: e.Result.Target})
		}
		if err := sc.Err(); err != nil {
			dec.Close()
			_ = f.Close()
			return nil, err
		}
		dec.Close()
		_ = f.Close()
	}
	return out, nil
}

func surfaceName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return surface.GlobalMarker
	}
	return s
}

// applyRollback drops the referenced drawables. Ones already gone from the
// snapshot (removed or cleared later) count as missing. IDs are not reused, so
// the surfaces' next ids stay as they are.
func applyRollback(snap *snapshot.SnapshotV1, adds []addRef) (removed, missing int) {
	if snap == nil || len(adds) == 0 {
		return 0, 0
	}
	drop := make(map[addRef]bool, len(adds))
	for _, a := range adds {
		drop[a] = true
	}
	found := map[addRef]bool{}
	for i := range snap.Surfaces {
		sv := &snap.Surfaces[i]
		kept := sv.Drawables[:0]
		for _, d := range sv.Drawables {
			ref := addRef{Surface: sv.Name, ID: d.ID}
			if drop[ref] {
				found[ref] = true
				continue
			}
			kept = append(kept, d)
		}
		sv.Drawables = kept
	}
	return len(found), len(drop) - len(found)
}

func snapshotFiles(dataDir string) []string {
	dir := filepath.Join(dataDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	type snapFile struct {
		tick uint64
		path string
	}
	var files []snapFile
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, snapFile{tick: tick, path: filepath.Join(dir, name)})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].tick < files[j].tick })
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.path)
	}
	return out
}

func latestSnapshot(dataDir string) string {
	files := snapshotFiles(dataDir)
	if len(files) == 0 {
		return ""
	}
	return files[len(files)-1]
}
