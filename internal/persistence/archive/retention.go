package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"hudbridge.ai/internal/persistence/snapshot"
)

type ArchiveMeta struct {
	Tick       uint64 `json:"tick"`
	TerminalID string `json:"terminal_id"`
	Snapshot   string `json:"snapshot"`
	ArchivedAt string `json:"archived_at"`
}

// Retain keeps the newest keep snapshots in dataDir/snapshots and moves older
// ones to dataDir/archives/<terminal_id>/, each next to a <tick>.meta.json.
// keep <= 0 keeps everything in place. Only <tick>.snap.zst files are
// considered.
func Retain(dataDir string, keep int) (archived []string, err error) {
	if keep <= 0 {
		return nil, nil
	}
	dir := filepath.Join(dataDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type snapFile struct {
		tick uint64
		name string
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
		files = append(files, snapFile{tick: tick, name: name})
	}
	if len(files) <= keep {
		return nil, nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].tick < files[j].tick })

	for _, f := range files[:len(files)-keep] {
		src := filepath.Join(dir, f.name)
		dst, err := archiveOne(dataDir, src, f.tick)
		if err != nil {
			return archived, fmt.Errorf("archive %s: %w", f.name, err)
		}
		archived = append(archived, dst)
	}
	return archived, nil
}

func archiveOne(dataDir, src string, tick uint64) (string, error) {
	h, err := snapshot.ReadHeader(src)
	if err != nil {
		return "", err
	}
	terminal := h.TerminalID
	if terminal == "" {
		terminal = "unknown"
	}
	archiveDir := filepath.Join(dataDir, "archives", terminal)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", err
	}

	dst := filepath.Join(archiveDir, filepath.Base(src))
	if err := os.Rename(src, dst); err != nil {
		// Different filesystem.
		if err := copyFile(src, dst); err != nil {
			return "", err
		}
		if err := os.Remove(src); err != nil {
			return "", err
		}
	}

	meta := ArchiveMeta{
		Tick:       tick,
		TerminalID: h.TerminalID,
		Snapshot:   filepath.Base(dst),
		ArchivedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, fmt.Sprintf("%d.meta.json", tick)), b, 0o644)
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
