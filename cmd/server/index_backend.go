package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hudbridge.ai/internal/bridge"
	"hudbridge.ai/internal/persistence/indexdb"
	"hudbridge.ai/internal/persistence/snapshot"
	"hudbridge.ai/internal/protocol"
)

type runtimeIndex interface {
	bridge.SyncLogger
	bridge.ActLogger
	Close() error
	UpsertKinds(terminalID string, kinds []protocol.KindCatalog) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	Stats() indexdb.Stats
}

func openRuntimeIndex(dataDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("HUD_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index", "hud.sqlite"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported HUD_INDEX_BACKEND: %s", backend)
	}
}
