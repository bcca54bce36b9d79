package bridge

import (
	"log"

	"hudbridge.ai/internal/drawable"
	"hudbridge.ai/internal/persistence/snapshot"
)

// ExportSnapshot captures every surface. Call it only from the Run goroutine
// or while the runtime is stopped.
func (r *Runtime) ExportSnapshot(tick uint64) (snapshot.SnapshotV1, error) {
	return snapshot.Capture(r.term, tick, r.cfg.SyncRateHz)
}

// Resume builds a runtime from a snapshot. The next tick to run is the one
// after the snapshot's.
func Resume(cfg Config, snap snapshot.SnapshotV1, codec *drawable.Codec, logger *log.Logger) (*Runtime, error) {
	term, err := snapshot.Restore(snap, codec)
	if err != nil {
		return nil, err
	}
	r, err := New(cfg, term, logger)
	if err != nil {
		return nil, err
	}
	r.SetTick(snap.Header.Tick + 1)
	return r, nil
}
