package bridge

import (
	"context"
	"errors"
)

type adminSnapshotReq struct {
	Resp chan adminSnapshotResp
}

type adminSnapshotResp struct {
	Tick uint64
	Err  string
}

// RequestSnapshot asks the Run goroutine to capture the terminal after the
// next tick and hand it to the snapshot sink. Safe to call from any goroutine.
func (r *Runtime) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	if r == nil || r.admin == nil {
		return 0, errors.New("admin snapshot not available")
	}
	resp := make(chan adminSnapshotResp, 1)
	select {
	case r.admin <- adminSnapshotReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case res := <-resp:
		if res.Err != "" {
			return res.Tick, errors.New(res.Err)
		}
		return res.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (r *Runtime) handleAdminSnapshotRequests(reqs []adminSnapshotReq) {
	if len(reqs) == 0 {
		return
	}
	cur := r.tick.Load()
	snapTick := uint64(0)
	if cur > 0 {
		snapTick = cur - 1
	}
	errStr := ""
	if err := r.exportSnapshot(snapTick); err != nil {
		errStr = err.Error()
	}
	resp := adminSnapshotResp{Tick: snapTick, Err: errStr}
	for _, req := range reqs {
		if req.Resp == nil {
			continue
		}
		select {
		case req.Resp <- resp:
		default:
		}
	}
}

// exportSnapshot captures the terminal and offers it to the sink without
// blocking the loop.
func (r *Runtime) exportSnapshot(tick uint64) error {
	if r.snapshotSink == nil {
		return errors.New("snapshot sink not configured")
	}
	snap, err := r.ExportSnapshot(tick)
	if err != nil {
		r.log.Printf("snapshot at tick %d: %v", tick, err)
	}
	select {
	case r.snapshotSink <- snap:
		return nil
	default:
		return errors.New("snapshot sink backpressure")
	}
}
