package bridge

// Metrics is a read-only view of the runtime, updated once per tick from the
// Run goroutine and safe to read from HTTP handlers.
type Metrics struct {
	Tick uint64 `json:"tick"`

	Viewers   int `json:"viewers"`
	Producers int `json:"producers"`
	Surfaces  int `json:"surfaces"`
	Drawables int `json:"drawables"`

	Ops         int `json:"ops"`
	SyncBatches int `json:"sync_batches"`
	SyncBytes   int `json:"sync_bytes"`

	// Dropped counts sessions cut off for falling behind, since start.
	Dropped uint64 `json:"dropped"`

	PerSurface []SurfaceStat `json:"per_surface,omitempty"`
}

type SurfaceStat struct {
	Name      string `json:"name"`
	Drawables int    `json:"drawables"`
	NextID    uint32 `json:"next_id"`
}

func (r *Runtime) Metrics() Metrics {
	if r == nil {
		return Metrics{}
	}
	m, _ := r.metrics.Load().(Metrics)
	m.Dropped = r.dropped.Load()
	return m
}
