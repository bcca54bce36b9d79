package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"hudbridge.ai/internal/bridge"
	"hudbridge.ai/internal/config"
	"hudbridge.ai/internal/drawable"
	"hudbridge.ai/internal/io/synccodec"
	"hudbridge.ai/internal/persistence/archive"
	persistlog "hudbridge.ai/internal/persistence/log"
	"hudbridge.ai/internal/persistence/snapshot"
	"hudbridge.ai/internal/surface"
	"hudbridge.ai/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/hud.yaml", "bridge config path (empty for defaults)")
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (sync/act rows, kinds, snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	table, err := cfg.TagTable()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	reg, err := drawable.Bootstrap(table)
	if err != nil {
		logger.Fatalf("registry: %v", err)
	}
	codec := drawable.NewCodec(reg)

	bcfg := bridge.Config{
		SyncRateHz:         cfg.SyncRateHz,
		SnapshotEveryTicks: cfg.SnapshotEveryTicks,
		MaxSurfaces:        cfg.MaxSurfaces,
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(cfg.DataDir)
	}

	var rt *bridge.Runtime
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if cfg.TerminalID != "" && cfg.TerminalID != snap.Header.TerminalID {
			logger.Fatalf("snapshot terminal %s does not match configured terminal %s", snap.Header.TerminalID, cfg.TerminalID)
		}
		if snap.SyncRateHz != 0 && snap.SyncRateHz != cfg.SyncRateHz {
			logger.Printf("snapshot sync_rate_hz=%d, running at %d", snap.SyncRateHz, cfg.SyncRateHz)
		}
		rt, err = bridge.Resume(bcfg, snap, codec, logger)
		if err != nil {
			logger.Fatalf("resume: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), rt.CurrentTick())
	} else {
		guid := surface.GenerateGUID()
		if cfg.TerminalID != "" {
			guid, _ = surface.ParseTerminalID(cfg.TerminalID)
		}
		rt, err = bridge.New(bcfg, surface.NewTerminal(guid, codec), logger)
		if err != nil {
			logger.Fatalf("runtime: %v", err)
		}
		logger.Printf("fresh terminal %s", rt.TerminalID())
	}

	idx, err := openRuntimeIndex(cfg.DataDir, *disableDB)
	if err != nil {
		logger.Fatalf("index: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertKinds(rt.TerminalID(), synccodec.BuildCatalog(reg)); err != nil {
			logger.Printf("index kinds: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	syncLog := persistlog.NewSyncLogger(cfg.DataDir)
	actLog := persistlog.NewActLogger(cfg.DataDir)
	defer syncLog.Close()
	defer actLog.Close()
	var syncIdx bridge.SyncLogger
	var actIdx bridge.ActLogger
	if idx != nil {
		syncIdx, actIdx = idx, idx
	}
	rt.SetSyncLogger(multiSyncLogger{a: syncLog, b: syncIdx})
	rt.SetActLogger(multiActLogger{a: actLog, b: actIdx})

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	rt.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(cfg.DataDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
				if archived, err := archive.Retain(cfg.DataDir, cfg.SnapshotKeep); err != nil {
					logger.Printf("snapshot retention: %v", err)
				} else if len(archived) > 0 {
					logger.Printf("archived %d snapshots", len(archived))
				}
			}
		}
	}()

	go func() {
		if err := rt.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("runtime stopped: %v", err)
		}
	}()

	mux := buildMux(rt, idx, cfg.MaxQueue, envBool("HUD_ENABLE_ADMIN_HTTP", true), logger)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s terminal=%s", cfg.Addr, rt.TerminalID())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func buildMux(rt *bridge.Runtime, idx runtimeIndex, maxQueue int, enableAdmin bool, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, rt, idx)
	})

	if enableAdmin {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				TerminalID string         `json:"terminal_id"`
				Tick       uint64         `json:"tick"`
				Metrics    bridge.Metrics `json:"metrics"`
			}{
				TerminalID: rt.TerminalID(),
				Tick:       rt.CurrentTick(),
				Metrics:    rt.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			tick, err := rt.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
		})
	} else {
		logger.Printf("admin endpoints disabled (HUD_ENABLE_ADMIN_HTTP=false)")
	}

	mux.HandleFunc("/v1/ws", ws.NewServer(rt, maxQueue, logger).Handler())
	return mux
}

// writeMetrics renders the Prometheus text exposition format.
func writeMetrics(rw http.ResponseWriter, rt *bridge.Runtime, idx runtimeIndex) {
	m := rt.Metrics()
	term := rt.TerminalID()

	fmt.Fprintf(rw, "# HELP hud_bridge_tick Current bridge tick.\n")
	fmt.Fprintf(rw, "# TYPE hud_bridge_tick gauge\n")
	fmt.Fprintf(rw, "hud_bridge_tick{terminal=%q} %d\n", term, rt.CurrentTick())

	fmt.Fprintf(rw, "# HELP hud_bridge_sessions Connected sessions by role.\n")
	fmt.Fprintf(rw, "# TYPE hud_bridge_sessions gauge\n")
	fmt.Fprintf(rw, "hud_bridge_sessions{terminal=%q,role=%q} %d\n", term, "viewer", m.Viewers)
	fmt.Fprintf(rw, "hud_bridge_sessions{terminal=%q,role=%q} %d\n", term, "producer", m.Producers)

	fmt.Fprintf(rw, "# HELP hud_bridge_surfaces Live surfaces.\n")
	fmt.Fprintf(rw, "# TYPE hud_bridge_surfaces gauge\n")
	fmt.Fprintf(rw, "hud_bridge_surfaces{terminal=%q} %d\n", term, m.Surfaces)

	fmt.Fprintf(rw, "# HELP hud_bridge_drawables Live drawables across all surfaces.\n")
	fmt.Fprintf(rw, "# TYPE hud_bridge_drawables gauge\n")
	fmt.Fprintf(rw, "hud_bridge_drawables{terminal=%q} %d\n", term, m.Drawables)

	fmt.Fprintf(rw, "# HELP hud_bridge_tick_ops Ops applied in the last tick.\n")
	fmt.Fprintf(rw, "# TYPE hud_bridge_tick_ops gauge\n")
	fmt.Fprintf(rw, "hud_bridge_tick_ops{terminal=%q} %d\n", term, m.Ops)

	fmt.Fprintf(rw, "# HELP hud_bridge_tick_sync_batches Non-empty sync batches sent in the last tick.\n")
	fmt.Fprintf(rw, "# TYPE hud_bridge_tick_sync_batches gauge\n")
	fmt.Fprintf(rw, "hud_bridge_tick_sync_batches{terminal=%q} %d\n", term, m.SyncBatches)

	fmt.Fprintf(rw, "# HELP hud_bridge_tick_sync_bytes Encoded sync bytes sent in the last tick.\n")
	fmt.Fprintf(rw, "# TYPE hud_bridge_tick_sync_bytes gauge\n")
	fmt.Fprintf(rw, "hud_bridge_tick_sync_bytes{terminal=%q} %d\n", term, m.SyncBytes)

	fmt.Fprintf(rw, "# HELP hud_bridge_dropped_sessions_total Sessions dropped for falling behind.\n")
	fmt.Fprintf(rw, "# TYPE hud_bridge_dropped_sessions_total counter\n")
	fmt.Fprintf(rw, "hud_bridge_dropped_sessions_total{terminal=%q} %d\n", term, m.Dropped)

	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP hud_index_queue_depth Current sqlite index queue depth.\n")
	fmt.Fprintf(rw, "# TYPE hud_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "hud_index_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP hud_index_dropped_total Index rows dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE hud_index_dropped_total counter\n")
	fmt.Fprintf(rw, "hud_index_dropped_total{table=%q} %d\n", "syncs", s.DropSyncTotal)
	fmt.Fprintf(rw, "hud_index_dropped_total{table=%q} %d\n", "acts", s.DropActTotal)
	fmt.Fprintf(rw, "hud_index_dropped_total{table=%q} %d\n", "snapshots", s.DropSnapshotTotal)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// latestSnapshot returns the highest-tick <tick>.snap.zst under dataDir/snapshots.
func latestSnapshot(dataDir string) string {
	dir := filepath.Join(dataDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
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
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

type multiSyncLogger struct {
	a bridge.SyncLogger
	b bridge.SyncLogger
}

func (m multiSyncLogger) WriteSync(entry bridge.SyncLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteSync(entry)
	}
	if m.b != nil {
		_ = m.b.WriteSync(entry)
	}
	return nil
}

type multiActLogger struct {
	a bridge.ActLogger
	b bridge.ActLogger
}

func (m multiActLogger) WriteAct(entry bridge.ActLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteAct(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAct(entry)
	}
	return nil
}
