package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"hudbridge.ai/internal/bridge"
	"hudbridge.ai/internal/config"
	"hudbridge.ai/internal/drawable"
	"hudbridge.ai/internal/persistence/snapshot"
	"hudbridge.ai/internal/protocol"
	"hudbridge.ai/internal/surface"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (empty: start from an empty terminal)")
		actsDir    = flag.String("acts", "", "dir containing acts-*.jsonl.zst (optional)")
		configPath = flag.String("config", "", "config for the tag table (used only without -snapshot)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" && *actsDir == "" {
		fmt.Fprintln(os.Stderr, "need -snapshot and/or -acts")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	table, err := cfg.TagTable()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	var (
		rt        *bridge.Runtime
		startTick uint64
	)
	bcfg := bridge.Config{SyncRateHz: cfg.SyncRateHz, MaxSurfaces: cfg.MaxSurfaces}
	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		// The snapshot's own tag table wins over the config.
		table = make(map[drawable.Kind]drawable.Tag, len(snap.Tags))
		for name, tag := range snap.Tags {
			if k, ok := drawable.ParseKind(name); ok {
				table[k] = drawable.Tag(tag)
			}
		}
		reg, err := drawable.Bootstrap(table)
		if err != nil {
			fmt.Fprintln(os.Stderr, "registry:", err)
			os.Exit(1)
		}
		rt, err = bridge.Resume(bcfg, snap, drawable.NewCodec(reg), nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, "restore:", err)
			os.Exit(1)
		}
		startTick = snap.Header.Tick + 1
		fmt.Printf("snapshot v%d terminal=%s tick=%d sync_rate=%d\n",
			snap.Header.Version, snap.Header.TerminalID, snap.Header.Tick, snap.SyncRateHz)
		describe(rt.Terminal())
	} else {
		reg, err := drawable.Bootstrap(table)
		if err != nil {
			fmt.Fprintln(os.Stderr, "registry:", err)
			os.Exit(1)
		}
		rt, err = bridge.New(bcfg, surface.NewTerminal(0, drawable.NewCodec(reg)), nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, "runtime:", err)
			os.Exit(1)
		}
	}

	if *actsDir == "" {
		return
	}

	files, err := listActFiles(*actsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list acts:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no act files found in", *actsDir)
		os.Exit(1)
	}

	rp, err := newReplayer(rt)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	for _, path := range files {
		entries, err := readActFile(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read acts:", err)
			os.Exit(1)
		}
		if err := rp.replay(entries, startTick, *toTick); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: checked=%d ops over %d ticks\n", rp.ops, rp.ticks)
	describe(rt.Terminal())
}

func describe(t *surface.Terminal) {
	for _, s := range t.Surfaces() {
		counts := map[drawable.Kind]int{}
		for _, e := range s.Sorted() {
			counts[e.Drawable.Kind()]++
		}
		var parts []string
		for _, k := range drawable.Kinds {
			if counts[k] > 0 {
				parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
			}
		}
		fmt.Printf("  surface %-16s drawables=%d next_id=%d %s\n", s.Name(), s.Len(), s.NextID(), strings.Join(parts, " "))
	}
}

func listActFiles(dir string) ([]string, error) {
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
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func readActFile(path string) ([]bridge.ActLogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var out []bridge.ActLogEntry
	for sc.Scan() {
		var entry bridge.ActLogEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		out = append(out, entry)
	}
	return out, sc.Err()
}

// replayer re-applies logged producer ops through a single producer session
// and checks every outcome against the log.
type replayer struct {
	rt      *bridge.Runtime
	session string
	out     chan []byte

	ops   int
	ticks int
}

func newReplayer(rt *bridge.Runtime) (*replayer, error) {
	out := make(chan []byte, 4096)
	resp := make(chan bridge.JoinResponse, 1)
	rt.StepOnce([]bridge.JoinRequest{{ClientName: "replay", Role: protocol.RoleProducer, Out: out, Resp: resp}}, nil, nil)
	r := <-resp
	if r.Err != nil {
		return nil, r.Err
	}
	return &replayer{rt: rt, session: r.Welcome.SessionID, out: out}, nil
}

// replay applies entries tick by tick. Entries before from are skipped; a
// non-zero to stops after that tick.
func (p *replayer) replay(entries []bridge.ActLogEntry, from, to uint64) error {
	for i := 0; i < len(entries); {
		tick := entries[i].Tick
		j := i
		for j < len(entries) && entries[j].Tick == tick {
			j++
		}
		group := entries[i:j]
		i = j
		if tick < from {
			continue
		}
		if to != 0 && tick > to {
			return nil
		}
		if err := p.step(tick, group); err != nil {
			return err
		}
	}
	return nil
}

func (p *replayer) step(tick uint64, group []bridge.ActLogEntry) error {
	var (
		ops  []protocol.OpReq
		want []protocol.OpResult
	)
	for _, e := range group {
		// Viewer attempts never reached the terminal.
		if e.Result.Code == protocol.ErrNoPermission {
			continue
		}
		ops = append(ops, e.Op)
		want = append(want, e.Result)
	}
	if len(ops) == 0 {
		return nil
	}
	p.rt.StepOnce(nil, nil, []bridge.ActEnvelope{{
		SessionID: p.session,
		Act:       protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Ops: ops},
	}})

	got, err := p.results()
	if err != nil {
		return fmt.Errorf("tick %d: %w", tick, err)
	}
	if len(got) != len(want) {
		return fmt.Errorf("tick %d: %d results, logged %d", tick, len(got), len(want))
	}
	for k := range want {
		g, w := got[k], want[k]
		if g.OK != w.OK || g.Target != w.Target || g.Code != w.Code {
			return fmt.Errorf("tick %d op %s: got ok=%v target=%d code=%s, logged ok=%v target=%d code=%s",
				tick, w.ID, g.OK, g.Target, g.Code, w.OK, w.Target, w.Code)
		}
	}
	p.ops += len(want)
	p.ticks++
	return nil
}

func (p *replayer) results() ([]protocol.OpResult, error) {
	for {
		select {
		case b, ok := <-p.out:
			if !ok {
				return nil, fmt.Errorf("replay session dropped")
			}
			base, err := protocol.DecodeBase(b)
			if err != nil || base.Type != protocol.TypeActResult {
				continue
			}
			var res protocol.ActResultMsg
			if err := json.Unmarshal(b, &res); err != nil {
				return nil, err
			}
			return res.Results, nil
		default:
			return nil, fmt.Errorf("no ACT_RESULT")
		}
	}
}
