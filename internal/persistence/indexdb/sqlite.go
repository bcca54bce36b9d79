package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"hudbridge.ai/internal/bridge"
	"hudbridge.ai/internal/persistence/snapshot"
	"hudbridge.ai/internal/protocol"
)

// SQLiteIndex is a queryable read model of sync batches, producer ops and
// snapshots. Writes go through a queue drained by one goroutine and are
// dropped when it falls behind; the JSONL logs stay the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropSync     atomic.Uint64
	dropAct      atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqSync reqKind = iota + 1
	reqAct
	reqSnapshot
)

type req struct {
	kind reqKind

	sync     bridge.SyncLogEntry
	act      bridge.ActLogEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick       uint64
	Path       string
	TerminalID string
	Surfaces   int
	Drawables  int
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropSyncTotal     uint64 `json:"drop_sync_total"`
	DropActTotal      uint64 `json:"drop_act_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS kinds (
			tag INTEGER PRIMARY KEY,
			kind TEXT NOT NULL UNIQUE,
			fields_json TEXT NOT NULL,
			digest TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS syncs (
			tick INTEGER NOT NULL,
			surface TEXT NOT NULL,
			cleared INTEGER NOT NULL,
			full_count INTEGER NOT NULL,
			partial_count INTEGER NOT NULL,
			removed_count INTEGER NOT NULL,
			viewers INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			PRIMARY KEY (tick, surface)
		);`,
		`CREATE TABLE IF NOT EXISTS acts (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			op_id TEXT NOT NULL,
			op TEXT NOT NULL,
			surface TEXT NOT NULL,
			target INTEGER NOT NULL,
			ok INTEGER NOT NULL,
			code TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_acts_session_tick ON acts(session_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_acts_code ON acts(code);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			terminal_id TEXT NOT NULL,
			surfaces INTEGER NOT NULL,
			drawables INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropSyncTotal:     s.dropSync.Load(),
		DropActTotal:      s.dropAct.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) WriteSync(entry bridge.SyncLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqSync, sync: entry}:
	default:
		s.dropSync.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteAct(entry bridge.ActLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAct, act: entry}:
	default:
		s.dropAct.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:       snap.Header.Tick,
		Path:       path,
		TerminalID: snap.Header.TerminalID,
		Surfaces:   len(snap.Surfaces),
	}
	for _, sv := range snap.Surfaces {
		r.Drawables += len(sv.Drawables)
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// UpsertKinds stores the kind catalogue and terminal id. It runs synchronously
// at startup.
func (s *SQLiteIndex) UpsertKinds(terminalID string, kinds []protocol.KindCatalog) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('terminal_id',?)`, terminalID); err != nil {
		return err
	}
	// Tags may have moved between kinds since the last run.
	if _, err := tx.Exec(`DELETE FROM kinds`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO kinds(tag,kind,fields_json,digest,updated_at) VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, k := range kinds {
		b, err := json.Marshal(k.Fields)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(b)
		if _, err := stmt.Exec(k.Tag, k.Kind, string(b), hex.EncodeToString(sum[:]), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertSync, _ := s.db.Prepare(`INSERT OR REPLACE INTO syncs(tick,surface,cleared,full_count,partial_count,removed_count,viewers,bytes) VALUES(?,?,?,?,?,?,?,?)`)
	insertAct, _ := s.db.Prepare(`INSERT OR REPLACE INTO acts(tick,seq,session_id,op_id,op,surface,target,ok,code,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,terminal_id,surfaces,drawables) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertSync, insertAct, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastActTick uint64
		actSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSync:
			e := r.sync
			exec(insertSync, int64(e.Tick), e.Surface, boolInt(e.Clear), e.Full, e.Partial, e.Removed, e.Viewers, e.Bytes)

		case reqAct:
			a := r.act
			if a.Tick != lastActTick {
				lastActTick = a.Tick
				actSeq = 0
			}
			seq := actSeq
			actSeq++
			raw, _ := json.Marshal(a)
			surface := a.Op.Surface
			if surface == "" {
				surface = protocol.SurfaceGlobal
			}
			exec(insertAct, int64(a.Tick), seq, a.SessionID, a.Op.ID, a.Op.Op, surface,
				int64(a.Result.Target), boolInt(a.Result.OK), nullable(a.Result.Code), string(raw))

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.TerminalID, sn.Surfaces, sn.Drawables)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
