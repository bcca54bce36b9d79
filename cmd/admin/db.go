package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type dbQuery struct {
	Limit     int
	SinceTick uint64
	Surface   string
	Session   string
	Code      string
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index/hud.sqlite)")
	var q dbQuery
	fs.IntVar(&q.Limit, "limit", 20, "result limit")
	fs.Uint64Var(&q.SinceTick, "since_tick", 0, "only rows at or after tick (syncs, acts)")
	fs.StringVar(&q.Surface, "surface", "", "surface filter (syncs, acts)")
	fs.StringVar(&q.Session, "session", "", "session id filter (acts)")
	fs.StringVar(&q.Code, "code", "", "error code filter (acts)")
	_ = fs.Parse(args)

	what := "snapshots"
	if fs.NArg() > 0 {
		what = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "hud.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, what, q, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-limit N] [-since_tick T] [-surface S] [-session ID] [-code E_...] snapshots|syncs|acts|kinds")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// runQuery prints one JSON object per row.
func runQuery(db *sql.DB, what string, q dbQuery, w io.Writer) error {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	switch what {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,terminal_id,surfaces,drawables FROM snapshots ORDER BY tick DESC LIMIT ?`, q.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick       int64  `json:"tick"`
				Path       string `json:"path"`
				TerminalID string `json:"terminal_id"`
				Surfaces   int    `json:"surfaces"`
				Drawables  int    `json:"drawables"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.TerminalID, &r.Surfaces, &r.Drawables); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "syncs":
		query := `SELECT tick,surface,cleared,full_count,partial_count,removed_count,viewers,bytes FROM syncs WHERE tick>=?`
		args := []any{q.SinceTick}
		if s := strings.TrimSpace(q.Surface); s != "" {
			query += ` AND surface=?`
			args = append(args, s)
		}
		query += ` ORDER BY tick DESC, surface LIMIT ?`
		args = append(args, q.Limit)
		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick    int64  `json:"tick"`
				Surface string `json:"surface"`
				Cleared bool   `json:"cleared"`
				Full    int    `json:"full"`
				Partial int    `json:"partial"`
				Removed int    `json:"removed"`
				Viewers int    `json:"viewers"`
				Bytes   int    `json:"bytes"`
			}
			if err := rows.Scan(&r.Tick, &r.Surface, &r.Cleared, &r.Full, &r.Partial, &r.Removed, &r.Viewers, &r.Bytes); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "acts":
		query := `SELECT tick,seq,session_id,op_id,op,surface,target,ok,code FROM acts WHERE tick>=?`
		args := []any{q.SinceTick}
		if s := strings.TrimSpace(q.Surface); s != "" {
			query += ` AND surface=?`
			args = append(args, s)
		}
		if s := strings.TrimSpace(q.Session); s != "" {
			query += ` AND session_id=?`
			args = append(args, s)
		}
		if s := strings.TrimSpace(q.Code); s != "" {
			query += ` AND code=?`
			args = append(args, s)
		}
		query += ` ORDER BY tick DESC, seq DESC LIMIT ?`
		args = append(args, q.Limit)
		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick      int64          `json:"tick"`
				Seq       int64          `json:"seq"`
				SessionID string         `json:"session_id"`
				OpID      string         `json:"op_id"`
				Op        string         `json:"op"`
				Surface   string         `json:"surface"`
				Target    int64          `json:"target"`
				OK        bool           `json:"ok"`
				Code      sql.NullString `json:"-"`
				CodeStr   string         `json:"code,omitempty"`
			}
			if err := rows.Scan(&r.Tick, &r.Seq, &r.SessionID, &r.OpID, &r.Op, &r.Surface, &r.Target, &r.OK, &r.Code); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.CodeStr = r.Code.String
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "kinds":
		rows, err := db.Query(`SELECT tag,kind,fields_json,digest FROM kinds ORDER BY tag`)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				r struct {
					Tag    int             `json:"tag"`
					Kind   string          `json:"kind"`
					Fields json.RawMessage `json:"fields"`
					Digest string          `json:"digest"`
				}
				fields string
			)
			if err := rows.Scan(&r.Tag, &r.Kind, &fields, &r.Digest); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Fields = json.RawMessage(fields)
			_ = enc.Encode(r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query: %s", what)
	}
}
