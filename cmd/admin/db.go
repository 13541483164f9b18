package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"rovergrid.ai/internal/sim/encoding"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index/runs.sqlite)")
	runID := fs.String("run", "", "run id (run, steps)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "recent"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "runs.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := dbQuery(os.Stdout, db, q, *runID, *limit); err != nil {
		fmt.Fprintln(os.Stderr, "db:", err)
		os.Exit(1)
	}
}

type dbRun struct {
	RunID      string `json:"run_id"`
	Name       string `json:"name,omitempty"`
	GridSize   int    `json:"grid_size"`
	Components int    `json:"components"`
	Reason     string `json:"reason"`
	Collected  int    `json:"collected"`
	Steps      int    `json:"steps"`
	Log        string `json:"log,omitempty"`
	StartedAt  string `json:"started_at"`
	DurationMS int64  `json:"duration_ms"`
}

type dbStep struct {
	Seq       int    `json:"seq"`
	Token     string `json:"token"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Phase     string `json:"phase"`
	Component int    `json:"component,omitempty"`
	Next      int    `json:"next"`
	Seen      int    `json:"seen"`
	Digest    string `json:"digest"`
}

func dbQuery(w io.Writer, db *sql.DB, q, runID string, limit int) error {
	if limit <= 0 {
		limit = 20
	}
	const runCols = `run_id,name,grid_size,components,reason,collected,steps,started_at,duration_ms`
	scanRun := func(sc interface{ Scan(...any) error }) (dbRun, error) {
		var r dbRun
		err := sc.Scan(&r.RunID, &r.Name, &r.GridSize, &r.Components, &r.Reason, &r.Collected, &r.Steps, &r.StartedAt, &r.DurationMS)
		return r, err
	}

	switch q {
	case "recent":
		rows, err := db.Query(`SELECT `+runCols+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			r, err := scanRun(rows)
			if err != nil {
				return err
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "run":
		if runID == "" {
			return fmt.Errorf("missing -run")
		}
		r, err := scanRun(db.QueryRow(`SELECT `+runCols+` FROM runs WHERE run_id=?`, runID))
		if err != nil {
			return err
		}
		var rle string
		if err := db.QueryRow(`SELECT log_rle FROM runs WHERE run_id=?`, runID).Scan(&rle); err != nil {
			return err
		}
		raw, err := encoding.DecodeRLE(rle)
		if err != nil {
			return err
		}
		r.Log = encoding.Compact(string(raw))
		printJSON(w, r)
		return nil

	case "steps":
		if runID == "" {
			return fmt.Errorf("missing -run")
		}
		rows, err := db.Query(`SELECT seq,token,x,y,phase,component,next_id,seen,digest FROM steps WHERE run_id=? ORDER BY seq LIMIT ?`, runID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var s dbStep
			if err := rows.Scan(&s.Seq, &s.Token, &s.X, &s.Y, &s.Phase, &s.Component, &s.Next, &s.Seen, &s.Digest); err != nil {
				return err
			}
			printJSON(w, s)
		}
		return rows.Err()

	case "reasons":
		rows, err := db.Query(`SELECT reason,COUNT(*) FROM runs GROUP BY reason ORDER BY reason`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Reason string `json:"reason"`
				Runs   int    `json:"runs"`
			}
			if err := rows.Scan(&r.Reason, &r.Runs); err != nil {
				return err
			}
			printJSON(w, r)
		}
		return rows.Err()
	}
	return fmt.Errorf("unknown query %q (want recent, run, steps or reasons)", q)
}
