package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"rovergrid.ai/internal/sim/driver"
	"rovergrid.ai/internal/sim/encoding"
	"rovergrid.ai/internal/sim/rover"
)

// SQLiteIndex is a queryable read-model of runs and their steps. Writes go
// through a buffered channel to a single writer goroutine; step writes are
// dropped when the queue is full (the JSONL step log stays the source of truth).
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex // guards sends against close(ch)
	closed atomic.Bool

	dropStep atomic.Uint64
	dropRun  atomic.Uint64
}

type reqKind int

const (
	reqBegin reqKind = iota + 1
	reqStep
	reqEnd
	reqFlush
)

type req struct {
	kind reqKind

	run  runRow
	step stepRow
	done chan struct{}
}

type runRow struct {
	RunID       string
	Name        string
	GridSize    int
	Components  int
	StartX      int
	StartY      int
	MaxSteps    int
	Reason      string
	LogLen      int
	LogRLE      string
	Collected   int
	Seen        int
	Steps       int
	Digest      string
	StartedAt   string
	DurationMS  int64
	MissionJSON string
}

type stepRow struct {
	RunID string
	Entry rover.StepEntry
}

// RunRow is one row of the runs table.
type RunRow struct {
	RunID      string `json:"run_id"`
	Name       string `json:"name,omitempty"`
	GridSize   int    `json:"grid_size"`
	Components int    `json:"components"`
	MaxSteps   int    `json:"max_steps"`
	Reason     string `json:"reason"`
	LogLen     int    `json:"log_len"`
	Collected  int    `json:"collected"`
	Seen       int    `json:"seen"`
	Steps      int    `json:"steps"`
	Digest     string `json:"digest"`
	StartedAt  string `json:"started_at"`
	DurationMS int64  `json:"duration_ms"`
}

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropStepTotal uint64 `json:"drop_step_total"`
	DropRunTotal  uint64 `json:"drop_run_total"`
}

const (
	queueCapacity = 65536
	runSendWait   = 2 * time.Second
)

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
		ch: make(chan req, queueCapacity),
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
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			grid_size INTEGER NOT NULL,
			components INTEGER NOT NULL,
			start_x INTEGER NOT NULL,
			start_y INTEGER NOT NULL,
			max_steps INTEGER NOT NULL,
			reason TEXT NOT NULL,
			log_len INTEGER NOT NULL,
			log_rle TEXT NOT NULL,
			collected INTEGER NOT NULL,
			seen INTEGER NOT NULL,
			steps INTEGER NOT NULL,
			digest TEXT NOT NULL,
			started_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			mission_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`,
		`CREATE TABLE IF NOT EXISTS steps (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			token TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			phase TEXT NOT NULL,
			component INTEGER NOT NULL,
			next_id INTEGER NOT NULL,
			seen INTEGER NOT NULL,
			digest TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_steps_pos ON steps(run_id, x, y);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.mu.Unlock()
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
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropStepTotal: s.dropStep.Load(),
		DropRunTotal:  s.dropRun.Load(),
	}
}

// trySend enqueues r, waiting at most wait (0 = never block). It reports false
// when the request was dropped.
func (s *SQLiteIndex) trySend(r req, wait time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return false
	}
	if wait <= 0 {
		select {
		case s.ch <- r:
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case s.ch <- r:
		return true
	case <-t.C:
		return false
	}
}

func (s *SQLiteIndex) BeginRun(h driver.RunHeader) error {
	if s == nil {
		return nil
	}
	mj, _ := json.Marshal(h.Mission)
	r := runRow{
		RunID:       h.RunID,
		Name:        h.Mission.Name,
		GridSize:    h.Mission.GridSize,
		Components:  len(h.Mission.Components),
		StartX:      h.Mission.Start[0],
		StartY:      h.Mission.Start[1],
		MaxSteps:    h.MaxSteps,
		StartedAt:   h.StartedAt.UTC().Format(time.RFC3339Nano),
		MissionJSON: string(mj),
	}
	if !s.trySend(req{kind: reqBegin, run: r}, runSendWait) {
		s.dropRun.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteStep(runID string, e rover.StepEntry) error {
	if s == nil {
		return nil
	}
	if !s.trySend(req{kind: reqStep, step: stepRow{RunID: runID, Entry: e}}, 0) {
		s.dropStep.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) EndRun(rep driver.Report) error {
	if s == nil {
		return nil
	}
	doc := rep.Mission.Doc()
	mj, _ := json.Marshal(doc)
	res := rep.Result
	r := runRow{
		RunID:       rep.RunID,
		Name:        doc.Name,
		GridSize:    doc.GridSize,
		Components:  len(doc.Components),
		StartX:      doc.Start[0],
		StartY:      doc.Start[1],
		MaxSteps:    rep.MaxSteps,
		Reason:      string(res.Reason),
		LogLen:      len(res.Log),
		LogRLE:      encoding.EncodeRLE([]byte(res.Log.String())),
		Collected:   res.Collected,
		Seen:        res.Seen,
		Steps:       res.Steps,
		Digest:      res.Digest,
		StartedAt:   rep.StartedAt.UTC().Format(time.RFC3339Nano),
		DurationMS:  rep.Duration.Milliseconds(),
		MissionJSON: string(mj),
	}
	if !s.trySend(req{kind: reqEnd, run: r}, runSendWait) {
		s.dropRun.Add(1)
	}
	return nil
}

// Flush blocks until everything queued before it is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed.Load() {
		s.mu.RUnlock()
		return fmt.Errorf("index closed")
	}
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	s.mu.RUnlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) RecentRuns(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRow
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) LookupRun(ctx context.Context, runID string) (RunRow, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id=?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRow{}, false, nil
	}
	if err != nil {
		return RunRow{}, false, err
	}
	return r, true, nil
}

// RunLog returns the full path log of a finished run.
func (s *SQLiteIndex) RunLog(ctx context.Context, runID string) (string, error) {
	var rle string
	if err := s.db.QueryRowContext(ctx, `SELECT log_rle FROM runs WHERE run_id=?`, runID).Scan(&rle); err != nil {
		return "", err
	}
	b, err := encoding.DecodeRLE(rle)
	if err != nil {
		return "", fmt.Errorf("run %s: %w", runID, err)
	}
	return string(b), nil
}

func (s *SQLiteIndex) StepCount(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM steps WHERE run_id=?`, runID).Scan(&n)
	return n, err
}

const runColumns = `run_id,name,grid_size,components,max_steps,reason,log_len,collected,seen,steps,digest,started_at,duration_ms`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRow, error) {
	var r RunRow
	err := sc.Scan(&r.RunID, &r.Name, &r.GridSize, &r.Components, &r.MaxSteps, &r.Reason, &r.LogLen,
		&r.Collected, &r.Seen, &r.Steps, &r.Digest, &r.StartedAt, &r.DurationMS)
	return r, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,name,grid_size,components,start_x,start_y,max_steps,reason,log_len,log_rle,collected,seen,steps,digest,started_at,duration_ms,mission_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertStep, _ := s.db.Prepare(`INSERT OR REPLACE INTO steps(run_id,seq,token,x,y,phase,component,next_id,seen,digest) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertRun != nil {
			_ = insertRun.Close()
		}
		if insertStep != nil {
			_ = insertStep.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 500 * time.Millisecond
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
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	// An open tx holds the only connection; commit on idle so readers get through.
	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		select {
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		case <-ticker.C:
			flushIfNeeded()
			continue
		}

		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}

		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqBegin, reqEnd:
			ru := r.run
			if insertRun != nil {
				if _, err := tx.Stmt(insertRun).Exec(
					ru.RunID, ru.Name, ru.GridSize, ru.Components, ru.StartX, ru.StartY, ru.MaxSteps,
					ru.Reason, ru.LogLen, ru.LogRLE, ru.Collected, ru.Seen, ru.Steps, ru.Digest, ru.StartedAt,
					ru.DurationMS, ru.MissionJSON,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			if r.kind == reqEnd {
				commit()
				continue
			}

		case reqStep:
			e := r.step.Entry
			if insertStep != nil {
				if _, err := tx.Stmt(insertStep).Exec(
					r.step.RunID, e.Seq, e.Token, e.Pos[0], e.Pos[1], string(e.Phase),
					e.Component, e.Next, e.Seen, e.Digest,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}
}
