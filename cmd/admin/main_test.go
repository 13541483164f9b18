package main

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	_ "modernc.org/sqlite"

	"rovergrid.ai/internal/persistence/indexdb"
	"rovergrid.ai/internal/persistence/runstore"
	"rovergrid.ai/internal/sim/driver"
	"rovergrid.ai/internal/sim/encoding"
	"rovergrid.ai/internal/sim/grid"
	"rovergrid.ai/internal/sim/mission"
	"rovergrid.ai/internal/sim/tuning"
)

func seed(t *testing.T) (string, string, driver.Report) {
	t.Helper()
	color.NoColor = true
	dataDir := t.TempDir()
	dbPath := filepath.Join(dataDir, "index", "runs.sqlite")
	idx, err := indexdb.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	files := runstore.NewFileRecorder(dataDir)
	m := mission.Mission{
		Name:       "corners",
		GridSize:   3,
		Start:      grid.Coord{X: 2, Y: 2},
		Components: []grid.Coord{{X: 0, Y: 0}, {X: 3, Y: 0}},
	}
	rep, err := driver.Run(context.Background(), m, driver.Options{
		Tuning:   tuning.Defaults(),
		Recorder: driver.MultiRecorder{files, idx},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	_ = files.Close()
	_ = idx.Close()
	return dataDir, dbPath, rep
}

func TestListAndShow(t *testing.T) {
	dataDir, _, rep := seed(t)

	var buf bytes.Buffer
	if err := listRuns(&buf, dataDir, 10); err != nil {
		t.Fatalf("listRuns: %v", err)
	}
	if !strings.Contains(buf.String(), rep.RunID) || !strings.Contains(buf.String(), "COMPLETE") {
		t.Fatalf("list output: %s", buf.String())
	}

	buf.Reset()
	if err := showRun(&buf, dataDir, "latest", true); err != nil {
		t.Fatalf("showRun: %v", err)
	}
	out := buf.String()
	for _, want := range []string{rep.RunID, "corners", rep.Result.Log.String(), `"token":"P"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("show output missing %q:\n%s", want, out)
		}
	}

	if err := showRun(&buf, dataDir, "nope", false); err == nil {
		t.Fatalf("expected error for unknown run")
	}
}

func TestDBQuery(t *testing.T) {
	_, dbPath, rep := seed(t)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var buf bytes.Buffer
	if err := dbQuery(&buf, db, "recent", "", 5); err != nil {
		t.Fatalf("recent: %v", err)
	}
	if !strings.Contains(buf.String(), rep.RunID) {
		t.Fatalf("recent: %s", buf.String())
	}

	buf.Reset()
	if err := dbQuery(&buf, db, "steps", rep.RunID, 3); err != nil {
		t.Fatalf("steps: %v", err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 3 {
		t.Fatalf("steps lines=%d: %s", n, buf.String())
	}

	buf.Reset()
	if err := dbQuery(&buf, db, "run", rep.RunID, 0); err != nil {
		t.Fatalf("run: %v", err)
	}
	if want := `"log":"` + encoding.Compact(rep.Result.Log.String()) + `"`; !strings.Contains(buf.String(), want) {
		t.Fatalf("run: want %s in %s", want, buf.String())
	}

	buf.Reset()
	if err := dbQuery(&buf, db, "reasons", "", 0); err != nil {
		t.Fatalf("reasons: %v", err)
	}
	if !strings.Contains(buf.String(), `{"reason":"COMPLETE","runs":1}`) {
		t.Fatalf("reasons: %s", buf.String())
	}

	if err := dbQuery(&buf, db, "run", "", 0); err == nil {
		t.Fatalf("expected missing -run error")
	}
	if err := dbQuery(&buf, db, "bogus", "", 0); err == nil {
		t.Fatalf("expected unknown query error")
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	if err := fetch(&buf, srv.URL+"/healthz"); err != nil || buf.String() != "ok\n" {
		t.Fatalf("fetch: %q err=%v", buf.String(), err)
	}
	if err := fetch(&buf, srv.URL+"/v1/runs/x"); err == nil {
		t.Fatalf("expected error on 404")
	}
}
