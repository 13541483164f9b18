package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	plog "rovergrid.ai/internal/persistence/log"
	"rovergrid.ai/internal/persistence/runstore"
	"rovergrid.ai/internal/persistence/snapshot"
	"rovergrid.ai/internal/sim/driver"
	"rovergrid.ai/internal/sim/grid"
	"rovergrid.ai/internal/sim/mission"
	"rovergrid.ai/internal/sim/rover"
	"rovergrid.ai/internal/sim/tuning"
)

func recordRun(t *testing.T, tune tuning.Tuning) (string, driver.Report) {
	t.Helper()
	dataDir := t.TempDir()
	rec := runstore.NewFileRecorder(dataDir)
	m := mission.Mission{
		GridSize:   3,
		Start:      grid.Coord{X: 3, Y: 3},
		Components: []grid.Coord{{X: 1, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: 2}, {X: 0, Y: 3}},
	}
	rep, err := driver.Run(context.Background(), m, driver.Options{Tuning: tune, Recorder: rec})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return runstore.RunDir(dataDir, rep.RunID), rep
}

func TestVerify_AcceptsRecordedRun(t *testing.T) {
	dir, rep := recordRun(t, tuning.Defaults())
	sum, err := Verify(filepath.Join(dir, runstore.SnapshotName), dir)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if sum.RunID != rep.RunID || sum.StepsChecked != len(rep.Result.Log) || sum.Reason != "COMPLETE" {
		t.Fatalf("summary=%+v", sum)
	}
}

func TestVerify_StepLimitRun(t *testing.T) {
	tune := tuning.Defaults()
	tune.MaxSteps = 5
	dir, rep := recordRun(t, tune)
	if rep.Result.Reason != "STEP_LIMIT" {
		t.Fatalf("reason=%s", rep.Result.Reason)
	}
	if _, err := Verify(filepath.Join(dir, runstore.SnapshotName), dir); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerify_WithoutStepLog(t *testing.T) {
	tune := tuning.Defaults()
	tune.RecordSteps = false
	dir, _ := recordRun(t, tune)
	sum, err := Verify(filepath.Join(dir, runstore.SnapshotName), dir)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if sum.StepsChecked != 0 {
		t.Fatalf("checked=%d", sum.StepsChecked)
	}
}

func TestVerify_InterruptedRun(t *testing.T) {
	dataDir := t.TempDir()
	rec := runstore.NewFileRecorder(dataDir)
	m := mission.Mission{
		GridSize:   3,
		Start:      grid.Coord{X: 3, Y: 3},
		Components: []grid.Coord{{X: 1, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: 2}, {X: 0, Y: 3}},
	}
	full, err := driver.Run(context.Background(), m, driver.Options{Tuning: tuning.Defaults()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seen := 0
	rep, err := driver.Run(ctx, m, driver.Options{
		Tuning:   tuning.Defaults(),
		Recorder: rec,
		Observer: stepCollector(func(rover.StepEntry) error {
			seen++
			if seen == 9 {
				cancel()
			}
			return nil
		}),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rep.Result.Reason != "" || len(rep.Result.Log) >= len(full.Result.Log) {
		t.Fatalf("expected a partial run: reason=%q log=%s", rep.Result.Reason, rep.Result.Log)
	}

	dir := runstore.RunDir(dataDir, rep.RunID)
	sum, err := Verify(filepath.Join(dir, runstore.SnapshotName), dir)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !sum.Interrupted || sum.Reason != "" || sum.Tokens != len(rep.Result.Log) || sum.StepsChecked != len(rep.Result.Log) {
		t.Fatalf("summary=%+v", sum)
	}
}

func TestVerify_RejectsTamperedStepLog(t *testing.T) {
	dir, _ := recordRun(t, tuning.Defaults())
	steps, err := plog.ReadSteps(dir)
	if err != nil {
		t.Fatalf("ReadSteps: %v", err)
	}
	if err := os.RemoveAll(filepath.Join(dir, "steps")); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	steps[4].Digest = strings.Repeat("0", 64)
	l := plog.NewStepLogger(dir)
	for _, e := range steps {
		if err := l.WriteStep(e); err != nil {
			t.Fatalf("WriteStep: %v", err)
		}
	}
	_ = l.Close()

	_, err = Verify(filepath.Join(dir, runstore.SnapshotName), dir)
	if err == nil || !strings.Contains(err.Error(), "seq 5") {
		t.Fatalf("expected digest mismatch at seq 5, got %v", err)
	}
}

func TestVerify_RejectsTamperedSnapshot(t *testing.T) {
	dir, _ := recordRun(t, tuning.Defaults())
	path := filepath.Join(dir, runstore.SnapshotName)
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	snap.Result.Log = strings.Replace(snap.Result.Log, "P", "N", 1)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if _, err := Verify(path, dir); err == nil || !strings.Contains(err.Error(), "path log mismatch") {
		t.Fatalf("expected path log mismatch, got %v", err)
	}
}
