package runstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	plog "rovergrid.ai/internal/persistence/log"
	"rovergrid.ai/internal/persistence/snapshot"
	"rovergrid.ai/internal/sim/driver"
	"rovergrid.ai/internal/sim/rover"
)

const SnapshotName = "run.run.zst"

// FileRecorder lays runs out on disk:
//
//	<data>/runs/<run_id>/steps/steps-<hour>.jsonl.zst
//	<data>/runs/<run_id>/run.run.zst
//	<data>/journal/runs-<hour>.jsonl.zst
//
// It is safe for concurrent runs.
type FileRecorder struct {
	dataDir string

	mu      sync.Mutex
	steps   map[string]*plog.StepLogger
	journal *plog.RunLogger
}

func NewFileRecorder(dataDir string) *FileRecorder {
	return &FileRecorder{
		dataDir: dataDir,
		steps:   map[string]*plog.StepLogger{},
		journal: plog.NewRunLogger(dataDir),
	}
}

func RunDir(dataDir, runID string) string {
	return filepath.Join(dataDir, "runs", runID)
}

func SnapshotPath(dataDir, runID string) string {
	return filepath.Join(RunDir(dataDir, runID), SnapshotName)
}

func (f *FileRecorder) BeginRun(h driver.RunHeader) error {
	if h.RunID == "" {
		return errors.New("empty run id")
	}
	if err := os.MkdirAll(RunDir(f.dataDir, h.RunID), 0o755); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.steps[h.RunID]; !ok {
		f.steps[h.RunID] = plog.NewStepLogger(RunDir(f.dataDir, h.RunID))
	}
	return nil
}

func (f *FileRecorder) WriteStep(runID string, e rover.StepEntry) error {
	f.mu.Lock()
	l := f.steps[runID]
	f.mu.Unlock()
	if l == nil {
		return fmt.Errorf("run %s not begun", runID)
	}
	return l.WriteStep(e)
}

func (f *FileRecorder) EndRun(rep driver.Report) error {
	f.mu.Lock()
	l := f.steps[rep.RunID]
	delete(f.steps, rep.RunID)
	f.mu.Unlock()

	var errs []error
	if l != nil {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close step log: %w", err))
		}
	}
	if err := snapshot.WriteSnapshot(SnapshotPath(f.dataDir, rep.RunID), ToSnapshot(rep)); err != nil {
		errs = append(errs, fmt.Errorf("write snapshot: %w", err))
	}
	if err := f.journal.WriteRun(rep.ResultMsg("")); err != nil {
		errs = append(errs, fmt.Errorf("journal: %w", err))
	}
	return errors.Join(errs...)
}

// Close flushes the journal and any step logs of runs that never ended.
func (f *FileRecorder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for id, l := range f.steps {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(f.steps, id)
	}
	if err := f.journal.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func ToSnapshot(rep driver.Report) snapshot.RunSnapshotV1 {
	doc := rep.Mission.Doc()
	res := rep.Result
	return snapshot.RunSnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			RunID:   rep.RunID,
			Reason:  string(res.Reason),
			Steps:   res.Steps,
		},
		Mission: snapshot.MissionV1{
			Name:       doc.Name,
			GridSize:   doc.GridSize,
			Start:      doc.Start,
			Components: doc.Components,
		},
		MaxSteps:   rep.MaxSteps,
		StartedAt:  rep.StartedAt.UTC().Format(time.RFC3339Nano),
		DurationMS: rep.Duration.Milliseconds(),
		Result: snapshot.ResultV1{
			Reason:    string(res.Reason),
			Log:       res.Log.String(),
			Final:     [2]int{res.Final.X, res.Final.Y},
			Collected: res.Collected,
			Seen:      res.Seen,
			Steps:     res.Steps,
			Pending:   res.Pending,
			Digest:    res.Digest,
		},
	}
}

type RunInfo struct {
	RunID   string
	Dir     string
	Header  snapshot.Header
	ModTime time.Time
}

// List returns runs that have a snapshot, newest first.
func List(dataDir string) ([]RunInfo, error) {
	paths, err := filepath.Glob(filepath.Join(dataDir, "runs", "*", SnapshotName))
	if err != nil {
		return nil, err
	}
	out := make([]RunInfo, 0, len(paths))
	for _, p := range paths {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			continue
		}
		st, err := os.Stat(p)
		if err != nil {
			continue
		}
		out = append(out, RunInfo{RunID: h.RunID, Dir: filepath.Dir(p), Header: h, ModTime: st.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].RunID < out[j].RunID
	})
	return out, nil
}

func Latest(dataDir string) (RunInfo, error) {
	runs, err := List(dataDir)
	if err != nil {
		return RunInfo{}, err
	}
	if len(runs) == 0 {
		return RunInfo{}, fmt.Errorf("no runs under %s", dataDir)
	}
	return runs[0], nil
}
