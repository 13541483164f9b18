package driver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"rovergrid.ai/internal/protocol"
	"rovergrid.ai/internal/sim/grid"
	"rovergrid.ai/internal/sim/mission"
	"rovergrid.ai/internal/sim/rover"
	"rovergrid.ai/internal/sim/tuning"
)

type fakeRecorder struct {
	mu      sync.Mutex
	headers []RunHeader
	steps   map[string][]rover.StepEntry
	reports []Report
	stepErr error
}

func (f *fakeRecorder) BeginRun(h RunHeader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers = append(f.headers, h)
	return nil
}

func (f *fakeRecorder) WriteStep(runID string, e rover.StepEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.steps == nil {
		f.steps = map[string][]rover.StepEntry{}
	}
	f.steps[runID] = append(f.steps[runID], e)
	return f.stepErr
}

func (f *fakeRecorder) EndRun(rep Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, rep)
	return nil
}

func cornersMission() mission.Mission {
	return mission.Mission{
		Name:       "corners",
		GridSize:   3,
		Start:      grid.Coord{X: 2, Y: 2},
		Components: []grid.Coord{{X: 0, Y: 0}, {X: 3, Y: 0}},
	}
}

func TestRun_RecordsHeaderStepsAndReport(t *testing.T) {
	rec := &fakeRecorder{}
	rep, err := Run(context.Background(), cornersMission(), Options{Tuning: tuning.Defaults(), Recorder: rec})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	const want = "SSWWPNNNESSSENNNESSSP"
	if got := rep.Result.Log.String(); got != want {
		t.Fatalf("log=%q want %q", got, want)
	}
	if !rep.Complete() || rep.RunID == "" {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if len(rec.headers) != 1 || rec.headers[0].RunID != rep.RunID {
		t.Fatalf("headers=%+v", rec.headers)
	}
	if rec.headers[0].Mission.GridSize != 3 || rec.headers[0].Mission.Start != [2]int{2, 2} {
		t.Fatalf("header mission=%+v", rec.headers[0].Mission)
	}
	steps := rec.steps[rep.RunID]
	if len(steps) != len(want) {
		t.Fatalf("steps=%d want %d", len(steps), len(want))
	}
	for i, e := range steps {
		if e.Seq != i+1 || e.Token != string(want[i]) {
			t.Fatalf("step %d: %+v", i, e)
		}
	}
	if steps[len(steps)-1].Digest != rep.Result.Digest {
		t.Fatalf("last step digest should match result digest")
	}
	if len(rec.reports) != 1 || rec.reports[0].RunID != rep.RunID {
		t.Fatalf("reports=%+v", rec.reports)
	}
}

func TestRun_RecordStepsDisabledStillObserves(t *testing.T) {
	rec := &fakeRecorder{}
	obs := &fakeRecorder{}
	tune := tuning.Defaults()
	tune.RecordSteps = false
	rep, err := Run(context.Background(), cornersMission(), Options{
		Tuning:   tune,
		Recorder: rec,
		Observer: stepFunc(func(e rover.StepEntry) error { return obs.WriteStep("obs", e) }),
		RunID:    "fixed",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.RunID != "fixed" {
		t.Fatalf("run id=%q", rep.RunID)
	}
	if len(rec.steps) != 0 {
		t.Fatalf("steps recorded with record_steps=false")
	}
	if len(obs.steps["obs"]) != len(rep.Result.Log) {
		t.Fatalf("observer saw %d steps want %d", len(obs.steps["obs"]), len(rep.Result.Log))
	}
	if len(rec.reports) != 1 {
		t.Fatalf("run summary should still be recorded")
	}
}

func TestRun_RecorderErrorsAreNotFatal(t *testing.T) {
	rec := &fakeRecorder{stepErr: errors.New("disk full")}
	rep, err := Run(context.Background(), cornersMission(), Options{Tuning: tuning.Defaults(), Recorder: rec})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Complete() {
		t.Fatalf("reason=%s", rep.Result.Reason)
	}
}

func TestRun_Limits(t *testing.T) {
	tune := tuning.Defaults()
	tune.MaxGridSize = 2
	_, err := Run(context.Background(), cornersMission(), Options{Tuning: tune})
	if mission.CodeOf(err) != protocol.ErrTooLarge {
		t.Fatalf("code=%q err=%v", mission.CodeOf(err), err)
	}

	tune = tuning.Defaults()
	tune.MaxComponents = 1
	_, err = Run(context.Background(), cornersMission(), Options{Tuning: tune})
	if mission.CodeOf(err) != protocol.ErrTooLarge {
		t.Fatalf("code=%q err=%v", mission.CodeOf(err), err)
	}

	bad := cornersMission()
	bad.Components = append(bad.Components, grid.Coord{X: 0, Y: 0})
	rec := &fakeRecorder{}
	_, err = Run(context.Background(), bad, Options{Tuning: tuning.Defaults(), Recorder: rec})
	if mission.CodeOf(err) != protocol.ErrDuplicateComponent {
		t.Fatalf("code=%q err=%v", mission.CodeOf(err), err)
	}
	if len(rec.headers) != 0 {
		t.Fatalf("invalid mission must not be recorded")
	}
}

func TestRun_StepLimit(t *testing.T) {
	rep, err := Run(context.Background(), cornersMission(), Options{Tuning: tuning.Defaults(), MaxSteps: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Result.Reason != rover.ReasonStepLimit || rep.Result.Log.String() != "SSW" || rep.MaxSteps != 3 {
		t.Fatalf("unexpected: reason=%s log=%q max=%d", rep.Result.Reason, rep.Result.Log, rep.MaxSteps)
	}
	msg := rep.ResultMsg("r1")
	if msg.Type != protocol.TypeResult || msg.ReqID != "r1" || msg.Log != "SSW" || msg.Components != 2 || msg.Collected != 0 {
		t.Fatalf("msg=%+v", msg)
	}
}

func TestRun_LargestGridCompletesUnderDefaults(t *testing.T) {
	if testing.Short() {
		t.Skip("full sweep of the largest grid")
	}
	tune := tuning.Defaults()
	tune.RecordSteps = false
	size := tune.MaxGridSize
	m := mission.Mission{
		GridSize:   size,
		Start:      grid.Coord{},
		Components: []grid.Coord{{X: size, Y: size}},
	}
	rep, err := Run(context.Background(), m, Options{Tuning: tune})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Complete() || rep.Result.Collected != 1 {
		t.Fatalf("reason=%s collected=%d moves=%d", rep.Result.Reason, rep.Result.Collected, rep.Result.Steps)
	}
	// Every cell of the grid is swept once before the last one is reached.
	if want := (size+1)*(size+1) - 1; rep.Result.Steps != want {
		t.Fatalf("moves=%d want %d", rep.Result.Steps, want)
	}
}

func TestRun_CanceledStillEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &fakeRecorder{}
	rep, err := Run(ctx, cornersMission(), Options{Tuning: tuning.Defaults(), Recorder: rec})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	if rep.Result.Reason != "" || len(rec.reports) != 1 {
		t.Fatalf("reason=%q reports=%d", rep.Result.Reason, len(rec.reports))
	}
}

func TestEffectiveMaxSteps(t *testing.T) {
	cases := []struct{ conf, req, want int }{
		{100, 0, 100},
		{100, 10, 10},
		{100, 1000, 100},
		{0, 50, 50},
		{0, 0, 0},
	}
	for _, c := range cases {
		if got := EffectiveMaxSteps(c.conf, c.req); got != c.want {
			t.Fatalf("EffectiveMaxSteps(%d,%d)=%d want %d", c.conf, c.req, got, c.want)
		}
	}
}

func TestMultiRecorder_FansOut(t *testing.T) {
	a, b := &fakeRecorder{}, &fakeRecorder{stepErr: errors.New("b")}
	m := MultiRecorder{a, nil, b}
	if err := m.BeginRun(RunHeader{RunID: "x"}); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := m.WriteStep("x", rover.StepEntry{Seq: 1}); err == nil {
		t.Fatalf("expected joined error")
	}
	if len(a.steps["x"]) != 1 || len(b.steps["x"]) != 1 {
		t.Fatalf("fan-out incomplete")
	}
}

type stepFunc func(rover.StepEntry) error

func (f stepFunc) WriteStep(e rover.StepEntry) error { return f(e) }
