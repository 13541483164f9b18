package main

import (
	"context"
	"errors"
	"fmt"

	plog "rovergrid.ai/internal/persistence/log"
	"rovergrid.ai/internal/persistence/snapshot"
	"rovergrid.ai/internal/protocol"
	"rovergrid.ai/internal/sim/driver"
	"rovergrid.ai/internal/sim/mission"
	"rovergrid.ai/internal/sim/rover"
	"rovergrid.ai/internal/sim/tuning"
)

type Summary struct {
	RunID        string
	Reason       string
	Moves        int
	Tokens       int
	StepsChecked int
	// Interrupted is set for runs recorded after a cancel (empty reason). They
	// are replayed up to the recorded token count.
	Interrupted bool
}

// Verify re-runs the mission stored in a run snapshot and checks the path log,
// the termination reason and the final digest. When runDir holds a step log,
// every recorded step digest is checked as well.
func Verify(snapPath, runDir string) (Summary, error) {
	snap, err := snapshot.ReadSnapshot(snapPath)
	if err != nil {
		return Summary{}, fmt.Errorf("read snapshot: %w", err)
	}
	sum := Summary{
		RunID:       snap.Header.RunID,
		Reason:      snap.Result.Reason,
		Interrupted: snap.Result.Reason == "",
	}

	m := mission.FromDoc(protocol.MissionDoc{
		Name:       snap.Mission.Name,
		GridSize:   snap.Mission.GridSize,
		Start:      snap.Mission.Start,
		Components: snap.Mission.Components,
	})

	// Limits that applied when the run was recorded are already baked into the snapshot.
	t := tuning.Defaults()
	t.MaxSteps = snap.MaxSteps
	t.MaxGridSize = 0
	t.MaxComponents = 0
	t.RecordSteps = false

	// The rover only notices a cancel between sweep steps, so cancelling right
	// after the last recorded token stops the replay where the recording stopped.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopAt := len(snap.Result.Log)
	if sum.Interrupted && stopAt == 0 {
		cancel()
	}

	var replayed []rover.StepEntry
	rep, err := driver.Run(ctx, m, driver.Options{
		Tuning: t,
		RunID:  snap.Header.RunID,
		Observer: stepCollector(func(e rover.StepEntry) error {
			replayed = append(replayed, e)
			if sum.Interrupted && len(replayed) == stopAt {
				cancel()
			}
			return nil
		}),
	})
	if err != nil && !(sum.Interrupted && errors.Is(err, context.Canceled)) {
		return sum, fmt.Errorf("re-run: %w", err)
	}
	res := rep.Result
	sum.Moves = res.Steps
	sum.Tokens = len(res.Log)

	if got := res.Log.String(); got != snap.Result.Log {
		return sum, fmt.Errorf("path log mismatch at token %d: got=%q want=%q",
			firstDiff(got, snap.Result.Log), clip(got), clip(snap.Result.Log))
	}
	if string(res.Reason) != snap.Result.Reason {
		return sum, fmt.Errorf("reason mismatch: got=%s want=%s", res.Reason, snap.Result.Reason)
	}
	if res.Digest != snap.Result.Digest {
		return sum, fmt.Errorf("final digest mismatch: got=%s want=%s", res.Digest, snap.Result.Digest)
	}

	recorded, err := plog.ReadSteps(runDir)
	if err != nil {
		return sum, fmt.Errorf("read steps: %w", err)
	}
	if len(recorded) == 0 {
		return sum, nil
	}
	if len(recorded) != len(replayed) {
		return sum, fmt.Errorf("step count mismatch: recorded=%d replayed=%d", len(recorded), len(replayed))
	}
	for i, want := range recorded {
		got := replayed[i]
		if got.Seq != want.Seq || got.Token != want.Token {
			return sum, fmt.Errorf("step %d: got %s#%d want %s#%d", i+1, got.Token, got.Seq, want.Token, want.Seq)
		}
		if got.Digest != want.Digest {
			return sum, fmt.Errorf("digest mismatch at seq %d: got=%s want=%s", want.Seq, got.Digest, want.Digest)
		}
		sum.StepsChecked++
	}
	return sum, nil
}

type stepCollector func(rover.StepEntry) error

func (f stepCollector) WriteStep(e rover.StepEntry) error { return f(e) }

func firstDiff(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i + 1
		}
	}
	return n + 1
}

func clip(s string) string {
	if len(s) <= 64 {
		return s
	}
	return s[:64] + "..."
}
