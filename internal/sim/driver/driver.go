package driver

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"rovergrid.ai/internal/protocol"
	"rovergrid.ai/internal/sim/mission"
	"rovergrid.ai/internal/sim/rover"
	"rovergrid.ai/internal/sim/tuning"
)

type Options struct {
	Tuning tuning.Tuning

	// Recorder receives the run header, steps (when Tuning.RecordSteps) and the final report.
	Recorder Recorder
	// Observer sees every step regardless of RecordSteps (live streaming).
	Observer rover.StepSink

	// MaxSteps lowers Tuning.MaxSteps for this run when positive.
	MaxSteps int
	// RunID is generated when empty.
	RunID string

	Logger *log.Logger
}

// Run validates m, builds the grid and rover, and drives it to termination.
// Validation failures return a *mission.Error and no report. A cancelled context
// still produces a report (and EndRun) for the partial run.
func Run(ctx context.Context, m mission.Mission, opts Options) (Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if err := checkLimits(m, opts.Tuning); err != nil {
		return Report{}, err
	}
	if err := m.Validate(); err != nil {
		return Report{}, err
	}
	g, err := m.Grid()
	if err != nil {
		return Report{}, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	maxSteps := EffectiveMaxSteps(opts.Tuning.MaxSteps, opts.MaxSteps)
	started := time.Now().UTC()

	r := rover.New(g, m.Start, rover.Config{MaxSteps: maxSteps})

	var sinks fanout
	if opts.Observer != nil {
		sinks = append(sinks, opts.Observer)
	}
	rec := opts.Recorder
	if rec != nil {
		if err := rec.BeginRun(RunHeader{
			RunID:     runID,
			Mission:   m.Doc(),
			MaxSteps:  maxSteps,
			StartedAt: started,
		}); err != nil {
			logger.Printf("run %s: begin record: %v", runID, err)
		}
		if opts.Tuning.RecordSteps {
			sinks = append(sinks, &recorderSink{runID: runID, rec: rec, logger: logger})
		}
	}
	if len(sinks) > 0 {
		r.SetStepSink(sinks)
	}

	res, runErr := r.Run(ctx)
	rep := Report{
		RunID:     runID,
		Mission:   m,
		MaxSteps:  maxSteps,
		Result:    res,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	if rec != nil {
		if err := rec.EndRun(rep); err != nil {
			logger.Printf("run %s: end record: %v", runID, err)
		}
	}
	return rep, runErr
}

// EffectiveMaxSteps applies a per-run cap on top of the configured one; the
// per-run value can only lower it.
func EffectiveMaxSteps(configured, requested int) int {
	if requested <= 0 {
		return configured
	}
	if configured <= 0 || requested < configured {
		return requested
	}
	return configured
}

func checkLimits(m mission.Mission, t tuning.Tuning) error {
	if t.MaxGridSize > 0 && m.GridSize > t.MaxGridSize {
		return &mission.Error{Code: protocol.ErrTooLarge, Msg: "grid size exceeds max_grid_size"}
	}
	if t.MaxComponents > 0 && len(m.Components) > t.MaxComponents {
		return &mission.Error{Code: protocol.ErrTooLarge, Msg: "component count exceeds max_components"}
	}
	return nil
}

type fanout []rover.StepSink

func (f fanout) WriteStep(e rover.StepEntry) error {
	var first error
	for _, s := range f {
		if err := s.WriteStep(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// recorderSink logs the first recording error of a run and counts the rest.
type recorderSink struct {
	runID  string
	rec    Recorder
	logger *log.Logger
	failed int
}

func (s *recorderSink) WriteStep(e rover.StepEntry) error {
	if err := s.rec.WriteStep(s.runID, e); err != nil {
		if s.failed == 0 {
			s.logger.Printf("run %s: record step %d: %v", s.runID, e.Seq, err)
		}
		s.failed++
		return err
	}
	return nil
}
