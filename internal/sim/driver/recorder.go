package driver

import (
	"errors"
	"time"

	"rovergrid.ai/internal/protocol"
	"rovergrid.ai/internal/sim/rover"
)

// RunHeader is what is known about a run before the rover moves.
type RunHeader struct {
	RunID     string              `json:"run_id"`
	Mission   protocol.MissionDoc `json:"mission"`
	MaxSteps  int                 `json:"max_steps"`
	StartedAt time.Time           `json:"started_at"`
}

type Recorder interface {
	BeginRun(h RunHeader) error
	WriteStep(runID string, e rover.StepEntry) error
	EndRun(rep Report) error
}

// MultiRecorder fans every call out to all recorders and joins their errors.
type MultiRecorder []Recorder

func (m MultiRecorder) BeginRun(h RunHeader) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.BeginRun(h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiRecorder) WriteStep(runID string, e rover.StepEntry) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.WriteStep(runID, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiRecorder) EndRun(rep Report) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.EndRun(rep); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
