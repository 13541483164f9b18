package rover

import "rovergrid.ai/internal/sim/grid"

type Phase string

const (
	PhaseHoming   Phase = "HOMING"
	PhaseSweep    Phase = "SWEEP"
	PhaseBackfill Phase = "BACKFILL"
)

// Reason says why Run returned.
type Reason string

const (
	ReasonComplete       Reason = "COMPLETE"
	ReasonSweepExhausted Reason = "SWEEP_EXHAUSTED"
	ReasonStepLimit      Reason = "STEP_LIMIT"
)

func (r Reason) Complete() bool { return r == ReasonComplete }

const (
	North = 1
	South = -1
)

type Config struct {
	// MaxSteps caps the number of move tokens. 0 means no cap.
	MaxSteps int
}

// StepEntry describes the rover right after one token was appended to its log.
type StepEntry struct {
	Seq       int    `json:"seq"`
	Token     string `json:"token"`
	Pos       [2]int `json:"pos"`
	Phase     Phase  `json:"phase"`
	Component int    `json:"component,omitempty"` // id picked up, for P tokens
	Next      int    `json:"next"`
	Seen      int    `json:"seen"`
	Digest    string `json:"digest"`
}

// StepSink observes every token as it is appended. Implementations may be slow
// (disk, network); returning an error does not stop the run.
type StepSink interface {
	WriteStep(e StepEntry) error
}

type Result struct {
	Log       PathLog
	Reason    Reason
	Final     grid.Coord
	Collected int
	Seen      int
	Steps     int
	// Pending lists sighted but uncollected ids, ascending. Empty on COMPLETE.
	Pending []int
	Digest  string
}
