package driver

import (
	"time"

	"rovergrid.ai/internal/protocol"
	"rovergrid.ai/internal/sim/mission"
	"rovergrid.ai/internal/sim/rover"
)

type Report struct {
	RunID     string
	Mission   mission.Mission
	MaxSteps  int
	Result    rover.Result
	StartedAt time.Time
	Duration  time.Duration
}

func (r Report) Complete() bool { return r.Result.Reason.Complete() }

func (r Report) ResultMsg(reqID string) protocol.ResultMsg {
	res := r.Result
	return protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		RunID:           r.RunID,
		Reason:          string(res.Reason),
		Log:             res.Log.String(),
		Final:           [2]int{res.Final.X, res.Final.Y},
		Collected:       res.Collected,
		Components:      len(r.Mission.Components),
		Seen:            res.Seen,
		Steps:           res.Steps,
		Pending:         res.Pending,
		Digest:          res.Digest,
		DurationMS:      r.Duration.Milliseconds(),
	}
}

func StepMsg(runID string, e rover.StepEntry) protocol.StepMsg {
	return protocol.StepMsg{
		Type:            protocol.TypeStep,
		ProtocolVersion: protocol.Version,
		RunID:           runID,
		Seq:             e.Seq,
		Token:           e.Token,
		Pos:             e.Pos,
		Phase:           string(e.Phase),
		Component:       e.Component,
		Next:            e.Next,
		Seen:            e.Seen,
		Digest:          e.Digest,
	}
}
