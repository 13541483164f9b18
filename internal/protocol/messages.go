package protocol

// MissionDoc is the document form of a mission, shared by mission files,
// POST /v1/runs and the RUN message.
type MissionDoc struct {
	Name       string   `json:"name,omitempty"`
	GridSize   int      `json:"grid_size"`
	Start      [2]int   `json:"start"`
	Components [][2]int `json:"components"`
}

// RUN (client -> server)
type RunMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ReqID           string     `json:"req_id,omitempty"`
	Mission         MissionDoc `json:"mission"`
	// MaxSteps lowers the server step cap for this run; it can never raise it.
	MaxSteps int `json:"max_steps,omitempty"`
}

// STEP (server -> client), one per path log token.
type StepMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RunID           string `json:"run_id"`
	Seq             int    `json:"seq"`
	Token           string `json:"token"`
	Pos             [2]int `json:"pos"`
	Phase           string `json:"phase"`
	Component       int    `json:"component,omitempty"`
	Next            int    `json:"next"`
	Seen            int    `json:"seen"`
	Digest          string `json:"digest"`
}

// RESULT (server -> client)
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	RunID           string `json:"run_id"`
	Reason          string `json:"reason"`
	Log             string `json:"log"`
	Final           [2]int `json:"final"`
	Collected       int    `json:"collected"`
	Components      int    `json:"components"`
	Seen            int    `json:"seen"`
	Steps           int    `json:"steps"`
	Pending         []int  `json:"pending,omitempty"`
	Digest          string `json:"digest"`
	DurationMS      int64  `json:"duration_ms"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(reqID, code, msg string) ErrorMsg {
	return ErrorMsg{
		Type:            TypeError,
		ProtocolVersion: Version,
		ReqID:           reqID,
		Code:            code,
		Message:         msg,
	}
}
