package protocol

type NodeRef struct {
	WorldID string `json:"world_id"`
	Pos     [3]int `json:"pos"`
}

// ControlRequest is a player interaction with a node. Pos names the node
// acted on; CANCEL_LINK ignores it.
type ControlRequest struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version,omitempty"`
	RequestID       string  `json:"request_id,omitempty"`
	Initiator       string  `json:"initiator"`
	WorldID         string  `json:"world_id,omitempty"`
	Pos             *[3]int `json:"pos,omitempty"`
}

type ControlResponse struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	OK        bool        `json:"ok"`
	Code      string      `json:"code,omitempty"`
	Message   string      `json:"message,omitempty"`
	Status    *NodeStatus `json:"status,omitempty"`
}

const (
	NodeKindInput  = "INPUT"
	NodeKindOutput = "OUTPUT"
)

// NodeStatus describes one node. Buffered and Capacity describe an input's
// capture buffer and stay zero for outputs, which report Pending and
// MaxInputs instead.
type NodeStatus struct {
	Node     NodeRef `json:"node"`
	Kind     string  `json:"kind"`
	Buffered int     `json:"buffered"`
	Capacity int     `json:"capacity"`
	Paired   bool    `json:"paired"`

	PairedOutput *NodeRef  `json:"paired_output,omitempty"`
	PairedInputs []NodeRef `json:"paired_inputs,omitempty"`
	Pending      int       `json:"pending,omitempty"`
	MaxInputs    int       `json:"max_inputs,omitempty"`

	VisualState      string `json:"visual_state,omitempty"`
	Backoff          uint64 `json:"backoff,omitempty"`
	BackoffRemaining uint64 `json:"backoff_remaining,omitempty"`
	NextReleaseETA   *int64 `json:"next_release_eta,omitempty"`
}

// TransitEventMsg is pushed to control clients for every pipeline event.
type TransitEventMsg struct {
	Type      string  `json:"type"`
	Tick      uint64  `json:"tick"`
	Kind      string  `json:"kind"`
	Node      NodeRef `json:"node"`
	Pos       [3]int  `json:"pos"`
	ActorType string  `json:"actor_type,omitempty"`
	ActorID   string  `json:"actor_id,omitempty"`
	Backoff   uint64  `json:"backoff,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

func OKResponse(req ControlRequest, st *NodeStatus) ControlResponse {
	return ControlResponse{Type: TypeResult, RequestID: req.RequestID, OK: true, Status: st}
}

func ErrorResponse(req ControlRequest, code, msg string) ControlResponse {
	return ControlResponse{Type: TypeResult, RequestID: req.RequestID, Code: code, Message: msg}
}
