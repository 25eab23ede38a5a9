package types

// RegisterRequest is sent by an agent to the master exactly once at startup
type RegisterRequest struct {
	AgentID       string `json:"agent_id"`
	Host          string `json:"host"`
	ControlPort   int    `json:"control_port"`
	WebPort       int    `json:"web_port"`
	DataPort      int    `json:"data_port"`
	PublicAddress string `json:"public_address"`
}

// RegisteredAck is the master's positive reply to a RegisterRequest
type RegisteredAck struct {
	MasterUI string `json:"master_ui"`
}

// RegistrationRejected is the master's negative reply to a RegisterRequest
type RegistrationRejected struct {
	Reason string `json:"reason"`
}

// Heartbeat is the periodic liveness and throughput report. It is
// fire-and-forget: the agent never waits for a reply.
type Heartbeat struct {
	AgentID string  `json:"agent_id"`
	RxBps   float64 `json:"rx_bps"`
	TxBps   float64 `json:"tx_bps"`
}

// BandwidthRate is the instantaneous throughput derived from two
// consecutive counter samples. Rates can be transiently negative when an
// interface counter resets between samples; consumers must tolerate that.
type BandwidthRate struct {
	RxBps float64 `json:"rx_bps"`
	TxBps float64 `json:"tx_bps"`
}

// AgentView is an on-demand snapshot of the agent's state for
// introspection queries. It is never persisted.
type AgentView struct {
	ID             string  `json:"id"`
	Host           string  `json:"host"`
	ControlPort    int     `json:"control_port"`
	MasterEndpoint string  `json:"master_endpoint"`
	MasterUI       string  `json:"master_ui,omitempty"`
	RxBps          float64 `json:"rx_bps"`
	TxBps          float64 `json:"tx_bps"`
}

// ControlKind enumerates the flow/coflow lifecycle messages an agent accepts
type ControlKind string

const (
	ControlRegisterCoflow   ControlKind = "register_coflow"
	ControlUnregisterCoflow ControlKind = "unregister_coflow"
	ControlAddFlow          ControlKind = "add_flow"
	ControlAddFlows         ControlKind = "add_flows"
	ControlGetFlow          ControlKind = "get_flow"
	ControlGetFlows         ControlKind = "get_flows"
	ControlDeleteFlow       ControlKind = "delete_flow"
)

// ControlMessage is the agent-internal form of an inbound control
// message. Exactly one of the payload fields is set depending on Kind.
type ControlMessage struct {
	ID       string           `json:"id"`
	Kind     ControlKind      `json:"kind"`
	Coflow   *CoflowHandle    `json:"coflow,omitempty"`
	Flow     *FlowDescriptor  `json:"flow,omitempty"`
	Batch    *AddFlowsRequest `json:"batch,omitempty"`
	FlowID   string           `json:"flow_id,omitempty"`
	CoflowID string           `json:"coflow_id,omitempty"`
}
