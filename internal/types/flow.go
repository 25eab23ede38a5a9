package types

// DataType represents the transport used to serve a flow's bytes
type DataType string

const (
	// DataTypeInMemory serves the flow from the owning process's memory
	DataTypeInMemory DataType = "IN_MEMORY"
	// DataTypeNetwork serves the flow through the agent's data server
	DataTypeNetwork DataType = "NETWORK"
)

// FlowDescriptor describes a single data transfer unit. Descriptors are
// owned by clients and the master; the agent only relays them, rewriting
// the control port for network-served flows.
type FlowDescriptor struct {
	ID          string   `json:"id"`
	CoflowID    string   `json:"coflow_id"`
	DataType    DataType `json:"data_type"`
	Address     string   `json:"address,omitempty"`
	ControlPort int      `json:"control_port,omitempty"`
	SizeBytes   int64    `json:"size_bytes,omitempty"`
}

// CoflowHandle identifies a registered coflow
type CoflowHandle struct {
	ID       string `json:"id"`
	ClientID string `json:"client_id,omitempty"`
}

// AddFlowsRequest carries a batch of flow registrations for one coflow
type AddFlowsRequest struct {
	CoflowID string           `json:"coflow_id"`
	DataType DataType         `json:"data_type"`
	Flows    []FlowDescriptor `json:"flows"`
}
