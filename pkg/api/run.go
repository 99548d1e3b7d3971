package api

import "time"

// RunStatus is the overall lifecycle state of a run.
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
	RunCancelled RunStatus = "CANCELLED"
)

// Terminal reports whether the run has reached a final status.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunCancelled
}

// NodeStatus is the per-node execution state. Transitions follow
//
//	Pending -> Ready -> Running -> {Succeeded | Failed}
//
// with Failed looping back to Ready while retry attempts remain, and
// Pending -> Skipped for nodes behind a branch path not taken.
type NodeStatus string

const (
	NodePending   NodeStatus = "PENDING"
	NodeReady     NodeStatus = "READY"
	NodeRunning   NodeStatus = "RUNNING"
	NodeSucceeded NodeStatus = "SUCCEEDED"
	NodeFailed    NodeStatus = "FAILED"
	NodeSkipped   NodeStatus = "SKIPPED"
)

// Terminal reports whether the node has reached a final status. A Failed
// node with attempts remaining is not terminal; the scheduler moves it
// back to Ready before it is observed here.
func (s NodeStatus) Terminal() bool {
	return s == NodeSucceeded || s == NodeFailed || s == NodeSkipped
}

// NodeError records why a node attempt (or the node itself) failed.
// Kind is one of the ErrorKind constants in errors.go.
type NodeError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Attempt int       `json:"attempt,omitempty"`
}

func (e *NodeError) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Kind) + ": " + e.Message
}

// NodeExecution is the record of one node within one run.
type NodeExecution struct {
	NodeID   string     `json:"node_id"`
	Status   NodeStatus `json:"status"`
	Attempts int        `json:"attempts"`

	// Input is the node's resolved configuration snapshot, captured at
	// dispatch time after template resolution.
	Input  map[string]any `json:"input,omitempty"`
	Output map[string]any `json:"output,omitempty"`
	Error  *NodeError     `json:"error,omitempty"`

	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Run identifies one execution of one flow definition version.
type Run struct {
	ID          string         `json:"id"`
	FlowName    string         `json:"flow_name"`
	FlowVersion string         `json:"flow_version"`
	Trigger     map[string]any `json:"trigger,omitempty"`
	Status      RunStatus      `json:"status"`

	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// LeaseOwner is the identity of the node currently (or last) driving
	// this run. Informational; ownership is enforced by the lease record
	// in storage, not by this field.
	LeaseOwner string `json:"lease_owner,omitempty"`

	// Nodes holds the per-node execution records, keyed by node id.
	Nodes map[string]*NodeExecution `json:"nodes,omitempty"`
}

// FailureTrail returns the per-node failure records of a failed run, in
// no particular order. Empty for runs without terminal node failures.
func (r *Run) FailureTrail() []*NodeExecution {
	var trail []*NodeExecution
	for _, n := range r.Nodes {
		if n.Status == NodeFailed {
			trail = append(trail, n)
		}
	}
	return trail
}

// RunContext is the derived mapping from node id to output among the
// run's Succeeded nodes, plus the trigger payload. It is what templated
// expressions resolve against.
type RunContext struct {
	Trigger map[string]any
	Outputs map[string]map[string]any
}

// NewRunContext builds an empty context for the given trigger payload.
func NewRunContext(trigger map[string]any) RunContext {
	return RunContext{
		Trigger: trigger,
		Outputs: make(map[string]map[string]any),
	}
}

// RunListOptions filters ListRuns. Zero values mean "no filter".
type RunListOptions struct {
	FlowName string
	Status   RunStatus
}
