package api

import (
	"time"
)

// NodeKind tags a node with the capability that executes it. The set is
// open: hosts register an Executor for each kind they use. The constants
// below cover the kinds shipped with arbor's pkg/exec.
type NodeKind string

const (
	KindTrigger   NodeKind = "trigger"
	KindTool      NodeKind = "tool"
	KindAgent     NodeKind = "agent"
	KindDataSink  NodeKind = "data-sink"
	KindBranch    NodeKind = "branch"
	KindTransform NodeKind = "transform"
	KindDelay     NodeKind = "delay"
)

// Backoff selects the shape of the delay between retry attempts.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// RetryPolicy controls how a node is retried when an attempt fails.
// MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 3 => initial call + up to 2 retries
//
// Timeout, if > 0, bounds each individual attempt; a timed-out attempt
// counts as a failed (retryable) attempt.
type RetryPolicy struct {
	MaxAttempts  int           `json:"max_attempts"`
	Backoff      Backoff       `json:"backoff,omitempty"`
	InitialDelay time.Duration `json:"initial_delay,omitempty"`
	MaxDelay     time.Duration `json:"max_delay,omitempty"`
	// Multiplier grows the delay each attempt for BackoffExponential.
	// Values <= 1 are treated as 2.0.
	Multiplier float64 `json:"multiplier,omitempty"`
	// Jitter is the fraction (0..1) of the computed delay that is
	// randomized to avoid retry stampedes across nodes.
	Jitter  float64       `json:"jitter,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

// DefaultRetryPolicy returns the documented default policy: 3 attempts
// with exponential backoff starting at 1s, capped at 30s, multiplier 2.0
// and 20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		Backoff:      BackoffExponential,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// NodeSpec declares a single step of a flow.
//
// Config values may contain templated expressions ({{node.field}},
// {{trigger.field}}, {{now()}}); they are resolved against the run
// context immediately before the node is dispatched.
type NodeSpec struct {
	ID     string         `json:"id"`
	Kind   NodeKind       `json:"type"`
	Config map[string]any `json:"config,omitempty"`
	Retry  *RetryPolicy   `json:"retry,omitempty"`

	// RequireSucceeded makes this node insist that every predecessor
	// actually Succeeded: a Skipped predecessor skips this node too.
	// The default lets unaffected branches proceed around a skip.
	RequireSucceeded bool `json:"require_succeeded,omitempty"`

	// BestEffort lets this node run even when a predecessor failed
	// terminally, treating the missing input as absent instead of
	// cascading the failure.
	BestEffort bool `json:"best_effort,omitempty"`
}

// EdgeSpec declares a dependency between two nodes. Guard is only
// meaningful on edges leaving a branch-kind node; it is the boolean
// routing condition selecting whether the edge is live for a given run.
type EdgeSpec struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Guard string `json:"guard,omitempty"`
}

// FlowDefinition describes a flow as a directed acyclic graph of typed
// nodes. Definitions are immutable once registered; they are identified
// by a content-derived version (see Version).
type FlowDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	Nodes       []NodeSpec     `json:"nodes"`
	Edges       []EdgeSpec     `json:"edges"`
}

// Node returns the spec for the given node id, if declared.
func (d FlowDefinition) Node(id string) (NodeSpec, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeSpec{}, false
}
