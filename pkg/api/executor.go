package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ExecRequest carries everything an executor needs to perform one node
// attempt. Config is the node's configuration after template resolution;
// Inputs maps each satisfied predecessor's node id to its output.
type ExecRequest struct {
	RunID   string
	Node    NodeSpec
	Config  map[string]any
	Inputs  map[string]map[string]any
	Trigger map[string]any
	Attempt int
}

// Executor performs the work of one node kind. Implementations must
// honor ctx cancellation: a cancelled context means the run is being
// stopped and the attempt's outcome will be discarded or retried.
//
// Return errors wrapped with Retryable or Fatal to control retry
// behavior; plain errors are treated as retryable.
type Executor interface {
	Execute(ctx context.Context, req ExecRequest) (map[string]any, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req ExecRequest) (map[string]any, error)

func (f ExecutorFunc) Execute(ctx context.Context, req ExecRequest) (map[string]any, error) {
	return f(ctx, req)
}

// Registry maps node kinds to executors. It is safe for concurrent use.
// Hosts register one executor per kind they declare in their flows;
// adding a kind means registering an executor, not changing the engine.
type Registry struct {
	mu        sync.RWMutex
	executors map[NodeKind]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[NodeKind]Executor)}
}

// Register installs an executor for the given kind, replacing any
// previous registration.
func (r *Registry) Register(kind NodeKind, ex Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[kind] = ex
}

// Get returns the executor for a kind, or ErrUnknownKind.
func (r *Registry) Get(kind NodeKind) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ex, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return ex, nil
}

// Has reports whether a kind is registered.
func (r *Registry) Has(kind NodeKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[kind]
	return ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []NodeKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]NodeKind, 0, len(r.executors))
	for k := range r.executors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
