package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/petrijr/arbor/pkg/api"
)

// RunStore is the typed record layer over the KV contract. It owns the
// durable copies of runs, node executions and flow definitions; the
// in-memory structures in the engine are rebuilt from it on resume.
//
// Every mutation is a conditional write: callers carry the version
// returned by the previous write, so a concurrent writer (a second
// process that wrongly believes it owns the run) surfaces as
// ErrVersionConflict instead of silent lost updates.
type RunStore struct {
	kv KV
}

// NewRunStore wraps a KV backend.
func NewRunStore(kv KV) *RunStore {
	return &RunStore{kv: kv}
}

// KV exposes the underlying contract for collaborators that need raw
// conditional writes (the cluster coordinator).
func (s *RunStore) KV() KV { return s.kv }

// SaveFlow stores def as the latest definition for its name and as an
// immutable versioned copy. Re-registering an identical definition is a
// no-op; registering a changed definition moves the latest pointer and
// adds a new version.
func (s *RunStore) SaveFlow(ctx context.Context, def api.FlowDefinition) error {
	data, err := Encode(def)
	if err != nil {
		return err
	}

	verKey := FlowVersionKey(def.Name, def.Version())
	if _, err := s.kv.PutIfAbsent(ctx, verKey, data); err != nil && !errors.Is(err, ErrVersionConflict) {
		return err
	}

	key := FlowKey(def.Name)
	for {
		_, ver, ok, err := s.kv.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			ver = 0
		}
		if _, err := s.kv.PutIfVersion(ctx, key, data, ver); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return err
		}
		return nil
	}
}

// GetFlow returns the latest definition for a name.
func (s *RunStore) GetFlow(ctx context.Context, name string) (api.FlowDefinition, error) {
	data, _, ok, err := s.kv.Get(ctx, FlowKey(name))
	if err != nil {
		return api.FlowDefinition{}, err
	}
	if !ok {
		return api.FlowDefinition{}, fmt.Errorf("%w: %s", api.ErrFlowNotFound, name)
	}
	var def api.FlowDefinition
	if err := Decode(data, &def); err != nil {
		return api.FlowDefinition{}, err
	}
	return def, nil
}

// GetFlowVersion returns the exact definition a run was created from.
func (s *RunStore) GetFlowVersion(ctx context.Context, name, version string) (api.FlowDefinition, error) {
	data, _, ok, err := s.kv.Get(ctx, FlowVersionKey(name, version))
	if err != nil {
		return api.FlowDefinition{}, err
	}
	if !ok {
		return api.FlowDefinition{}, fmt.Errorf("%w: %s@%s", api.ErrFlowNotFound, name, version)
	}
	var def api.FlowDefinition
	if err := Decode(data, &def); err != nil {
		return api.FlowDefinition{}, err
	}
	return def, nil
}

// ListFlows returns the latest definition of every registered flow.
func (s *RunStore) ListFlows(ctx context.Context) ([]api.FlowDefinition, error) {
	entries, err := s.kv.List(ctx, flowPrefix)
	if err != nil {
		return nil, err
	}
	defs := make([]api.FlowDefinition, 0, len(entries))
	for _, e := range entries {
		var def api.FlowDefinition
		if err := Decode(e.Value, &def); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// CreateRun persists a new run record. The run id must be fresh.
func (s *RunStore) CreateRun(ctx context.Context, run *api.Run) (int64, error) {
	data, err := Encode(runRecord(run))
	if err != nil {
		return 0, err
	}
	return s.kv.PutIfAbsent(ctx, RunKey(run.ID), data)
}

// UpdateRun persists the run record, guarded by the version of the
// previous write.
func (s *RunStore) UpdateRun(ctx context.Context, run *api.Run, expect int64) (int64, error) {
	data, err := Encode(runRecord(run))
	if err != nil {
		return 0, err
	}
	return s.kv.PutIfVersion(ctx, RunKey(run.ID), data, expect)
}

// GetRun loads a run record and its node execution records.
func (s *RunStore) GetRun(ctx context.Context, id string) (*api.Run, int64, error) {
	data, ver, ok, err := s.kv.Get(ctx, RunKey(id))
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", api.ErrRunNotFound, id)
	}
	var run api.Run
	if err := Decode(data, &run); err != nil {
		return nil, 0, err
	}

	run.Nodes = make(map[string]*api.NodeExecution)
	nodes, err := s.kv.List(ctx, NodeKeyPrefix(id))
	if err != nil {
		return nil, 0, err
	}
	for _, e := range nodes {
		var ne api.NodeExecution
		if err := Decode(e.Value, &ne); err != nil {
			return nil, 0, err
		}
		run.Nodes[ne.NodeID] = &ne
	}
	return &run, ver, nil
}

// NodeVersions returns the stored version of every node record for a
// run, so a resuming scheduler can continue conditional writes.
func (s *RunStore) NodeVersions(ctx context.Context, runID string) (map[string]int64, error) {
	entries, err := s.kv.List(ctx, NodeKeyPrefix(runID))
	if err != nil {
		return nil, err
	}
	vers := make(map[string]int64, len(entries))
	for _, e := range entries {
		nodeID := strings.TrimPrefix(e.Key, NodeKeyPrefix(runID))
		vers[nodeID] = e.Version
	}
	return vers, nil
}

// ListRuns returns run records (without node details) matching opts.
func (s *RunStore) ListRuns(ctx context.Context, opts api.RunListOptions) ([]*api.Run, error) {
	entries, err := s.kv.List(ctx, runPrefix)
	if err != nil {
		return nil, err
	}
	var runs []*api.Run
	for _, e := range entries {
		var run api.Run
		if err := Decode(e.Value, &run); err != nil {
			return nil, err
		}
		if opts.FlowName != "" && run.FlowName != opts.FlowName {
			continue
		}
		if opts.Status != "" && run.Status != opts.Status {
			continue
		}
		runs = append(runs, &run)
	}
	return runs, nil
}

// SaveNode persists one node execution record under its run, guarded by
// the version of the previous write (0 for the first).
func (s *RunStore) SaveNode(ctx context.Context, runID string, ne *api.NodeExecution, expect int64) (int64, error) {
	data, err := Encode(ne)
	if err != nil {
		return 0, err
	}
	if expect == 0 {
		return s.kv.PutIfAbsent(ctx, NodeKey(runID, ne.NodeID), data)
	}
	return s.kv.PutIfVersion(ctx, NodeKey(runID, ne.NodeID), data, expect)
}

// RequestCancel records a cancellation request for a run. Idempotent.
func (s *RunStore) RequestCancel(ctx context.Context, runID string) error {
	_, err := s.kv.PutIfAbsent(ctx, CancelKey(runID), []byte("1"))
	if errors.Is(err, ErrVersionConflict) {
		return nil
	}
	return err
}

// CancelRequested reports whether cancellation has been requested.
func (s *RunStore) CancelRequested(ctx context.Context, runID string) (bool, error) {
	_, _, ok, err := s.kv.Get(ctx, CancelKey(runID))
	return ok, err
}

// ClearCancel removes the cancellation marker once the run is terminal.
func (s *RunStore) ClearCancel(ctx context.Context, runID string) error {
	return s.kv.Delete(ctx, CancelKey(runID))
}

// runRecord strips the node map before encoding: node executions are
// stored under their own keys so each transition is an independent
// conditional write.
func runRecord(run *api.Run) *api.Run {
	c := *run
	c.Nodes = nil
	return &c
}
