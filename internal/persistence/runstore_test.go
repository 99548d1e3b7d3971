package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/arbor/pkg/api"
)

func testFlow(name string) api.FlowDefinition {
	return api.FlowDefinition{
		Name: name,
		Nodes: []api.NodeSpec{
			{ID: "in", Kind: api.KindTrigger},
			{ID: "out", Kind: api.KindDataSink, Config: map[string]any{"routing_key": "x"}},
		},
		Edges: []api.EdgeSpec{{From: "in", To: "out"}},
	}
}

func TestRunStore_FlowRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewRunStore(NewMemoryStore())

	def := testFlow("orders")
	require.NoError(t, s.SaveFlow(ctx, def))

	got, err := s.GetFlow(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, def.Name, got.Name)
	assert.Equal(t, def.Version(), got.Version())

	byVersion, err := s.GetFlowVersion(ctx, "orders", def.Version())
	require.NoError(t, err)
	assert.Equal(t, def.Version(), byVersion.Version())

	_, err = s.GetFlow(ctx, "ghost")
	assert.ErrorIs(t, err, api.ErrFlowNotFound)
}

func TestRunStore_ReRegisterKeepsOldVersion(t *testing.T) {
	ctx := context.Background()
	s := NewRunStore(NewMemoryStore())

	v1 := testFlow("orders")
	require.NoError(t, s.SaveFlow(ctx, v1))

	v2 := testFlow("orders")
	v2.Nodes[1].Config = map[string]any{"routing_key": "y"}
	require.NoError(t, s.SaveFlow(ctx, v2))
	require.NotEqual(t, v1.Version(), v2.Version())

	latest, err := s.GetFlow(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, v2.Version(), latest.Version())

	// Runs pinned to the old version still find their definition.
	old, err := s.GetFlowVersion(ctx, "orders", v1.Version())
	require.NoError(t, err)
	assert.Equal(t, v1.Version(), old.Version())
}

func TestRunStore_RunAndNodeRecords(t *testing.T) {
	ctx := context.Background()
	s := NewRunStore(NewMemoryStore())

	run := &api.Run{
		ID:        "r1",
		FlowName:  "orders",
		Status:    api.RunPending,
		CreatedAt: time.Now().UTC(),
		Trigger:   map[string]any{"order_id": "42"},
	}
	ver, err := s.CreateRun(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)

	_, err = s.CreateRun(ctx, run)
	assert.ErrorIs(t, err, ErrVersionConflict, "run ids are write-once")

	nv, err := s.SaveNode(ctx, "r1", &api.NodeExecution{NodeID: "in", Status: api.NodeRunning, Attempts: 1}, 0)
	require.NoError(t, err)
	nv, err = s.SaveNode(ctx, "r1", &api.NodeExecution{
		NodeID: "in", Status: api.NodeSucceeded, Attempts: 1,
		Output: map[string]any{"order_id": "42"},
	}, nv)
	require.NoError(t, err)
	assert.Equal(t, int64(2), nv)

	run.Status = api.RunRunning
	ver, err = s.UpdateRun(ctx, run, ver)
	require.NoError(t, err)

	loaded, loadedVer, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, ver, loadedVer)
	assert.Equal(t, api.RunRunning, loaded.Status)
	require.Contains(t, loaded.Nodes, "in")
	assert.Equal(t, api.NodeSucceeded, loaded.Nodes["in"].Status)
	assert.Equal(t, "42", loaded.Nodes["in"].Output["order_id"])

	vers, err := s.NodeVersions(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"in": 2}, vers)
}

func TestRunStore_ListRunsFilters(t *testing.T) {
	ctx := context.Background()
	s := NewRunStore(NewMemoryStore())

	mk := func(id, flow string, status api.RunStatus) {
		_, err := s.CreateRun(ctx, &api.Run{ID: id, FlowName: flow, Status: status, CreatedAt: time.Now().UTC()})
		require.NoError(t, err)
	}
	mk("r1", "orders", api.RunSucceeded)
	mk("r2", "orders", api.RunFailed)
	mk("r3", "billing", api.RunSucceeded)

	runs, err := s.ListRuns(ctx, api.RunListOptions{})
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	runs, err = s.ListRuns(ctx, api.RunListOptions{FlowName: "orders"})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = s.ListRuns(ctx, api.RunListOptions{FlowName: "orders", Status: api.RunFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r2", runs[0].ID)
}

func TestRunStore_CancelMarker(t *testing.T) {
	ctx := context.Background()
	s := NewRunStore(NewMemoryStore())

	requested, err := s.CancelRequested(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, requested)

	require.NoError(t, s.RequestCancel(ctx, "r1"))
	require.NoError(t, s.RequestCancel(ctx, "r1"), "requesting twice is fine")

	requested, err = s.CancelRequested(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, requested)

	require.NoError(t, s.ClearCancel(ctx, "r1"))
	requested, err = s.CancelRequested(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, requested)
}
