package arbor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRunner_SynchronousRun(t *testing.T) {
	ctx := context.Background()
	runner, err := NewLocalRunner()
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "shipped"}`))
	}))
	defer srv.Close()

	NewFlow("track-order").
		Node("in", KindTrigger, nil).
		Node("lookup", KindTool, map[string]any{"url": srv.URL + "/{{in.order_id}}"}).
		Node("publish", KindDataSink, map[string]any{
			"routing_key": "orders.tracked",
			"payload":     "{{lookup.body}}",
		}).
		Edge("in", "lookup").
		Edge("lookup", "publish").
		MustRegister(ctx, runner.Engine)

	run, err := runner.Engine.Start(ctx, "track-order", map[string]any{"order_id": "42"})
	require.NoError(t, err)

	assert.Equal(t, RunSucceeded, run.Status)
	body, ok := run.Nodes["lookup"].Output["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "shipped", body["status"])
	// The default sink drops but still succeeds.
	assert.Equal(t, true, run.Nodes["publish"].Output["dropped"])
}

func TestLocalRunner_AsynchronousRun(t *testing.T) {
	ctx := context.Background()
	runner, err := NewLocalRunner()
	require.NoError(t, err)

	NewFlow("ping").
		Node("in", KindTrigger, nil).
		Node("echo", KindTransform, map[string]any{"said": "{{in.word}}"}).
		Edge("in", "echo").
		MustRegister(ctx, runner.Engine)

	require.NoError(t, runner.StartWorkers(ctx, 2))
	defer runner.Stop()

	assert.Error(t, runner.StartWorkers(ctx, 1), "double start is rejected")

	for _, word := range []string{"hi", "yo", "hey"} {
		require.NoError(t, runner.StartFlowAsync(ctx, "ping", map[string]any{"word": word}))
	}

	require.Eventually(t, func() bool {
		runs, err := runner.Engine.ListRuns(ctx, RunListOptions{FlowName: "ping"})
		if err != nil || len(runs) != 3 {
			return false
		}
		for _, r := range runs {
			if r.Status != RunSucceeded {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	runner.Stop()
	runner.Stop() // idempotent
}

func TestLocalRunner_DriveRunAsync(t *testing.T) {
	ctx := context.Background()
	runner, err := NewLocalRunner()
	require.NoError(t, err)

	NewFlow("ping").
		Node("in", KindTrigger, nil).
		MustRegister(ctx, runner.Engine)

	runID, err := runner.Engine.Submit(ctx, "ping", nil)
	require.NoError(t, err)

	require.NoError(t, runner.StartWorkers(ctx, 1))
	defer runner.Stop()

	require.NoError(t, runner.DriveRunAsync(ctx, runID))

	require.Eventually(t, func() bool {
		run, err := runner.Engine.GetRun(ctx, runID)
		return err == nil && run.Status == RunSucceeded
	}, 5*time.Second, 10*time.Millisecond)
}
