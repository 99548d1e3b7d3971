package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/petrijr/arbor/pkg/api"
)

func TestObserver(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	obs := NewObserver(reg)

	run := &api.Run{ID: "r1", FlowName: "enrich", Status: api.RunRunning}

	obs.OnRunStart(ctx, run)
	obs.OnNodeStart(ctx, run, "fetch", 1)
	obs.OnNodeFinished(ctx, run, "fetch", 1, nil, 30*time.Millisecond)
	obs.OnNodeFinished(ctx, run, "fetch", 2, errors.New("boom"), time.Millisecond)
	obs.OnNodeSkipped(ctx, run, "side")
	run.Status = api.RunFailed
	obs.OnRunFinished(ctx, run)

	assert.Equal(t, 1.0, testutil.ToFloat64(obs.runsStarted.WithLabelValues("enrich")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.runsFinished.WithLabelValues("enrich", "FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.nodeAttempts.WithLabelValues("enrich", "fetch", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.nodeAttempts.WithLabelValues("enrich", "fetch", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.nodesSkipped.WithLabelValues("enrich", "side")))

	count := testutil.CollectAndCount(obs.nodeDurations)
	assert.Equal(t, 1, count, "one labelled duration series")
}

func TestNewObserver_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewObserver(reg)

	// Registering a second observer on the same registry collides.
	assert.Panics(t, func() { NewObserver(reg) })
}
