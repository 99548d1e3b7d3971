// Package metrics exposes engine activity as Prometheus collectors via
// the Observer interface.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/petrijr/arbor/pkg/api"
)

// Observer counts runs and node attempts and times node durations. Wire
// it into an engine via api.NewCompositeObserver.
type Observer struct {
	runsStarted   *prometheus.CounterVec
	runsFinished  *prometheus.CounterVec
	nodeAttempts  *prometheus.CounterVec
	nodeDurations *prometheus.HistogramVec
	nodesSkipped  *prometheus.CounterVec
}

var _ api.Observer = (*Observer)(nil)

// NewObserver creates the collectors and registers them with reg
// (prometheus.DefaultRegisterer when nil).
func NewObserver(reg prometheus.Registerer) *Observer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &Observer{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbor",
			Name:      "runs_started_total",
			Help:      "Runs that began executing.",
		}, []string{"flow"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbor",
			Name:      "runs_finished_total",
			Help:      "Runs that reached a terminal status.",
		}, []string{"flow", "status"}),
		nodeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbor",
			Name:      "node_attempts_total",
			Help:      "Node attempts by outcome.",
		}, []string{"flow", "node", "outcome"}),
		nodeDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arbor",
			Name:      "node_duration_seconds",
			Help:      "Wall time of node attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"flow", "node"}),
		nodesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbor",
			Name:      "nodes_skipped_total",
			Help:      "Nodes resolved as skipped without executing.",
		}, []string{"flow", "node"}),
	}
	reg.MustRegister(o.runsStarted, o.runsFinished, o.nodeAttempts, o.nodeDurations, o.nodesSkipped)
	return o
}

func (o *Observer) OnRunStart(_ context.Context, run *api.Run) {
	o.runsStarted.WithLabelValues(run.FlowName).Inc()
}

func (o *Observer) OnRunFinished(_ context.Context, run *api.Run) {
	o.runsFinished.WithLabelValues(run.FlowName, string(run.Status)).Inc()
}

func (o *Observer) OnNodeStart(_ context.Context, _ *api.Run, _ string, _ int) {}

func (o *Observer) OnNodeFinished(_ context.Context, run *api.Run, nodeID string, _ int, err error, d time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	o.nodeAttempts.WithLabelValues(run.FlowName, nodeID, outcome).Inc()
	o.nodeDurations.WithLabelValues(run.FlowName, nodeID).Observe(d.Seconds())
}

func (o *Observer) OnNodeSkipped(_ context.Context, run *api.Run, nodeID string) {
	o.nodesSkipped.WithLabelValues(run.FlowName, nodeID).Inc()
}
