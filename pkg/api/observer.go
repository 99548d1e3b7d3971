package api

import (
	"context"
	"log/slog"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay run execution. All callbacks
// for one run are invoked from that run's single scheduler goroutine.
type Observer interface {
	// OnRunStart is called once when a run begins executing, before any
	// node is dispatched.
	OnRunStart(ctx context.Context, run *Run)

	// OnRunFinished is called when a run reaches a terminal status
	// (Succeeded, Failed or Cancelled).
	OnRunFinished(ctx context.Context, run *Run)

	// OnNodeStart is called when a node attempt begins executing.
	OnNodeStart(ctx context.Context, run *Run, nodeID string, attempt int)

	// OnNodeFinished is called after a node attempt returns, for both
	// successes and failures (err != nil).
	OnNodeFinished(ctx context.Context, run *Run, nodeID string, attempt int, err error, duration time.Duration)

	// OnNodeSkipped is called when a node resolves to Skipped without
	// ever executing.
	OnNodeSkipped(ctx context.Context, run *Run, nodeID string)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, run *Run)    {}
func (NoopObserver) OnRunFinished(ctx context.Context, run *Run) {}
func (NoopObserver) OnNodeStart(ctx context.Context, run *Run, nodeID string, attempt int) {
}
func (NoopObserver) OnNodeFinished(ctx context.Context, run *Run, nodeID string, attempt int, err error, d time.Duration) {
}
func (NoopObserver) OnNodeSkipped(ctx context.Context, run *Run, nodeID string) {}

// CompositeObserver fans out callbacks to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards callbacks to
// each non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, run)
	}
}

func (c *CompositeObserver) OnRunFinished(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunFinished(ctx, run)
	}
}

func (c *CompositeObserver) OnNodeStart(ctx context.Context, run *Run, nodeID string, attempt int) {
	for _, o := range c.observers {
		o.OnNodeStart(ctx, run, nodeID, attempt)
	}
}

func (c *CompositeObserver) OnNodeFinished(ctx context.Context, run *Run, nodeID string, attempt int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnNodeFinished(ctx, run, nodeID, attempt, err, d)
	}
}

func (c *CompositeObserver) OnNodeSkipped(ctx context.Context, run *Run, nodeID string) {
	for _, o := range c.observers {
		o.OnNodeSkipped(ctx, run, nodeID)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / node lifecycle
// events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, run *Run) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("flow", run.FlowName),
		slog.String("flow_version", run.FlowVersion),
		slog.String("run_id", run.ID),
	)
}

func (o *LoggingObserver) OnRunFinished(ctx context.Context, run *Run) {
	level := slog.LevelInfo
	if run.Status == RunFailed {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "run_finished",
		slog.String("flow", run.FlowName),
		slog.String("run_id", run.ID),
		slog.String("status", string(run.Status)),
	)
}

func (o *LoggingObserver) OnNodeStart(ctx context.Context, run *Run, nodeID string, attempt int) {
	o.Logger.DebugContext(ctx, "node_start",
		slog.String("run_id", run.ID),
		slog.String("node", nodeID),
		slog.Int("attempt", attempt),
	)
}

func (o *LoggingObserver) OnNodeFinished(ctx context.Context, run *Run, nodeID string, attempt int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
	}
	o.Logger.Log(ctx, level, "node_finished",
		slog.String("run_id", run.ID),
		slog.String("node", nodeID),
		slog.Int("attempt", attempt),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnNodeSkipped(ctx context.Context, run *Run, nodeID string) {
	o.Logger.DebugContext(ctx, "node_skipped",
		slog.String("run_id", run.ID),
		slog.String("node", nodeID),
	)
}
