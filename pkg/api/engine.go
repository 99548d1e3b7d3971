package api

import "context"

// Engine is the orchestration surface. Submit and Drive are split so a
// run can be created by one process and executed by another: Submit
// persists the run, Drive takes ownership and executes it to a terminal
// state. Start is the common single-process convenience combining both.
type Engine interface {
	// RegisterFlow validates and stores a flow definition, making it
	// available under its name. Re-registering a changed definition
	// creates a new content version; runs in flight keep the version
	// they started with.
	RegisterFlow(ctx context.Context, def FlowDefinition) error

	// Flow returns the latest registered definition for a name, or
	// ErrFlowNotFound.
	Flow(ctx context.Context, name string) (FlowDefinition, error)

	// ListFlows returns the latest definition of every registered flow.
	ListFlows(ctx context.Context) ([]FlowDefinition, error)

	// Submit creates a pending run of the named flow with the given
	// trigger payload and returns its id. The run is durable before
	// Submit returns; nothing has executed yet.
	Submit(ctx context.Context, flowName string, trigger map[string]any) (string, error)

	// Drive acquires ownership of a run and executes it until it is
	// terminal, ctx is cancelled, or the ownership lease is lost.
	// Driving a run that already finished is a no-op returning its
	// final state; driving a partially executed run resumes it without
	// re-executing terminal nodes.
	Drive(ctx context.Context, runID string) (*Run, error)

	// Start submits and drives in one call.
	Start(ctx context.Context, flowName string, trigger map[string]any) (*Run, error)

	// GetRun returns the durable state of a run, or ErrRunNotFound.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// ListRuns returns runs matching opts, newest first.
	ListRuns(ctx context.Context, opts RunListOptions) ([]*Run, error)

	// Cancel requests cancellation of a run. In-flight node attempts
	// have their contexts cancelled; nodes not yet started are skipped.
	// Cancelling a terminal run returns ErrRunTerminal.
	Cancel(ctx context.Context, runID string) error

	// Close releases engine resources. Runs being driven are abandoned
	// and can be resumed by another engine after the lease TTL.
	Close() error
}
