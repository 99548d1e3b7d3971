// Package worker pulls tasks from a queue and executes them against an
// engine. Pair it with the AMQP queue backend to spread run execution
// across a fleet; the engine's leases keep two workers from driving the
// same run at once.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/arbor/internal/taskqueue"
	"github.com/petrijr/arbor/pkg/api"
)

// Worker pulls tasks from a Queue and executes them using an Engine.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
}

// New creates a new Worker.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return &Worker{
		engine: engine,
		queue:  queue,
	}
}

// EnqueueStartFlow enqueues a task to start a run of the named flow
// asynchronously. It does NOT run the flow itself; that is done by
// ProcessOne.
func (w *Worker) EnqueueStartFlow(ctx context.Context, flowName string, trigger map[string]any) error {
	return w.queue.Enqueue(ctx, taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeStartFlow,
		FlowName:   flowName,
		Trigger:    trigger,
		EnqueuedAt: time.Now(),
	})
}

// EnqueueStartFlowAt enqueues a start task that becomes eligible no
// earlier than 'at'.
func (w *Worker) EnqueueStartFlowAt(ctx context.Context, flowName string, trigger map[string]any, at time.Time) error {
	return w.queue.Enqueue(ctx, taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeStartFlow,
		FlowName:   flowName,
		Trigger:    trigger,
		EnqueuedAt: time.Now(),
		NotBefore:  at,
	})
}

// EnqueueDriveRun enqueues a task to drive an already-submitted run.
// Useful for handing a run created by Submit to the worker fleet, and
// for re-driving runs orphaned by a crashed engine.
func (w *Worker) EnqueueDriveRun(ctx context.Context, runID string) error {
	return w.queue.Enqueue(ctx, taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeDriveRun,
		RunID:      runID,
		EnqueuedAt: time.Now(),
	})
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false, err != nil: nothing was processed (dequeue
//     failed or ctx was cancelled before a task was obtained)
//   - processed == true: a task was processed; err reports whether the
//     handler succeeded.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	if !task.NotBefore.IsZero() {
		if wait := time.Until(task.NotBefore); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				// Put it back for another worker; ordering is not a
				// queue guarantee.
				w.queue.Enqueue(context.Background(), *task)
				return false, ctx.Err()
			}
		}
	}

	switch task.Type {
	case taskqueue.TaskTypeStartFlow:
		_, runErr := w.engine.Start(ctx, task.FlowName, task.Trigger)
		return true, runErr

	case taskqueue.TaskTypeDriveRun:
		_, runErr := w.engine.Drive(ctx, task.RunID)
		if errors.Is(runErr, api.ErrAlreadyOwned) {
			// Another worker got there first; nothing to do.
			return true, nil
		}
		return true, runErr

	default:
		return true, errors.New("unknown task type: " + string(task.Type))
	}
}

// Run processes tasks until ctx is cancelled. Handler errors are
// reported through errFn (may be nil) and do not stop the loop.
func (w *Worker) Run(ctx context.Context, errFn func(error)) error {
	for {
		processed, err := w.ProcessOne(ctx)
		if err != nil && !processed {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errFn != nil {
				errFn(err)
			}
			continue
		}
		if err != nil && errFn != nil {
			errFn(err)
		}
	}
}
