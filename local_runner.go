package arbor

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/petrijr/arbor/internal/taskqueue"
	"github.com/petrijr/arbor/pkg/exec"
	"github.com/petrijr/arbor/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory task queue, and
// a Worker to provide a simple "local runner" for development and
// debugging.
//
// Typical usage:
//
//	runner, _ := arbor.NewLocalRunner()
//	flow := arbor.NewFlow("my-flow").Node(...).Edge(...)
//	flow.MustRegister(ctx, runner.Engine)
//
//	// Synchronous run (no queue/worker involved):
//	run, err := runner.Engine.Start(ctx, flow.Name(), trigger)
//
//	// Asynchronous run:
//	_ = runner.StartWorkers(ctx, 2)
//	_ = runner.StartFlowAsync(ctx, flow.Name(), trigger)
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory engine used by this runner.
	Engine Engine

	// Queue is the in-memory task queue used by the Worker.
	Queue taskqueue.Queue

	// Worker processes tasks from Queue using Engine.
	Worker *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory
// engine with the built-in executors, an in-memory queue, and a Worker.
//
// This is intended for local development, tests, and simple
// single-process deployments.
func NewLocalRunner() (*LocalRunner, error) {
	eng, err := NewInMemoryEngine(Options{
		Registry: exec.DefaultRegistry(exec.Options{}),
	})
	if err != nil {
		return nil, err
	}
	q := taskqueue.NewInMemoryQueue(1024)
	return &LocalRunner{
		Engine: eng,
		Queue:  q,
		Worker: worker.New(eng, q),
	}, nil
}

// StartWorkers starts 'concurrency' worker goroutines that continuously
// call Worker.ProcessOne(ctx) until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an
// error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("arbor: LocalRunner already started")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()
			for {
				processed, err := r.Worker.ProcessOne(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// A single bad task must not kill the worker loop.
					log.Printf("arbor: local runner worker error: %v", err)
					continue
				}
				if !processed {
					continue
				}
			}
		}()
	}
	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// StartFlowAsync enqueues a task to start the given flow asynchronously.
// The flow must already be registered on LocalRunner.Engine.
func (r *LocalRunner) StartFlowAsync(ctx context.Context, flowName string, trigger map[string]any) error {
	return r.Worker.EnqueueStartFlow(ctx, flowName, trigger)
}

// DriveRunAsync enqueues a task to drive an already-submitted run.
func (r *LocalRunner) DriveRunAsync(ctx context.Context, runID string) error {
	return r.Worker.EnqueueDriveRun(ctx, runID)
}
