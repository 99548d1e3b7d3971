package taskqueue

import (
	"context"
	"time"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	TaskTypeStartFlow TaskType = "start-flow"
	TaskTypeDriveRun  TaskType = "drive-run"
)

// Task is a unit of work for a worker: either start a new run of a
// named flow, or drive an already-submitted run to completion.
type Task struct {
	ID   string
	Type TaskType

	// For start-flow tasks.
	FlowName string
	Trigger  map[string]any

	// For drive-run tasks.
	RunID string

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task is eligible for
	// processing. Zero means immediately.
	NotBefore time.Time

	Attempts int
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for
	// cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next task, blocking until one is
	// available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued. Backends
	// that cannot count cheaply may return -1.
	Len() int
}
