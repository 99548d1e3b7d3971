package taskqueue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InMemoryQueue is a bounded FIFO Queue backed by a buffered channel,
// safe for concurrent producers and consumers. It backs LocalRunner and
// tests; process death loses whatever is buffered, so durable
// deployments use the AMQP queue instead.
type InMemoryQueue struct {
	ch chan Task
}

// NewInMemoryQueue creates a queue holding up to capacity tasks.
// Non-positive capacities default to 1024.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{ch: make(chan Task, capacity)}
}

var _ Queue = (*InMemoryQueue)(nil)

// Enqueue adds a task, blocking while the queue is full. Tasks missing
// an ID or EnqueuedAt get them stamped here, so ad-hoc producers
// outside the worker need not fill either.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now().UTC()
	}
	select {
	case q.ch <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue returns the oldest task, blocking until one arrives or ctx
// ends. Delayed tasks (NotBefore in the future) come out in arrival
// order; honoring the delay is the worker's job.
func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	select {
	case t := <-q.ch:
		return &t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the tasks currently buffered.
func (q *InMemoryQueue) Len() int {
	return len(q.ch)
}
