package api

import (
	"context"
	"sync"
	"time"
)

// EventType identifies a run lifecycle event.
type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunFinished  EventType = "run.finished"
	EventNodeStarted  EventType = "node.started"
	EventNodeFinished EventType = "node.finished"
	EventNodeSkipped  EventType = "node.skipped"
)

// Event is a minimal record of a run or node state transition, exposed
// to observability collaborators as a subscribable sequence. It is
// intentionally small and stable; do not dump large payloads here.
type Event struct {
	Type  EventType
	At    time.Time
	RunID string

	FlowName    string
	FlowVersion string
	RunStatus   RunStatus

	// Node fields, set for node.* events.
	NodeID     string
	NodeStatus NodeStatus
	Attempt    int

	// Detail carries a short human-oriented note (e.g. an error string).
	Detail string
}

// EventBus distributes run lifecycle events to subscribers. It
// implements Observer, so it can be wired into an engine directly or
// combined with other observers via NewCompositeObserver.
//
// Publishing never blocks the scheduler: events for a slow subscriber
// are dropped once its buffer is full.
type EventBus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	buffer int
}

// NewEventBus creates a bus whose subscriber channels buffer up to
// buffer events (default 64 if <= 0).
func NewEventBus(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &EventBus{
		subs:   make(map[int]chan Event),
		buffer: buffer,
	}
}

// Subscribe returns a channel of events and a cancel function. The
// channel is closed when cancel is called.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber, dropping it for subscribers
// whose buffer is full.
func (b *EventBus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

var _ Observer = (*EventBus)(nil)

func (b *EventBus) OnRunStart(ctx context.Context, run *Run) {
	b.Publish(Event{
		Type:        EventRunStarted,
		At:          time.Now(),
		RunID:       run.ID,
		FlowName:    run.FlowName,
		FlowVersion: run.FlowVersion,
		RunStatus:   run.Status,
	})
}

func (b *EventBus) OnRunFinished(ctx context.Context, run *Run) {
	b.Publish(Event{
		Type:        EventRunFinished,
		At:          time.Now(),
		RunID:       run.ID,
		FlowName:    run.FlowName,
		FlowVersion: run.FlowVersion,
		RunStatus:   run.Status,
	})
}

func (b *EventBus) OnNodeStart(ctx context.Context, run *Run, nodeID string, attempt int) {
	b.Publish(Event{
		Type:       EventNodeStarted,
		At:         time.Now(),
		RunID:      run.ID,
		FlowName:   run.FlowName,
		NodeID:     nodeID,
		NodeStatus: NodeRunning,
		Attempt:    attempt,
	})
}

func (b *EventBus) OnNodeFinished(ctx context.Context, run *Run, nodeID string, attempt int, err error, d time.Duration) {
	ev := Event{
		Type:       EventNodeFinished,
		At:         time.Now(),
		RunID:      run.ID,
		FlowName:   run.FlowName,
		NodeID:     nodeID,
		NodeStatus: NodeSucceeded,
		Attempt:    attempt,
	}
	if err != nil {
		ev.NodeStatus = NodeFailed
		ev.Detail = err.Error()
	}
	b.Publish(ev)
}

func (b *EventBus) OnNodeSkipped(ctx context.Context, run *Run, nodeID string) {
	b.Publish(Event{
		Type:       EventNodeSkipped,
		At:         time.Now(),
		RunID:      run.ID,
		FlowName:   run.FlowName,
		NodeID:     nodeID,
		NodeStatus: NodeSkipped,
	})
}
