package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(ch <-chan Event, n int) []Event {
	out := make([]Event, 0, n)
	for len(out) < n {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-time.After(time.Second):
			return out
		}
	}
	return out
}

func TestEventBus_PublishToAllSubscribers(t *testing.T) {
	bus := NewEventBus(8)
	a, cancelA := bus.Subscribe()
	b, cancelB := bus.Subscribe()
	defer cancelA()
	defer cancelB()

	bus.Publish(Event{Type: EventRunStarted, RunID: "r1"})

	for _, ch := range []<-chan Event{a, b} {
		evs := collect(ch, 1)
		require.Len(t, evs, 1)
		assert.Equal(t, EventRunStarted, evs[0].Type)
		assert.Equal(t, "r1", evs[0].RunID)
	}
}

func TestEventBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus(0)
	ch, cancel := bus.Subscribe()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Cancelling twice is harmless, and later publishes go nowhere.
	cancel()
	bus.Publish(Event{Type: EventRunFinished})
}

func TestEventBus_DropsWhenSubscriberFull(t *testing.T) {
	bus := NewEventBus(2)
	ch, cancel := bus.Subscribe()
	defer cancel()

	for i := 0; i < 5; i++ {
		bus.Publish(Event{Type: EventNodeStarted, NodeID: "n"})
	}

	// Only the buffered two arrive; the rest were dropped rather than
	// blocking the publisher.
	assert.Len(t, collect(ch, 2), 2)
	select {
	case ev := <-ch:
		t.Fatalf("unexpected extra event %v", ev)
	default:
	}
}

func TestEventBus_ObserverCallbacks(t *testing.T) {
	ctx := context.Background()
	bus := NewEventBus(16)
	ch, cancel := bus.Subscribe()
	defer cancel()

	run := &Run{ID: "r1", FlowName: "f", FlowVersion: "v1", Status: RunRunning}
	bus.OnRunStart(ctx, run)
	bus.OnNodeStart(ctx, run, "a", 1)
	bus.OnNodeFinished(ctx, run, "a", 1, nil, 10*time.Millisecond)
	bus.OnNodeFinished(ctx, run, "b", 2, errors.New("boom"), time.Millisecond)
	bus.OnNodeSkipped(ctx, run, "c")
	run.Status = RunSucceeded
	bus.OnRunFinished(ctx, run)

	evs := collect(ch, 6)
	require.Len(t, evs, 6)

	assert.Equal(t, EventRunStarted, evs[0].Type)
	assert.Equal(t, "v1", evs[0].FlowVersion)

	assert.Equal(t, EventNodeStarted, evs[1].Type)
	assert.Equal(t, NodeRunning, evs[1].NodeStatus)

	assert.Equal(t, EventNodeFinished, evs[2].Type)
	assert.Equal(t, NodeSucceeded, evs[2].NodeStatus)
	assert.Empty(t, evs[2].Detail)

	assert.Equal(t, NodeFailed, evs[3].NodeStatus)
	assert.Equal(t, "boom", evs[3].Detail)
	assert.Equal(t, 2, evs[3].Attempt)

	assert.Equal(t, EventNodeSkipped, evs[4].Type)
	assert.Equal(t, "c", evs[4].NodeID)

	assert.Equal(t, EventRunFinished, evs[5].Type)
	assert.Equal(t, RunSucceeded, evs[5].RunStatus)
}

func TestCompositeObserver(t *testing.T) {
	ctx := context.Background()
	busA := NewEventBus(4)
	busB := NewEventBus(4)
	chA, cancelA := busA.Subscribe()
	chB, cancelB := busB.Subscribe()
	defer cancelA()
	defer cancelB()

	obs := NewCompositeObserver(nil, busA, busB)
	obs.OnRunStart(ctx, &Run{ID: "r1"})

	require.Len(t, collect(chA, 1), 1)
	require.Len(t, collect(chB, 1), 1)

	// All-nil composition collapses to a no-op.
	assert.IsType(t, NoopObserver{}, NewCompositeObserver(nil, nil))
	// A single observer is returned unwrapped.
	assert.Same(t, busA, NewCompositeObserver(busA))
}
