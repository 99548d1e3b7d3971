package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_ConditionalWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	ver, err := s.PutIfAbsent(ctx, "run/a", []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)

	_, err = s.PutIfAbsent(ctx, "run/a", []byte("v1b"))
	assert.ErrorIs(t, err, ErrVersionConflict)

	ver, err = s.PutIfVersion(ctx, "run/a", []byte("v2"), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ver)

	_, err = s.PutIfVersion(ctx, "run/a", []byte("stale"), 1)
	assert.ErrorIs(t, err, ErrVersionConflict)

	value, version, ok, err := s.Get(ctx, "run/a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), value)
	assert.Equal(t, int64(2), version)
}

func TestMemoryStore_VersionZeroMeansAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	ver, err := s.PutIfVersion(ctx, "lease/x", []byte("a"), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)

	_, err = s.PutIfVersion(ctx, "lease/x", []byte("b"), 0)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestMemoryStore_GetAbsent(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	_, _, ok, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	_, err := s.PutIfAbsent(ctx, "run/a", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "run/a"))
	require.NoError(t, s.Delete(ctx, "run/a"))

	// A fresh write after delete restarts versioning.
	ver, err := s.PutIfAbsent(ctx, "run/a", []byte("y"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)
}

func TestMemoryStore_ListByPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	for _, k := range []string{"node/r1/a", "node/r1/b", "node/r2/a", "run/r1"} {
		_, err := s.PutIfAbsent(ctx, k, []byte(k))
		require.NoError(t, err)
	}

	entries, err := s.List(ctx, "node/r1/")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "node/r1/a", entries[0].Key)
	assert.Equal(t, "node/r1/b", entries[1].Key)
}

func TestMemoryStore_WatchDeliversWritesUnderPrefix(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewMemoryStore()
	defer s.Close()

	ch, err := s.Watch(ctx, "run/")
	require.NoError(t, err)

	_, err = s.PutIfAbsent(ctx, "run/a", []byte("x"))
	require.NoError(t, err)
	_, err = s.PutIfAbsent(ctx, "lease/a", []byte("y"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "run/a"))

	ev := recvEvent(t, ch)
	assert.Equal(t, "run/a", ev.Key)
	assert.False(t, ev.Deleted)

	ev = recvEvent(t, ch)
	assert.Equal(t, "run/a", ev.Key)
	assert.True(t, ev.Deleted)

	cancel()
	_, open := <-ch
	assert.False(t, open, "channel closes when ctx is done")
}

func recvEvent(t *testing.T, ch <-chan WatchEvent) WatchEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watch event")
		return WatchEvent{}
	}
}
