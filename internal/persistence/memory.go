package persistence

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is the volatile KV backend. It is the default for tests
// and for LocalRunner; everything is lost on process exit.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	watches map[int]*memWatch
	nextID  int
	closed  bool
}

type memEntry struct {
	value   []byte
	version int64
}

type memWatch struct {
	prefix string
	ch     chan WatchEvent
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memEntry),
		watches: make(map[int]*memWatch),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, 0, false, nil
	}
	return cloneBytes(e.value), e.version, true, nil
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, key string, value []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		return 0, ErrVersionConflict
	}
	e := memEntry{value: cloneBytes(value), version: 1}
	s.entries[key] = e
	s.notifyLocked(key, e, false)
	return e.version, nil
}

func (s *MemoryStore) PutIfVersion(_ context.Context, key string, value []byte, expect int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		if expect != 0 {
			return 0, ErrVersionConflict
		}
		e = memEntry{}
	} else if e.version != expect {
		return 0, ErrVersionConflict
	}
	e = memEntry{value: cloneBytes(value), version: e.version + 1}
	s.entries[key] = e
	s.notifyLocked(key, e, false)
	return e.version, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return nil
	}
	delete(s.entries, key)
	s.notifyLocked(key, memEntry{}, true)
	return nil
}

func (s *MemoryStore) List(_ context.Context, prefix string) ([]KeyValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []KeyValue
	for k, e := range s.entries {
		if strings.HasPrefix(k, prefix) {
			out = append(out, KeyValue{Key: k, Value: cloneBytes(e.value), Version: e.version})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Watch(ctx context.Context, prefix string) (<-chan WatchEvent, error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	w := &memWatch{prefix: prefix, ch: make(chan WatchEvent, 64)}
	s.watches[id] = w
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watches, id)
		s.mu.Unlock()
		close(w.ch)
	}()
	return w.ch, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// notifyLocked fans the event out to matching watchers. Slow consumers
// drop events rather than block the writer; watchers are a hint, the
// record itself stays the source of truth.
func (s *MemoryStore) notifyLocked(key string, e memEntry, deleted bool) {
	for _, w := range s.watches {
		if !strings.HasPrefix(key, w.prefix) {
			continue
		}
		ev := WatchEvent{Key: key, Value: cloneBytes(e.value), Version: e.version, Deleted: deleted}
		select {
		case w.ch <- ev:
		default:
		}
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
