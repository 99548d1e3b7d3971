// Package persistence defines the storage contract the engine and the
// cluster coordinator depend on, plus the backends shipped with arbor:
// volatile (in-memory), replicated-cache (Redis) and relational (SQLite,
// PostgreSQL).
//
// The contract is a small conditional-write key/value store. All
// cross-process coordination goes through PutIfAbsent / PutIfVersion;
// the engine never relies on in-process locking for anything another
// process might touch.
package persistence

import (
	"context"
	"errors"
)

var (
	// ErrVersionConflict is returned by conditional writes when the
	// stored version does not match the expectation (or the key already
	// exists, for PutIfAbsent).
	ErrVersionConflict = errors.New("storage version conflict")

	// ErrWatchUnsupported is returned by backends without push
	// notification; callers fall back to polling.
	ErrWatchUnsupported = errors.New("watch not supported by this backend")
)

// KeyValue is one stored entry with its current version.
type KeyValue struct {
	Key     string
	Value   []byte
	Version int64
}

// WatchEvent notifies a subscriber of a key write or delete.
type WatchEvent struct {
	Key     string
	Value   []byte
	Version int64
	Deleted bool
}

// KV is the storage contract. Versions start at 1 on first write and
// increase by 1 per successful write; version 0 never matches a stored
// entry, so PutIfVersion(key, v, 0) is equivalent to PutIfAbsent.
type KV interface {
	// Get returns the current value and version, ok=false when absent.
	Get(ctx context.Context, key string) (value []byte, version int64, ok bool, err error)

	// PutIfAbsent writes the key only when it does not exist, returning
	// the new version or ErrVersionConflict.
	PutIfAbsent(ctx context.Context, key string, value []byte) (int64, error)

	// PutIfVersion writes the key only when its stored version equals
	// expect, returning the new version or ErrVersionConflict.
	PutIfVersion(ctx context.Context, key string, value []byte, expect int64) (int64, error)

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all entries whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]KeyValue, error)

	// Watch subscribes to writes under prefix. The channel closes when
	// ctx is done. Backends may return ErrWatchUnsupported.
	Watch(ctx context.Context, prefix string) (<-chan WatchEvent, error)

	Close() error
}
