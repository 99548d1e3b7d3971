package persistence

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements KV on a single SQLite database. Conditional
// writes ride on SQLite's transactional UPDATE; the version column is
// the CAS token. Suited to single-host deployments that need durability
// without an external server.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key     TEXT PRIMARY KEY,
	value   BLOB NOT NULL,
	version INTEGER NOT NULL
);
`

// NewSQLiteStore opens (or creates) the database at path and prepares
// the schema. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// A single connection avoids SQLITE_BUSY under concurrent
	// conditional writes; throughput is bounded by the disk anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, int64, bool, error) {
	var value []byte
	var version int64
	err := s.db.QueryRowContext(ctx,
		"SELECT value, version FROM kv WHERE key = ?", key,
	).Scan(&value, &version)
	if err == sql.ErrNoRows {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, version, true, nil
}

func (s *SQLiteStore) PutIfAbsent(ctx context.Context, key string, value []byte) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO kv (key, value, version) VALUES (?, ?, 1) ON CONFLICT(key) DO NOTHING",
		key, value,
	)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrVersionConflict
	}
	return 1, nil
}

func (s *SQLiteStore) PutIfVersion(ctx context.Context, key string, value []byte, expect int64) (int64, error) {
	if expect == 0 {
		return s.PutIfAbsent(ctx, key, value)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE kv SET value = ?, version = version + 1 WHERE key = ? AND version = ?",
		value, key, expect,
	)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrVersionConflict
	}
	return expect + 1, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]KeyValue, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value, version FROM kv WHERE key >= ? AND key < ? ORDER BY key",
		prefix, prefixUpperBound(prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer rows.Close()

	var out []KeyValue
	for rows.Next() {
		var kv KeyValue
		if err := rows.Scan(&kv.Key, &kv.Value, &kv.Version); err != nil {
			return nil, err
		}
		out = append(out, kv)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Watch(context.Context, string) (<-chan WatchEvent, error) {
	return nil, ErrWatchUnsupported
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// prefixUpperBound returns the smallest key strictly greater than every
// key with the given prefix, so range scans can use the index.
func prefixUpperBound(prefix string) string {
	if prefix == "" {
		return "\xff\xff\xff\xff"
	}
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return prefix + "\xff"
}
