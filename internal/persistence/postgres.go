package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements KV on a PostgreSQL table via pgx. This is
// the backend for multi-process deployments: conditional writes are
// plain transactional UPDATEs, so ownership races between engines on
// different hosts resolve inside the database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS arbor_kv (
	key     TEXT PRIMARY KEY,
	value   BYTEA NOT NULL,
	version BIGINT NOT NULL
)
`

// NewPostgresStore connects with the given DSN and prepares the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return s, nil
}

// NewPostgresStoreWithPool wraps an existing pool. The schema must
// already exist; Close closes the pool.
func NewPostgresStoreWithPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, int64, bool, error) {
	var value []byte
	var version int64
	err := s.pool.QueryRow(ctx,
		"SELECT value, version FROM arbor_kv WHERE key = $1", key,
	).Scan(&value, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, version, true, nil
}

func (s *PostgresStore) PutIfAbsent(ctx context.Context, key string, value []byte) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"INSERT INTO arbor_kv (key, value, version) VALUES ($1, $2, 1) ON CONFLICT (key) DO NOTHING",
		key, value,
	)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrVersionConflict
	}
	return 1, nil
}

func (s *PostgresStore) PutIfVersion(ctx context.Context, key string, value []byte, expect int64) (int64, error) {
	if expect == 0 {
		return s.PutIfAbsent(ctx, key, value)
	}
	tag, err := s.pool.Exec(ctx,
		"UPDATE arbor_kv SET value = $1, version = version + 1 WHERE key = $2 AND version = $3",
		value, key, expect,
	)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrVersionConflict
	}
	return expect + 1, nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM arbor_kv WHERE key = $1", key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, prefix string) ([]KeyValue, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT key, value, version FROM arbor_kv WHERE key >= $1 AND key < $2 ORDER BY key",
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

func (s *PostgresStore) Watch(context.Context, string) (<-chan WatchEvent, error) {
	return nil, ErrWatchUnsupported
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
