package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements KV on Redis. Each entry is a hash holding the
// value and its version; conditional writes run as Lua scripts so the
// version check and the write are one atomic step on the server.
//
// Redis persistence is only as durable as its configuration (AOF vs
// snapshots); use the relational backends when losing the most recent
// writes on a crash is unacceptable.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ownClient bool
}

var casAbsentScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "value", ARGV[1], "version", 1)
return 1
`)

var casVersionScript = redis.NewScript(`
local v = redis.call("HGET", KEYS[1], "version")
if not v or v ~= ARGV[2] then
	return 0
end
local nv = tonumber(v) + 1
redis.call("HSET", KEYS[1], "value", ARGV[1], "version", nv)
return nv
`)

// NewRedisStore connects to the given address (e.g. "localhost:6379").
// All keys are placed under the "arbor:" namespace.
func NewRedisStore(addr string) *RedisStore {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: client, keyPrefix: "arbor:", ownClient: true}
}

// NewRedisStoreWithClient wraps an existing client. Close leaves the
// client open.
func NewRedisStoreWithClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, keyPrefix: "arbor:"}
}

func (s *RedisStore) redisKey(key string) string { return s.keyPrefix + key }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, int64, bool, error) {
	res, err := s.client.HMGet(ctx, s.redisKey(key), "value", "version").Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("get %s: %w", key, err)
	}
	if res[0] == nil || res[1] == nil {
		return nil, 0, false, nil
	}
	value := []byte(res[0].(string))
	var version int64
	if _, err := fmt.Sscanf(res[1].(string), "%d", &version); err != nil {
		return nil, 0, false, fmt.Errorf("get %s: bad version: %w", key, err)
	}
	return value, version, true, nil
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, key string, value []byte) (int64, error) {
	n, err := casAbsentScript.Run(ctx, s.client, []string{s.redisKey(key)}, value).Int64()
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	if n == 0 {
		return 0, ErrVersionConflict
	}
	return 1, nil
}

func (s *RedisStore) PutIfVersion(ctx context.Context, key string, value []byte, expect int64) (int64, error) {
	if expect == 0 {
		return s.PutIfAbsent(ctx, key, value)
	}
	n, err := casVersionScript.Run(ctx, s.client, []string{s.redisKey(key)}, value, expect).Int64()
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	if n == 0 {
		return 0, ErrVersionConflict
	}
	return n, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, prefix string) ([]KeyValue, error) {
	var out []KeyValue
	iter := s.client.Scan(ctx, 0, s.redisKey(prefix)+"*", 256).Iterator()
	for iter.Next(ctx) {
		rk := iter.Val()
		key := rk[len(s.keyPrefix):]
		value, version, ok, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Deleted between SCAN and HMGET.
			continue
		}
		out = append(out, KeyValue{Key: key, Value: value, Version: version})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *RedisStore) Watch(context.Context, string) (<-chan WatchEvent, error) {
	return nil, ErrWatchUnsupported
}

func (s *RedisStore) Close() error {
	if !s.ownClient {
		return nil
	}
	if c, ok := s.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return errors.New("redis client does not support Close")
}
