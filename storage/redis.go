package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOption configures the underlying redis.Options, mirroring
// h3-spatial-cache's redisstore.Option pattern.
type RedisOption func(*redis.Options)

func WithPoolSize(n int) RedisOption {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) RedisOption {
	return func(o *redis.Options) { o.DialTimeout = d }
}

// Redis is a Storage implementation backed by a Redis server: plain keys for
// KV, and hashes (one per store name) for RecordStore, so a granular-update
// persisted list can evict or replace a single item without reading and
// rewriting the whole collection.
type Redis struct {
	namespace string
	rdb       *redis.Client
}

// NewRedis connects to addr and returns a Storage scoped under namespace
// (prepended to every key so multiple applications can share one Redis
// instance without colliding).
func NewRedis(addr, namespace string, opts ...RedisOption) (*Redis, error) {
	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     32,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(ro)
	}
	return &Redis{namespace: namespace, rdb: redis.NewClient(ro)}, nil
}

// NewRedisClient builds a Redis store around an already-constructed client,
// for callers that want to share a connection pool or inject a fake (e.g.
// miniredis) in tests.
func NewRedisClient(rdb *redis.Client, namespace string) *Redis {
	return &Redis{namespace: namespace, rdb: rdb}
}

func (r *Redis) key(k string) string {
	if r.namespace == "" {
		return k
	}
	return r.namespace + ":" + k
}

func (r *Redis) hashKey(store string) string {
	return r.key("records:" + store)
}

func (r *Redis) Init(ctx context.Context) error {
	return Wrap("init", "", r.rdb.Ping(ctx).Err())
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, Wrap("get", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return Wrap("set", key, r.rdb.Set(ctx, r.key(key), value, 0).Err())
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return Wrap("delete", key, r.rdb.Del(ctx, r.key(key)).Err())
}

// Clear removes every key this Storage has ever written under its
// namespace. It relies on SCAN rather than FLUSHDB so it never touches keys
// belonging to other namespaces sharing the same Redis instance.
func (r *Redis) Clear(ctx context.Context) error {
	iter := r.rdb.Scan(ctx, 0, r.key("*"), 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return Wrap("clear", "", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return Wrap("clear", "", r.rdb.Del(ctx, keys...).Err())
}

func (r *Redis) SetRecord(ctx context.Context, store, id, value string) error {
	return Wrap("set_record", store+"/"+id, r.rdb.HSet(ctx, r.hashKey(store), id, value).Err())
}

func (r *Redis) GetRecord(ctx context.Context, store, id string) (string, bool, error) {
	v, err := r.rdb.HGet(ctx, r.hashKey(store), id).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, Wrap("get_record", store+"/"+id, err)
	}
	return v, true, nil
}

func (r *Redis) DeleteRecord(ctx context.Context, store, id string) error {
	return Wrap("delete_record", store+"/"+id, r.rdb.HDel(ctx, r.hashKey(store), id).Err())
}

func (r *Redis) GetRecords(ctx context.Context, store string) (map[string]string, error) {
	m, err := r.rdb.HGetAll(ctx, r.hashKey(store)).Result()
	if err != nil {
		return nil, Wrap("get_records", store, err)
	}
	return m, nil
}

func (r *Redis) SetRecords(ctx context.Context, store string, records map[string]string) error {
	if len(records) == 0 {
		return nil
	}
	fields := make([]any, 0, len(records)*2)
	for id, v := range records {
		fields = append(fields, id, v)
	}
	return Wrap("set_records", store, r.rdb.HSet(ctx, r.hashKey(store), fields...).Err())
}

func (r *Redis) DeleteRecords(ctx context.Context, store string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return Wrap("delete_records", store, r.rdb.HDel(ctx, r.hashKey(store), ids...).Err())
}

func (r *Redis) ClearStore(ctx context.Context, store string) error {
	return Wrap("clear_store", store, r.rdb.Del(ctx, r.hashKey(store)).Err())
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
