package memory

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/relaykit/kernel/kernelerr"
)

// RedisBackend implements Backend over a pooled, multiplexed Redis client
// (spec §4.4). Namespacing is via key prefix, applied uniformly here so a
// Namespace wrapper on top simply adds another prefix layer. Snapshots use
// a per-key DUMP, matching the spec's "Redis — per-key DUMP of namespace".
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend wraps an existing *redis.Client. prefix scopes every key
// this backend touches (e.g. "kernel:").
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) k(key string) string { return b.prefix + key }

var _ Backend = (*RedisBackend)(nil)

func (b *RedisBackend) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}
	v, err := b.client.Get(ctx, b.k(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.redis", "Load", "GET failed", err)
	}
	return v, true, nil
}

func (b *RedisBackend) LoadMany(ctx context.Context, keys []string) ([]LoadResult, error) {
	results := make([]LoadResult, len(keys))
	for i, k := range keys {
		v, ok, err := b.Load(ctx, k)
		if err != nil {
			return nil, err
		}
		results[i] = LoadResult{Key: k, Value: v, Present: ok}
	}
	return results, nil
}

func (b *RedisBackend) Store(ctx context.Context, update Update) error {
	if err := ValidateKey(update.Key); err != nil {
		return err
	}
	if err := b.client.Set(ctx, b.k(update.Key), update.Value, 0).Err(); err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.redis", "Store", "SET failed", err)
	}
	return nil
}

func (b *RedisBackend) StoreMany(ctx context.Context, updates []Update) error {
	for _, u := range updates {
		if err := ValidateKey(u.Key); err != nil {
			return err
		}
	}
	pipe := b.client.TxPipeline()
	for _, u := range updates {
		pipe.Set(ctx, b.k(u.Key), u.Value, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.redis", "StoreMany", "pipelined SET failed", err)
	}
	return nil
}

// redisTxn uses a Redis MULTI/EXEC pipeline as the "transaction": all
// staged writes either land together on Commit or are discarded on
// Rollback. Reads within the transaction return the latest staged write for
// the key and otherwise go to the server.
type redisTxn struct {
	b      *RedisBackend
	staged []Update
	done   bool
}

func (b *RedisBackend) Begin(_ context.Context) (Txn, error) {
	return &redisTxn{b: b}, nil
}

func (t *redisTxn) Load(ctx context.Context, key string) ([]byte, bool, error) {
	for i := len(t.staged) - 1; i >= 0; i-- {
		if t.staged[i].Key == key {
			return t.staged[i].Value, true, nil
		}
	}
	return t.b.Load(ctx, key)
}

func (t *redisTxn) Store(_ context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	t.staged = append(t.staged, Update{Key: key, Value: value})
	return nil
}

func (t *redisTxn) Commit(ctx context.Context) error {
	if t.done {
		return kernelerr.New(kernelerr.KindMemory, kernelerr.CodeTransactionAborted, "memory.redis", "Commit", "transaction already finished", nil)
	}
	t.done = true
	return t.b.StoreMany(ctx, t.staged)
}

func (t *redisTxn) Rollback(_ context.Context) error {
	t.done = true
	t.staged = nil
	return nil
}

func (b *RedisBackend) Snapshot(ctx context.Context) (Snapshot, error) {
	keys, err := b.client.Keys(ctx, b.prefix+"*").Result()
	if err != nil {
		return Snapshot{}, kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.redis", "Snapshot", "KEYS failed", err)
	}
	dumps := make(map[string][]byte, len(keys))
	for _, k := range keys {
		d, err := b.client.Dump(ctx, k).Result()
		if err != nil {
			return Snapshot{}, kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.redis", "Snapshot", "DUMP failed", err)
		}
		dumps[k] = []byte(d)
	}
	return Snapshot{backend: "redis", data: encodeSnapshot(dumps)}, nil
}

func (b *RedisBackend) Restore(ctx context.Context, snap Snapshot) error {
	if snap.backend != "redis" {
		return kernelerr.New(kernelerr.KindMemory, kernelerr.CodeSerialization, "memory.redis", "Restore", "snapshot backend mismatch", nil)
	}
	dumps, err := decodeSnapshot(snap.data)
	if err != nil {
		return err
	}
	current, err := b.client.Keys(ctx, b.prefix+"*").Result()
	if err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.redis", "Restore", "KEYS failed", err)
	}
	for _, k := range current {
		if _, ok := dumps[k]; ok {
			continue
		}
		if err := b.client.Del(ctx, k).Err(); err != nil {
			return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.redis", "Restore", "DEL failed", err)
		}
	}
	for k, d := range dumps {
		if err := b.client.RestoreReplace(ctx, k, 0, string(d)).Err(); err != nil {
			return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.redis", "Restore", "RESTORE failed", err)
		}
	}
	return nil
}

func (b *RedisBackend) Backup(ctx context.Context) ([]byte, error) {
	snap, err := b.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.data, nil
}

func (b *RedisBackend) RestoreBackup(ctx context.Context, backup []byte) error {
	return b.Restore(ctx, Snapshot{backend: "redis", data: backup})
}

func (b *RedisBackend) Migrate(_ context.Context, _ int) error { return nil }

func (b *RedisBackend) Health(ctx context.Context) Health {
	start := time.Now()
	if err := b.client.Ping(ctx).Err(); err != nil {
		return Health{State: HealthFail, Reason: err.Error()}
	}
	lag := time.Since(start).Milliseconds()
	if lag > 200 {
		return Health{State: HealthDegraded, LagMS: lag, Reason: "ping latency above threshold"}
	}
	return Health{State: HealthOk, LagMS: lag}
}
