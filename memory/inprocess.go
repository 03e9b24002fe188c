package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/relaykit/kernel/kernelerr"
)

// InProcess is the default backend for tests: a map protected by a single
// RWMutex, durable only for the life of the process (spec §4.4).
type InProcess struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewInProcess creates an empty in-process backend.
func NewInProcess() *InProcess {
	return &InProcess{data: make(map[string][]byte)}
}

var _ Backend = (*InProcess)(nil)

func (b *InProcess) Load(_ context.Context, key string) ([]byte, bool, error) {
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (b *InProcess) LoadMany(ctx context.Context, keys []string) ([]LoadResult, error) {
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

func (b *InProcess) Store(_ context.Context, update Update) error {
	if err := ValidateKey(update.Key); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	v := make([]byte, len(update.Value))
	copy(v, update.Value)
	b.data[update.Key] = v
	return nil
}

func (b *InProcess) StoreMany(_ context.Context, updates []Update) error {
	for _, u := range updates {
		if err := ValidateKey(u.Key); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range updates {
		v := make([]byte, len(u.Value))
		copy(v, u.Value)
		b.data[u.Key] = v
	}
	return nil
}

// inProcessTxn stages writes and reads-through to the parent for keys it
// has not yet touched, giving read-your-writes within the transaction.
type inProcessTxn struct {
	parent  *InProcess
	staged  map[string][]byte
	deleted map[string]bool
	done    bool
}

func (b *InProcess) Begin(_ context.Context) (Txn, error) {
	return &inProcessTxn{parent: b, staged: make(map[string][]byte), deleted: make(map[string]bool)}, nil
}

func (t *inProcessTxn) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if t.deleted[key] {
		return nil, false, nil
	}
	if v, ok := t.staged[key]; ok {
		return v, true, nil
	}
	return t.parent.Load(ctx, key)
}

func (t *inProcessTxn) Store(_ context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	delete(t.deleted, key)
	t.staged[key] = value
	return nil
}

func (t *inProcessTxn) Commit(ctx context.Context) error {
	if t.done {
		return kernelerr.New(kernelerr.KindMemory, kernelerr.CodeTransactionAborted, "memory", "Commit", "transaction already finished", nil)
	}
	t.done = true
	updates := make([]Update, 0, len(t.staged))
	for k, v := range t.staged {
		updates = append(updates, Update{Key: k, Value: v})
	}
	return t.parent.StoreMany(ctx, updates)
}

func (t *inProcessTxn) Rollback(_ context.Context) error {
	t.done = true
	t.staged = nil
	t.deleted = nil
	return nil
}

func (b *InProcess) Snapshot(_ context.Context) (Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cp := maps.Clone(b.data)
	data := make([]byte, 0)
	enc := encodeSnapshot(cp)
	data = append(data, enc...)
	return Snapshot{backend: "inprocess", data: data}, nil
}

func (b *InProcess) Restore(_ context.Context, snap Snapshot) error {
	if snap.backend != "inprocess" {
		return kernelerr.New(kernelerr.KindMemory, kernelerr.CodeSerialization, "memory", "Restore", "snapshot backend mismatch", nil)
	}
	decoded, err := decodeSnapshot(snap.data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = decoded
	return nil
}

func (b *InProcess) Backup(ctx context.Context) ([]byte, error) {
	snap, err := b.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.data, nil
}

// RestoreBackup implements Admin.RestoreBackup using the same encoding as Snapshotable.
func (b *InProcess) RestoreBackup(ctx context.Context, backup []byte) error {
	return b.Restore(ctx, Snapshot{backend: "inprocess", data: backup})
}

func (b *InProcess) Migrate(_ context.Context, _ int) error { return nil }

func (b *InProcess) Health(_ context.Context) Health {
	return Health{State: HealthOk}
}
