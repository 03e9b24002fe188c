package memory

import (
	"context"

	"github.com/relaykit/kernel/ident"
)

// Namespace wraps any Backend, transparently prefixing every key with a
// validated namespace so tenants sharing one physical backend cannot see
// each other's keys. The prefixing/stripping here generalizes the
// teacher's KeyPrefixApp/KeyPrefixUser split in v2/session/store.go
// (extractStateDeltas/mergeStates) from session state into the generic
// Memory trait.
type Namespace struct {
	backend Backend
	prefix  string
}

// NewNamespace validates ns and returns a wrapper scoping all keys under it.
func NewNamespace(backend Backend, ns string) (*Namespace, error) {
	if err := ident.Namespace(ns); err != nil {
		return nil, err
	}
	return &Namespace{backend: backend, prefix: ns + "/"}, nil
}

func (n *Namespace) wrap(key string) string   { return n.prefix + key }
func (n *Namespace) unwrap(key string) string { return key[len(n.prefix):] }

var _ Backend = (*Namespace)(nil)

func (n *Namespace) Load(ctx context.Context, key string) ([]byte, bool, error) {
	return n.backend.Load(ctx, n.wrap(key))
}

func (n *Namespace) LoadMany(ctx context.Context, keys []string) ([]LoadResult, error) {
	wrapped := make([]string, len(keys))
	for i, k := range keys {
		wrapped[i] = n.wrap(k)
	}
	results, err := n.backend.LoadMany(ctx, wrapped)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Key = keys[i]
	}
	return results, nil
}

func (n *Namespace) Store(ctx context.Context, update Update) error {
	return n.backend.Store(ctx, Update{Key: n.wrap(update.Key), Value: update.Value})
}

func (n *Namespace) StoreMany(ctx context.Context, updates []Update) error {
	wrapped := make([]Update, len(updates))
	for i, u := range updates {
		wrapped[i] = Update{Key: n.wrap(u.Key), Value: u.Value}
	}
	return n.backend.StoreMany(ctx, wrapped)
}

type namespaceTxn struct {
	n   *Namespace
	txn Txn
}

func (n *Namespace) Begin(ctx context.Context) (Txn, error) {
	txn, err := n.backend.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &namespaceTxn{n: n, txn: txn}, nil
}

func (t *namespaceTxn) Load(ctx context.Context, key string) ([]byte, bool, error) {
	return t.txn.Load(ctx, t.n.wrap(key))
}

func (t *namespaceTxn) Store(ctx context.Context, key string, value []byte) error {
	return t.txn.Store(ctx, t.n.wrap(key), value)
}

func (t *namespaceTxn) Commit(ctx context.Context) error   { return t.txn.Commit(ctx) }
func (t *namespaceTxn) Rollback(ctx context.Context) error { return t.txn.Rollback(ctx) }

// Snapshot/Restore/Backup/RestoreBackup/Migrate/Health delegate directly:
// a namespace cannot isolate a whole-backend snapshot without tracking its
// own key set, so namespace-scoped snapshotting is done by the caller via
// LoadMany over known keys rather than through this capability.
func (n *Namespace) Snapshot(ctx context.Context) (Snapshot, error) { return n.backend.Snapshot(ctx) }
func (n *Namespace) Restore(ctx context.Context, snap Snapshot) error {
	return n.backend.Restore(ctx, snap)
}
func (n *Namespace) Backup(ctx context.Context) ([]byte, error) { return n.backend.Backup(ctx) }
func (n *Namespace) RestoreBackup(ctx context.Context, backup []byte) error {
	return n.backend.RestoreBackup(ctx, backup)
}
func (n *Namespace) Migrate(ctx context.Context, v int) error { return n.backend.Migrate(ctx, v) }
func (n *Namespace) Health(ctx context.Context) Health        { return n.backend.Health(ctx) }
