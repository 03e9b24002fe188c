// Package memory implements the spec's durable key/value store: the
// Reader/Writer/Transactional/Snapshotable/Admin capability traits and the
// backends that satisfy them (in-process, file, SQLite, Postgres, Redis),
// plus the namespace wrapper.
//
// A backend need not implement every capability; it advertises which it
// supports by implementing the corresponding narrow interface, and callers
// type-assert for the capability they need (spec §9's "capability bundle"
// idiom).
package memory

import (
	"context"

	"github.com/relaykit/kernel/ident"
	"github.com/relaykit/kernel/kernelerr"
)

// Update is a single key/value write.
type Update struct {
	Key   string
	Value []byte
}

// ValidateKey checks a MemoryKey against the spec's boundary rule
// (1-256 chars, [A-Za-z0-9_-./]).
func ValidateKey(key string) error {
	return ident.MemoryKey(key)
}

// Reader loads values by key.
type Reader interface {
	// Load returns the value and true if present, or (nil, false, nil) if absent.
	Load(ctx context.Context, key string) ([]byte, bool, error)
	// LoadMany preserves input order; missing keys yield a false entry.
	LoadMany(ctx context.Context, keys []string) ([]LoadResult, error)
}

// LoadResult is one entry of a LoadMany response.
type LoadResult struct {
	Key     string
	Value   []byte
	Present bool
}

// Writer stores values by key. StoreMany is atomic: all-or-nothing.
type Writer interface {
	Store(ctx context.Context, update Update) error
	StoreMany(ctx context.Context, updates []Update) error
}

// Txn is a staged transaction handle: reads observe prior writes within the
// same transaction (read-your-writes) before Commit makes them durable and
// visible to other readers.
type Txn interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Store(ctx context.Context, key string, value []byte) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transactional begins staged transactions.
type Transactional interface {
	Begin(ctx context.Context) (Txn, error)
}

// Snapshot is an opaque, point-in-time handle. Its contents are backend-
// specific; callers only ever pass it back to Restore.
type Snapshot struct {
	backend string
	data    []byte
}

// Snapshotable captures and restores point-in-time state, independent of
// mutations that occur after the snapshot was taken.
type Snapshotable interface {
	Snapshot(ctx context.Context) (Snapshot, error)
	Restore(ctx context.Context, snap Snapshot) error
}

// HealthState is one of Ok, Degraded, Fail.
type HealthState string

const (
	HealthOk       HealthState = "ok"
	HealthDegraded HealthState = "degraded"
	HealthFail     HealthState = "fail"
)

// Health reports backend liveness and, when applicable, measured lag.
type Health struct {
	State  HealthState
	LagMS  int64
	Reason string
}

// Admin is a capability separate from Reader/Writer: full backup/restore,
// schema migration, and health probing.
type Admin interface {
	Backup(ctx context.Context) ([]byte, error)
	RestoreBackup(ctx context.Context, backup []byte) error
	Migrate(ctx context.Context, schemaVersion int) error
	Health(ctx context.Context) Health
}

// Backend is the union every concrete backend is expected to implement;
// capability-poor backends (e.g. a read-only mirror) should not declare this
// type and should instead expose only the interfaces they satisfy.
type Backend interface {
	Reader
	Writer
	Transactional
	Snapshotable
	Admin
}

func memErr(code kernelerr.Code, op, msg string) *kernelerr.Error {
	return kernelerr.New(kernelerr.KindMemory, code, "memory", op, msg, nil)
}

// ErrNotFound is the canonical Memory.NotFound error.
func ErrNotFound(op, key string) error {
	return memErr(kernelerr.CodeNotFound, op, "key not found: "+key)
}
