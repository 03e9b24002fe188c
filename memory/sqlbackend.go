package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/relaykit/kernel/kernelerr"

	// SQL drivers: sqlite and postgres are named directly in spec §4.4;
	// mysql is carried as an enrichment dialect the same way the teacher's
	// own session store supports all three (v2/session/store.go).
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLBackend implements Backend over SQLite, Postgres, or MySQL. It follows
// the teacher's SQLSessionService: per-dialect placeholder strings, a
// schema-version table for migrations, and a per-key version column. The
// version column is incremented on every upsert but never compared, so
// concurrent writers to one key are last-committer-wins; a transaction's
// Commit reports Memory.Conflict only when the database itself rejects the
// commit.
type SQLBackend struct {
	db        *sql.DB
	dialect   string
	snapshotG singleflight.Group
}

const createKVSchemaSQL = `
CREATE TABLE IF NOT EXISTS kv_store (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    updated_at TIMESTAMP NOT NULL
)`

const createSchemaVersionSQL = `
CREATE TABLE IF NOT EXISTS kv_schema_version (
    id INTEGER PRIMARY KEY,
    version INTEGER NOT NULL
)`

// NewSQLBackend opens a SQL-backed memory store. dialect is one of
// "sqlite", "postgres", or "mysql".
func NewSQLBackend(db *sql.DB, dialect string) (*SQLBackend, error) {
	switch dialect {
	case "postgres", "mysql", "sqlite", "sqlite3":
		if dialect == "sqlite3" {
			dialect = "sqlite"
		}
	default:
		return nil, kernelerr.New(kernelerr.KindMemory, kernelerr.CodeBackendUnavailable, "memory.sql", "NewSQLBackend", "unsupported dialect: "+dialect, nil)
	}

	b := &SQLBackend{db: db, dialect: dialect}
	if err := b.initSchema(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *SQLBackend) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, stmt := range []string{createKVSchemaSQL, createSchemaVersionSQL} {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeBackendUnavailable, "memory.sql", "initSchema", "failed to execute schema statement", err)
		}
	}
	return nil
}

func (b *SQLBackend) placeholder(query string) string {
	if b.dialect != "postgres" {
		return query
	}
	var out strings.Builder
	n := 1
	for _, c := range query {
		if c == '?' {
			fmt.Fprintf(&out, "$%d", n)
			n++
		} else {
			out.WriteRune(c)
		}
	}
	return out.String()
}

var _ Backend = (*SQLBackend)(nil)

func (b *SQLBackend) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}
	query := b.placeholder(`SELECT value FROM kv_store WHERE key = ?`)
	var value []byte
	err := b.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.sql", "Load", "query failed", err)
	}
	return value, true, nil
}

func (b *SQLBackend) LoadMany(ctx context.Context, keys []string) ([]LoadResult, error) {
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

func (b *SQLBackend) upsertQuery() string {
	switch b.dialect {
	case "postgres":
		return `INSERT INTO kv_store (key, value, version, updated_at) VALUES ($1, $2, 1, $3)
                ON CONFLICT (key) DO UPDATE SET value = $2, version = kv_store.version + 1, updated_at = $3`
	case "mysql":
		return `INSERT INTO kv_store (key, value, version, updated_at) VALUES (?, ?, 1, ?)
                ON DUPLICATE KEY UPDATE value = VALUES(value), version = version + 1, updated_at = VALUES(updated_at)`
	default:
		return `INSERT INTO kv_store (key, value, version, updated_at) VALUES (?, ?, 1, ?)
                ON CONFLICT (key) DO UPDATE SET value = excluded.value, version = kv_store.version + 1, updated_at = excluded.updated_at`
	}
}

func (b *SQLBackend) Store(ctx context.Context, update Update) error {
	if err := ValidateKey(update.Key); err != nil {
		return err
	}
	_, err := b.db.ExecContext(ctx, b.upsertQuery(), update.Key, update.Value, time.Now())
	if err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.sql", "Store", "upsert failed", err)
	}
	return nil
}

func (b *SQLBackend) StoreMany(ctx context.Context, updates []Update) error {
	for _, u := range updates {
		if err := ValidateKey(u.Key); err != nil {
			return err
		}
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.sql", "StoreMany", "begin failed", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, b.upsertQuery(), u.Key, u.Value, now); err != nil {
			return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.sql", "StoreMany", "upsert failed", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeTransactionAborted, "memory.sql", "StoreMany", "commit failed", err)
	}
	return nil
}

// sqlTxn stages writes against an open *sql.Tx. Reads observe the
// transaction's own uncommitted writes (database-level read-your-writes)
// without any extra staging layer, unlike the in-process/file backends.
type sqlTxn struct {
	b    *SQLBackend
	tx   *sql.Tx
	done bool
}

func (b *SQLBackend) Begin(ctx context.Context) (Txn, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.sql", "Begin", "begin failed", err)
	}
	return &sqlTxn{b: b, tx: tx}, nil
}

func (t *sqlTxn) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}
	query := t.b.placeholder(`SELECT value FROM kv_store WHERE key = ?`)
	var value []byte
	err := t.tx.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.sql", "Load", "query failed", err)
	}
	return value, true, nil
}

func (t *sqlTxn) Store(ctx context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	query := t.b.placeholder(t.b.upsertQuery())
	if _, err := t.tx.ExecContext(ctx, query, key, value, time.Now()); err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.sql", "Store", "upsert failed", err)
	}
	return nil
}

func (t *sqlTxn) Commit(_ context.Context) error {
	if t.done {
		return kernelerr.New(kernelerr.KindMemory, kernelerr.CodeTransactionAborted, "memory.sql", "Commit", "transaction already finished", nil)
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConflict, "memory.sql", "Commit", "commit failed, likely a concurrent writer", err)
	}
	return nil
}

func (t *sqlTxn) Rollback(_ context.Context) error {
	t.done = true
	return t.tx.Rollback()
}

// Snapshot implements the spec's `BEGIN; SELECT *; COMMIT` blob snapshot
// for SQL backends (§4.4). Concurrent callers racing to snapshot the same
// backend collapse onto a single in-flight query via singleflight, so a
// burst of coordinator snapshot requests doesn't multiply table scans.
func (b *SQLBackend) Snapshot(ctx context.Context) (Snapshot, error) {
	v, err, _ := b.snapshotG.Do("snapshot", func() (any, error) {
		return b.snapshotOnce(ctx)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

func (b *SQLBackend) snapshotOnce(ctx context.Context) (Snapshot, error) {
	tx, err := b.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return Snapshot{}, kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.sql", "Snapshot", "begin failed", err)
	}
	defer tx.Commit()

	rows, err := tx.QueryContext(ctx, `SELECT key, value FROM kv_store`)
	if err != nil {
		return Snapshot{}, kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.sql", "Snapshot", "select failed", err)
	}
	defer rows.Close()

	data := make(map[string][]byte)
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return Snapshot{}, kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeSerialization, "memory.sql", "Snapshot", "scan failed", err)
		}
		data[k] = v
	}
	return Snapshot{backend: "sql", data: encodeSnapshot(data)}, nil
}

func (b *SQLBackend) Restore(ctx context.Context, snap Snapshot) error {
	if snap.backend != "sql" {
		return kernelerr.New(kernelerr.KindMemory, kernelerr.CodeSerialization, "memory.sql", "Restore", "snapshot backend mismatch", nil)
	}
	decoded, err := decodeSnapshot(snap.data)
	if err != nil {
		return err
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.sql", "Restore", "begin failed", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM kv_store`); err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.sql", "Restore", "clear failed", err)
	}
	now := time.Now()
	for k, v := range decoded {
		if _, err := tx.ExecContext(ctx, b.placeholder(`INSERT INTO kv_store (key, value, version, updated_at) VALUES (?, ?, 1, ?)`), k, v, now); err != nil {
			return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.sql", "Restore", "insert failed", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeTransactionAborted, "memory.sql", "Restore", "commit failed", err)
	}
	return nil
}

func (b *SQLBackend) Backup(ctx context.Context) ([]byte, error) {
	snap, err := b.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.data, nil
}

func (b *SQLBackend) RestoreBackup(ctx context.Context, backup []byte) error {
	return b.Restore(ctx, Snapshot{backend: "sql", data: backup})
}

func (b *SQLBackend) Migrate(ctx context.Context, schemaVersion int) error {
	_, err := b.db.ExecContext(ctx, b.placeholder(`DELETE FROM kv_schema_version`))
	if err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.sql", "Migrate", "failed to clear version table", err)
	}
	_, err = b.db.ExecContext(ctx, b.placeholder(`INSERT INTO kv_schema_version (id, version) VALUES (1, ?)`), schemaVersion)
	if err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "memory.sql", "Migrate", "failed to record schema version", err)
	}
	return nil
}

func (b *SQLBackend) Health(ctx context.Context) Health {
	if err := b.db.PingContext(ctx); err != nil {
		return Health{State: HealthFail, Reason: err.Error()}
	}
	return Health{State: HealthOk}
}
