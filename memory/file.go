package memory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/relaykit/kernel/kernelerr"
)

// File is a crash-safe, single-process backend: one JSON file per store,
// fsynced on every commit, with an exclusive flock held for the process
// lifetime (spec §4.4: "Process-exclusive lock"). Snapshots are in-memory
// copies of the whole map; Restore writes them back through the same
// fsync-and-atomic-rename path as every commit.
type File struct {
	mu      sync.Mutex
	path    string
	lockFD  *os.File
	data    map[string][]byte
}

// NewFile opens (creating if absent) a file-backed store at path, taking an
// exclusive advisory lock so a second process cannot open it concurrently.
func NewFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeBackendUnavailable, "memory.file", "NewFile", "failed to create directory", err)
	}

	lockPath := path + ".lock"
	lockFD, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeBackendUnavailable, "memory.file", "NewFile", "failed to open lock file", err)
	}
	if err := syscall.Flock(int(lockFD.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		lockFD.Close()
		return nil, kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeBackendUnavailable, "memory.file", "NewFile", "backend already locked by another process", err)
	}

	f := &File{path: path, lockFD: lockFD, data: make(map[string][]byte)}
	if err := f.load(); err != nil {
		lockFD.Close()
		return nil, err
	}
	return f, nil
}

// Close releases the process-exclusive lock.
func (f *File) Close() error {
	if f.lockFD == nil {
		return nil
	}
	_ = syscall.Flock(int(f.lockFD.Fd()), syscall.LOCK_UN)
	return f.lockFD.Close()
}

func (f *File) load() error {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeBackendUnavailable, "memory.file", "load", "failed to read store", err)
	}
	if len(raw) == 0 {
		return nil
	}
	var encoded map[string]string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeSerialization, "memory.file", "load", "failed to decode store", err)
	}
	for k, v := range encoded {
		f.data[k] = []byte(v)
	}
	return nil
}

// persist writes the whole map back out, fsyncs, then atomically renames
// the temp file over the real one — the same atomic-rename-for-durability
// idiom the teacher uses for session snapshots.
func (f *File) persist() error {
	encoded := make(map[string]string, len(f.data))
	for k, v := range f.data {
		encoded[k] = string(v)
	}
	raw, err := json.Marshal(encoded)
	if err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeSerialization, "memory.file", "persist", "failed to encode store", err)
	}

	tmp := f.path + ".tmp"
	fh, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeBackendUnavailable, "memory.file", "persist", "failed to open temp file", err)
	}
	if _, err := fh.Write(raw); err != nil {
		fh.Close()
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeBackendUnavailable, "memory.file", "persist", "failed to write temp file", err)
	}
	if err := fh.Sync(); err != nil {
		fh.Close()
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeBackendUnavailable, "memory.file", "persist", "fsync failed", err)
	}
	if err := fh.Close(); err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeBackendUnavailable, "memory.file", "persist", "close failed", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeBackendUnavailable, "memory.file", "persist", "atomic rename failed", err)
	}
	return nil
}

var _ Backend = (*File)(nil)

func (f *File) Load(_ context.Context, key string) ([]byte, bool, error) {
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *File) LoadMany(ctx context.Context, keys []string) ([]LoadResult, error) {
	results := make([]LoadResult, len(keys))
	for i, k := range keys {
		v, ok, err := f.Load(ctx, k)
		if err != nil {
			return nil, err
		}
		results[i] = LoadResult{Key: k, Value: v, Present: ok}
	}
	return results, nil
}

func (f *File) Store(_ context.Context, update Update) error {
	if err := ValidateKey(update.Key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[update.Key] = update.Value
	return f.persist()
}

func (f *File) StoreMany(_ context.Context, updates []Update) error {
	for _, u := range updates {
		if err := ValidateKey(u.Key); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	backup := make(map[string][]byte, len(f.data))
	for k, v := range f.data {
		backup[k] = v
	}
	for _, u := range updates {
		f.data[u.Key] = u.Value
	}
	if err := f.persist(); err != nil {
		f.data = backup
		return err
	}
	return nil
}

type fileTxn struct {
	f       *File
	staged  map[string][]byte
	deleted map[string]bool
	done    bool
}

func (f *File) Begin(_ context.Context) (Txn, error) {
	return &fileTxn{f: f, staged: make(map[string][]byte), deleted: make(map[string]bool)}, nil
}

func (t *fileTxn) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if t.deleted[key] {
		return nil, false, nil
	}
	if v, ok := t.staged[key]; ok {
		return v, true, nil
	}
	return t.f.Load(ctx, key)
}

func (t *fileTxn) Store(_ context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	delete(t.deleted, key)
	t.staged[key] = value
	return nil
}

func (t *fileTxn) Commit(ctx context.Context) error {
	if t.done {
		return kernelerr.New(kernelerr.KindMemory, kernelerr.CodeTransactionAborted, "memory.file", "Commit", "transaction already finished", nil)
	}
	t.done = true
	updates := make([]Update, 0, len(t.staged))
	for k, v := range t.staged {
		updates = append(updates, Update{Key: k, Value: v})
	}
	return t.f.StoreMany(ctx, updates)
}

func (t *fileTxn) Rollback(_ context.Context) error {
	t.done = true
	return nil
}

func (f *File) Snapshot(_ context.Context) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make(map[string][]byte, len(f.data))
	for k, v := range f.data {
		cp[k] = v
	}
	return Snapshot{backend: "file", data: encodeSnapshot(cp)}, nil
}

func (f *File) Restore(_ context.Context, snap Snapshot) error {
	if snap.backend != "file" {
		return kernelerr.New(kernelerr.KindMemory, kernelerr.CodeSerialization, "memory.file", "Restore", "snapshot backend mismatch", nil)
	}
	decoded, err := decodeSnapshot(snap.data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = decoded
	return f.persist()
}

func (f *File) Backup(ctx context.Context) ([]byte, error) {
	snap, err := f.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.data, nil
}

func (f *File) RestoreBackup(ctx context.Context, backup []byte) error {
	return f.Restore(ctx, Snapshot{backend: "file", data: backup})
}

func (f *File) Migrate(_ context.Context, _ int) error { return nil }

func (f *File) Health(_ context.Context) Health {
	if _, err := os.Stat(f.path); err != nil && !os.IsNotExist(err) {
		return Health{State: HealthFail, Reason: err.Error()}
	}
	return Health{State: HealthOk}
}
