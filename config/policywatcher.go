package config

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/relaykit/kernel/security"
)

// PolicyWatcher watches a policy TOML file for changes and calls
// the security Manager's ReloadPolicy on each debounced write, grounded directly on
// the teacher's rag.FileWatcher debounce-map pattern (coalesce rapid
// fsnotify events into a single reload instead of one per write syscall).
type PolicyWatcher struct {
	watcher       *fsnotify.Watcher
	path          string
	manager       *security.Manager
	debounceDelay time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewPolicyWatcher builds a watcher for path, reloading manager on change.
func NewPolicyWatcher(path string, manager *security.Manager, logger *slog.Logger) (*PolicyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, configErr("NewPolicyWatcher", "failed to create fsnotify watcher: "+err.Error())
	}
	return &PolicyWatcher{
		watcher:       w,
		path:          path,
		manager:       manager,
		debounceDelay: 200 * time.Millisecond,
		logger:        logger,
	}, nil
}

// Start begins watching. Call Stop to release the underlying fsnotify
// watcher.
func (pw *PolicyWatcher) Start(ctx context.Context) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if pw.running {
		return nil
	}

	if err := pw.watcher.Add(pw.path); err != nil {
		return configErr("Start", "failed to watch policy file: "+err.Error())
	}

	watchCtx, cancel := context.WithCancel(ctx)
	pw.cancel = cancel
	pw.running = true

	go pw.run(watchCtx)
	return nil
}

// Stop releases the fsnotify watcher.
func (pw *PolicyWatcher) Stop() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if !pw.running {
		return nil
	}
	pw.cancel()
	pw.running = false
	return pw.watcher.Close()
}

func (pw *PolicyWatcher) run(ctx context.Context) {
	var debounceTimer *time.Timer
	reload := func() {
		policy, err := security.LoadPolicy(pw.path)
		if err != nil {
			pw.logger.Error("policy reload failed, keeping previous policy", "path", pw.path, "error", err)
			return
		}
		pw.manager.ReloadPolicy(policy)
		pw.logger.Info("policy reloaded", "path", pw.path)
	}

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(pw.debounceDelay, reload)
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			pw.logger.Error("policy watcher error", "path", pw.path, "error", err)
		}
	}
}
