package lifecycle

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/qorvexhq/qorvex/internal/logger"
)

// ErrLifecycle wraps build/spawn/ready-wait failures, the category the
// spec calls out as fatal-for-the-current-attempt and retried up to
// max_retries + 1 times.
var ErrLifecycle = errors.New("lifecycle")

// Handle owns the on-device agent's process lifetime: it tracks the
// spawned child so it can be killed, and caches whether the build artifact
// is present by watching its containing directory instead of os.Stat-ing
// on every ensure_running call.
//
// It is safe to share a Handle; only one logical owner should drive
// lifecycle transitions (Build/Spawn/Terminate) at a time, though
// ReadyWait and ArtifactBuilt are safe to call concurrently with those.
type Handle struct {
	cfg Config

	watcher *fsnotify.Watcher
	watchWG sync.WaitGroup
	done    chan struct{}

	builtMu sync.RWMutex
	built   bool

	procMu sync.Mutex
	cmd    *exec.Cmd

	closeOnce sync.Once
}

// New constructs a Handle and starts watching ArtifactPath's directory for
// creation/removal so ArtifactBuilt stays current without polling.
func New(cfg Config) (*Handle, error) {
	h := &Handle{cfg: cfg, done: make(chan struct{})}

	if _, err := os.Stat(cfg.ArtifactPath); err == nil {
		h.built = true
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("lifecycle: new watcher: %w", err)
	}
	dir := filepath.Dir(cfg.ArtifactPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("lifecycle: ensure artifact dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("lifecycle: watch artifact dir: %w", err)
	}
	h.watcher = watcher

	h.watchWG.Add(1)
	go h.watchLoop()

	return h, nil
}

func (h *Handle) watchLoop() {
	defer h.watchWG.Done()
	target := filepath.Clean(h.cfg.ArtifactPath)
	for {
		select {
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				h.setBuilt(true)
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				h.setBuilt(false)
			}
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("lifecycle: artifact watcher error", "err", err)
		case <-h.done:
			return
		}
	}
}

func (h *Handle) setBuilt(v bool) {
	h.builtMu.Lock()
	h.built = v
	h.builtMu.Unlock()
}

// ArtifactBuilt reports whether the build artifact currently exists,
// kept current by the fsnotify watch rather than re-stat-ing the
// filesystem on every call.
func (h *Handle) ArtifactBuilt() bool {
	h.builtMu.RLock()
	defer h.builtMu.RUnlock()
	return h.built
}

// Close stops the artifact watcher and terminates any child this handle
// owns. Callers must invoke Close on scope exit (daemon shutdown, test
// cleanup); an abandoned handle must never leave an orphaned agent
// process running.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
		if h.watcher != nil {
			h.watcher.Close()
		}
		h.watchWG.Wait()
	})
	return h.Terminate()
}
